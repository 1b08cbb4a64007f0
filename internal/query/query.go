package query

import (
	"context"

	"github.com/querydesk/querydesk/internal/engine"
)

type Row []string

// Result is the engine-independent tabular form. Every row has exactly
// len(Columns) cells.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Executor is the two-operation surface exposed to transports.
type Executor interface {
	TestConnection(ctx context.Context, descriptor engine.Descriptor) (string, error)
	ExecuteQuery(ctx context.Context, descriptor engine.Descriptor, sqlText string) (Result, error)
}
