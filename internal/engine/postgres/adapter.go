// Package postgres is the engine adapter for the Postgres family, backed by the
// pgx database/sql driver.
package postgres

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/engine/sqlexec"
)

const (
	Scheme     = "postgres"
	driverName = "pgx"
	family     = "Postgres"
)

type Adapter struct {
	exec sqlexec.Executor
}

func New() *Adapter {
	return NewWithOpener(nil)
}

// NewWithOpener replaces sql.Open, mainly for tests.
func NewWithOpener(open sqlexec.OpenFunc) *Adapter {
	return &Adapter{exec: sqlexec.Executor{DriverName: driverName, Family: family, Open: open}}
}

func (a *Adapter) Family() string {
	return family
}

func (a *Adapter) Scheme() string {
	return Scheme
}

func (a *Adapter) Kinds() []engine.Kind {
	return []engine.Kind{engine.KindPostgres}
}

func (a *Adapter) TestConnection(ctx context.Context, descriptor engine.Descriptor) (string, error) {
	if err := a.exec.Ping(ctx, DSN(descriptor)); err != nil {
		return "", err
	}
	return "Successfully connected to " + family + "!", nil
}

func (a *Adapter) RunQuery(ctx context.Context, descriptor engine.Descriptor, query string) (engine.RawResultSet, error) {
	return a.exec.Query(ctx, DSN(descriptor), query)
}

// DSN is the connection URL; pgx parses it as is.
func DSN(descriptor engine.Descriptor) string {
	return engine.Address(Scheme, descriptor)
}
