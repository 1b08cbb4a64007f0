// Package sqlexec holds the database/sql plumbing shared by the engine adapters:
// one handle per call, one physical connection, eager fetch, release on every path.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/querydesk/querydesk/internal/engine"
)

type OpenFunc func(driverName, dsn string) (*sql.DB, error)

type Executor struct {
	DriverName string
	Family     string
	Open       OpenFunc
}

func (e Executor) Ping(ctx context.Context, dsn string) error {
	db, err := e.open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return &engine.ConnectionError{Family: e.Family, Err: err}
	}
	return nil
}

// Query runs sqlText exactly once on a fresh connection and fetches every row
// before returning.
func (e Executor) Query(ctx context.Context, dsn, sqlText string) (engine.RawResultSet, error) {
	db, err := e.open(dsn)
	if err != nil {
		return engine.RawResultSet{}, err
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return engine.RawResultSet{}, &engine.ConnectionError{Family: e.Family, Err: err}
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return engine.RawResultSet{}, &engine.QueryError{Family: e.Family, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return engine.RawResultSet{}, &engine.QueryError{Family: e.Family, Err: fmt.Errorf("query columns: %w", err)}
	}

	resultRows := make([]engine.Row, 0)
	for rows.Next() {
		values := make(engine.Values, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return engine.RawResultSet{}, &engine.QueryError{Family: e.Family, Err: fmt.Errorf("scan row: %w", err)}
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		return engine.RawResultSet{}, &engine.QueryError{Family: e.Family, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return engine.RawResultSet{Columns: columns, Rows: resultRows}, nil
}

func (e Executor) open(dsn string) (*sql.DB, error) {
	open := e.Open
	if open == nil {
		open = sql.Open
	}
	db, err := open(e.DriverName, dsn)
	if err != nil {
		return nil, &engine.ConnectionError{Family: e.Family, Err: err}
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
