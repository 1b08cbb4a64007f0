package engine

import "fmt"

type UnsupportedEngineError struct {
	Kind Kind
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported database type %q", string(e.Kind))
}

// ConnectionError is a network, auth or driver failure while establishing a
// connection.
type ConnectionError struct {
	Family string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection error: %v", e.Family, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError is a driver failure while executing a statement or fetching its rows.
type QueryError struct {
	Family string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query error: %v", e.Family, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
