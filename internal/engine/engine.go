package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"
)

type Kind string

const (
	KindMySQL    Kind = "mysql"
	KindMariaDB  Kind = "mariadb"
	KindPostgres Kind = "postgres"
)

// Descriptor says how to reach one database. It is passed by value through every
// call and never cached.
type Descriptor struct {
	Kind     Kind    `json:"db_type" yaml:"engine"`
	Host     string  `json:"host" yaml:"host"`
	Port     uint16  `json:"port" yaml:"port"`
	User     string  `json:"user" yaml:"user"`
	Password *string `json:"password,omitempty" yaml:"password,omitempty"`
	Database string  `json:"database" yaml:"database"`
}

// PasswordOrEmpty treats an absent password as the empty string.
func (d Descriptor) PasswordOrEmpty() string {
	if d.Password == nil {
		return ""
	}
	return *d.Password
}

type Adapter interface {
	Family() string
	// Scheme is the address scheme, used for logging redacted addresses.
	Scheme() string
	Kinds() []Kind
	TestConnection(ctx context.Context, descriptor Descriptor) (string, error)
	RunQuery(ctx context.Context, descriptor Descriptor, query string) (RawResultSet, error)
}

// RawResultSet is a fully fetched, engine-native result. Column types are not
// exposed; values are read back through Row.
type RawResultSet struct {
	Columns []string
	Rows    []Row
}

// Row reads column i of a fetched row as the type pointed to by dest and fails
// when the native value cannot be represented as that type.
type Row interface {
	Len() int
	ScanColumn(i int, dest any) error
}

var (
	ErrNullValue        = errors.New("value is NULL")
	ErrColumnOutOfRange = errors.New("column index out of range")
	ErrNotText          = errors.New("value is not valid UTF-8 text")
)

// Values is a Row over driver values as returned by database/sql.
type Values []any

func (v Values) Len() int {
	return len(v)
}

func (v Values) ScanColumn(i int, dest any) error {
	if i < 0 || i >= len(v) {
		return fmt.Errorf("%w: %d", ErrColumnOutOfRange, i)
	}
	src := v[i]

	switch d := dest.(type) {
	case *string:
		// Binary payloads are left to the []byte read.
		if raw, ok := src.([]byte); ok && !utf8.Valid(raw) {
			return ErrNotText
		}
		var n sql.NullString
		if err := n.Scan(src); err != nil {
			return err
		}
		if !n.Valid {
			return ErrNullValue
		}
		*d = n.String
	case *int64:
		var n sql.NullInt64
		if err := n.Scan(src); err != nil {
			return err
		}
		if !n.Valid {
			return ErrNullValue
		}
		*d = n.Int64
	case *float64:
		var n sql.NullFloat64
		if err := n.Scan(src); err != nil {
			return err
		}
		if !n.Valid {
			return ErrNullValue
		}
		*d = n.Float64
	case *bool:
		var n sql.NullBool
		if err := n.Scan(src); err != nil {
			return err
		}
		if !n.Valid {
			return ErrNullValue
		}
		*d = n.Bool
	case *[]byte:
		var n sql.Null[[]byte]
		if err := n.Scan(src); err != nil {
			return err
		}
		if !n.Valid {
			return ErrNullValue
		}
		*d = n.V
	default:
		return fmt.Errorf("unsupported scan destination %T", dest)
	}
	return nil
}
