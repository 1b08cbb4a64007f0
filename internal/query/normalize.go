package query

import (
	"strconv"
	"strings"

	"github.com/querydesk/querydesk/internal/engine"
)

// Unsupported is the cell text for values no attempt in the chain can read.
const Unsupported = "unsupported"

// Attempt reads column i of row as one candidate type and renders it.
type Attempt func(row engine.Row, i int) (string, bool)

// Chain is tried in order. Text comes first, and most drivers can render any
// scalar as text, so later attempts are often never reached. Binary values that
// are not valid UTF-8 fail the text attempt and end up in asBytes. Keep the order.
var Chain = []Attempt{
	asText,
	asInt64,
	asFloat64,
	asBool,
	asBytes,
}

// Normalize flattens a raw result into Result. Column names are taken only when at
// least one row came back, so an empty result has no columns either.
func Normalize(raw engine.RawResultSet) Result {
	return normalizeWith(raw, Chain, nil)
}

func normalizeWith(raw engine.RawResultSet, chain []Attempt, onUnsupported func()) Result {
	if len(raw.Rows) == 0 {
		return Result{Columns: []string{}, Rows: []Row{}}
	}

	columns := make([]string, len(raw.Columns))
	copy(columns, raw.Columns)

	rows := make([]Row, 0, len(raw.Rows))
	for _, rawRow := range raw.Rows {
		row := make(Row, len(columns))
		for i := range columns {
			cell, ok := cellWith(rawRow, i, chain)
			if !ok && onUnsupported != nil {
				onUnsupported()
			}
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return Result{Columns: columns, Rows: rows}
}

func cellWith(row engine.Row, i int, chain []Attempt) (string, bool) {
	for _, attempt := range chain {
		if value, ok := attempt(row, i); ok {
			return value, true
		}
	}
	return Unsupported, false
}

func asText(row engine.Row, i int) (string, bool) {
	var v string
	if err := row.ScanColumn(i, &v); err != nil {
		return "", false
	}
	return v, true
}

func asInt64(row engine.Row, i int) (string, bool) {
	var v int64
	if err := row.ScanColumn(i, &v); err != nil {
		return "", false
	}
	return strconv.FormatInt(v, 10), true
}

func asFloat64(row engine.Row, i int) (string, bool) {
	var v float64
	if err := row.ScanColumn(i, &v); err != nil {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

func asBool(row engine.Row, i int) (string, bool) {
	var v bool
	if err := row.ScanColumn(i, &v); err != nil {
		return "", false
	}
	return strconv.FormatBool(v), true
}

func asBytes(row engine.Row, i int) (string, bool) {
	var v []byte
	if err := row.ScanColumn(i, &v); err != nil {
		return "", false
	}
	return FormatBytes(v), true
}

// FormatBytes renders a byte slice as a list of decimal values, e.g. [1, 2, 3].
func FormatBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, c := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(int(c)))
	}
	sb.WriteByte(']')
	return sb.String()
}
