package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/querydesk/querydesk/internal/query"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

var ErrEmptyResult = errors.New("query returned no rows; nothing to export")

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "text/csv"
	}
}

func (f Format) Extension() string {
	return string(f)
}

func Encode(result query.Result, format Format) ([]byte, error) {
	if len(result.Columns) == 0 {
		return nil, ErrEmptyResult
	}
	switch format {
	case FormatCSV:
		return EncodeCSV(result)
	case FormatParquet:
		return EncodeParquet(result)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// EncodeCSV writes a header row followed by one record per result row.
func EncodeCSV(result query.Result) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buf)
	if err := writer.Write(result.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range result.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ParquetColumnsKey is the file metadata key holding the original column names,
// in result order, as a JSON array.
const ParquetColumnsKey = "querydesk.columns"

// EncodeParquet writes one required string column per result column, in result
// order. Field names must be unique in a parquet group, so repeated or blank
// names are renamed; the original names are kept under ParquetColumnsKey.
func EncodeParquet(result query.Result) ([]byte, error) {
	if len(result.Columns) == 0 {
		return nil, ErrEmptyResult
	}

	names := FieldNames(result.Columns)
	schema := parquet.NewSchema("query_result", newOrderedGroup(names))
	original, err := json.Marshal(result.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode column names: %w", err)
	}

	rows := make([]parquet.Row, 0, len(result.Rows))
	for _, cells := range result.Rows {
		row := make(parquet.Row, len(names))
		for i, cell := range cells {
			row[i] = parquet.ByteArrayValue([]byte(cell)).Level(0, 0, i)
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema, parquet.KeyValueMetadata(ParquetColumnsKey, string(original)))
	if _, err := writer.WriteRows(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// orderedGroup is a parquet.Group whose fields keep the order they were added
// in. parquet.Group itself sorts fields by name.
type orderedGroup struct {
	parquet.Group
	fields []parquet.Field
}

func newOrderedGroup(names []string) *orderedGroup {
	g := &orderedGroup{Group: make(parquet.Group, len(names)), fields: make([]parquet.Field, len(names))}
	for i, name := range names {
		node := parquet.String()
		g.Group[name] = node
		g.fields[i] = &orderedField{Node: node, name: name}
	}
	return g
}

func (g *orderedGroup) Fields() []parquet.Field { return g.fields }

type orderedField struct {
	parquet.Node
	name string
}

func (f *orderedField) Name() string { return f.name }

func (f *orderedField) Value(base reflect.Value) reflect.Value {
	if base.Kind() == reflect.Interface {
		if base.IsNil() {
			return reflect.Value{}
		}
		base = base.Elem()
	}
	if base.Kind() != reflect.Map {
		return reflect.Value{}
	}
	return base.MapIndex(reflect.ValueOf(f.name))
}

// FieldNames makes column names usable as parquet fields: blanks become column_N
// and repeats get a _2, _3, ... suffix.
func FieldNames(columns []string) []string {
	names := make([]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, column := range columns {
		name := strings.TrimSpace(column)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		candidate := name
		for n := 2; seen[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		seen[candidate] = true
		names[i] = candidate
	}
	return names
}
