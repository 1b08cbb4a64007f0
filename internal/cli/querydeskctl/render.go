package querydeskctl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/querydesk/querydesk/internal/query"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func renderResult(w io.Writer, result query.Result, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatCSV:
		return renderCSV(w, result)
	case formatTable, "":
		return renderTable(w, result)
	default:
		return usageErrorf("unknown output format %q (want table, json or csv)", format)
	}
}

func renderTable(w io.Writer, result query.Result) error {
	if len(result.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = column
	}
	t.AppendHeader(header)

	for _, cells := range result.Rows {
		row := make(table.Row, len(cells))
		for i, cell := range cells {
			row[i] = cell
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(result.Rows))
	return nil
}

func renderCSV(w io.Writer, result query.Result) error {
	writer := csv.NewWriter(w)
	if len(result.Columns) > 0 {
		if err := writer.Write(result.Columns); err != nil {
			return err
		}
	}
	for _, row := range result.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
