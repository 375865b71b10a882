package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one output column. Numeric columns (sequence numbers,
// retry counts) align right so digits line up.
type column struct {
	header  string
	numeric bool
}

func col(header string) column    { return column{header: header} }
func numCol(header string) column { return column{header: header, numeric: true} }

// tableWriter accumulates rows for a fixed column set and renders them with
// rounded borders. Short rows are padded to the column count.
type tableWriter struct {
	columns []column
	rows    []table.Row
}

func newTable(columns ...column) *tableWriter {
	return &tableWriter{columns: columns}
}

func (t *tableWriter) row(values ...string) {
	r := make(table.Row, len(t.columns))
	for i := range t.columns {
		if i < len(values) {
			r[i] = values[i]
		} else {
			r[i] = ""
		}
	}
	t.rows = append(t.rows, r)
}

func (t *tableWriter) render() string {
	if len(t.columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(t.columns))
	configs := make([]table.ColumnConfig, 0, len(t.columns))
	for i, c := range t.columns {
		header[i] = c.header
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.AppendHeader(header)
	tw.AppendRows(t.rows)
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
