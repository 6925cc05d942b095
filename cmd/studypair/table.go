package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

func col(title string) column    { return column{title: title} }
func numCol(title string) column { return column{title: title, numeric: true} }

// uidWidth is the widest UID rendered before eliding the middle.
const uidWidth = 28

// renderTable draws rows under columns. Short rows are padded and extra cells
// are dropped.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// shortUID keeps the root and the distinguishing tail of a long DICOM UID.
func shortUID(uid string) string {
	if len(uid) <= uidWidth {
		return uid
	}
	head := uidWidth/2 - 2
	tail := uidWidth - head - 3
	return uid[:head] + "..." + uid[len(uid)-tail:]
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
