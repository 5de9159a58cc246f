package display

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// WriteTable renders columns and rows as an aligned table.
func WriteTable(w io.Writer, columns []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	table.Header(header...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
