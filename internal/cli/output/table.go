package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// SimpleTable writes key/value pairs as a borderless two-column table,
// one pair per row.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator(":")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)

	for _, p := range pairs {
		t.Append([]string{p[0], p[1]})
	}

	t.Render()
	return nil
}
