package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table writes aligned columns with a styled header row.
type Table struct {
	w *tabwriter.Writer
}

// NewTable starts a table on out and writes its header.
func NewTable(out io.Writer, headers ...string) *Table {
	t := &Table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = TableHeaderStyle.Render(h)
	}
	t.Row(styled...)
	return t
}

// Row appends one row.
func (t *Table) Row(cells ...string) {
	_, _ = fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

// Flush writes the buffered rows.
func (t *Table) Flush() error {
	return t.w.Flush()
}
