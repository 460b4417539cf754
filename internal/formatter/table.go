// Package formatter renders ledger and session data for the terminal.
package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table formats columnar output using tabwriter.
type Table struct {
	w             *tabwriter.Writer
	headers       []string
	maxWidth      map[int]int // column index -> max width in runes (0 = unlimited)
	headerWritten bool
}

// NewTable creates a table that writes to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:        tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers:  headers,
		maxWidth: make(map[int]int),
	}
}

// SetMaxWidth sets the maximum display width for a column (0-indexed).
// Values exceeding the limit are truncated with "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.maxWidth[col] = width
	return t
}

// AddRow appends a data row. Extra values beyond the header count are ignored;
// missing values are filled with empty strings.
func (t *Table) AddRow(values ...string) {
	if !t.headerWritten {
		t.headerWritten = true
		t.writeRow(t.headers)
		seps := make([]string, len(t.headers))
		for i, h := range t.headers {
			seps[i] = strings.Repeat("-", len([]rune(h)))
		}
		t.writeRow(seps)
	}

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.truncate(i, values[i])
		}
	}
	t.writeRow(cells)
}

// Render flushes the underlying tabwriter. Must be called after all AddRow calls.
func (t *Table) Render() error {
	return t.w.Flush()
}

func (t *Table) writeRow(cells []string) {
	//nolint:errcheck // tabwriter buffers; Render reports the error
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *Table) truncate(col int, s string) string {
	max, ok := t.maxWidth[col]
	r := []rune(s)
	if !ok || max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
