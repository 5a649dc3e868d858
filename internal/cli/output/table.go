package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// None is printed in table cells that have no value.
const None = "-"

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	// Headers returns the column headers for the table.
	Headers() []string
	// Rows returns the data rows for the table.
	Rows() [][]string
}

// Summarizer is implemented by tables that print a one-line summary below
// their rows, such as "3 users (1 disabled)".
type Summarizer interface {
	Summary() string
}

func newTable(w io.Writer, columnSeparator string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(columnSeparator)
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes data as a table, followed by its summary line when data
// implements Summarizer.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := newTable(w, "")
	table.SetAutoFormatHeaders(true)
	table.SetHeader(data.Headers())
	table.AppendBulk(data.Rows())
	table.Render()

	if s, ok := data.(Summarizer); ok {
		if line := s.Summary(); line != "" {
			if _, err := fmt.Fprintf(w, "\n%s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}

// SimpleTable prints "key: value" rows, as used by the show commands.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	table := newTable(w, ":")
	table.SetAutoFormatHeaders(false)
	for _, pair := range pairs {
		table.Append([]string{pair[0], Value(pair[1])})
	}
	table.Render()
	return nil
}

// Value returns s, or None when s is empty.
func Value(s string) string {
	if s == "" {
		return None
	}
	return s
}

// YesNo renders a flag column.
func YesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// List joins values for a single cell. When limit is positive and values
// has more entries, the rest is collapsed into "(+N more)" so a large group
// does not blow up the table width.
func List(values []string, limit int) string {
	if len(values) == 0 {
		return None
	}
	if limit <= 0 || len(values) <= limit {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:limit], ", ") + " (+" + strconv.Itoa(len(values)-limit) + " more)"
}

// Count renders n followed by noun, pluralized with a trailing "s".
func Count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
