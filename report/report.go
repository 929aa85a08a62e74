// Package report renders property descriptors and scan results as text tables.
//
// Rendering is a pure function of already cached or already reduced state. The Format functions return
// the table; the Sink variants hand it to a caller-supplied sink so the output can be embedded anywhere.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Sink receives rendered output. A nil Sink writes to standard output.
type Sink func(string)

func (s Sink) write(text string) {
	if s == nil {
		fmt.Fprint(os.Stdout, text)
		return
	}
	s(text)
}

// table is a column-aligned text table. Widths are display widths, so wide runes line up.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render() string {
	widths := make([]int, len(t.header))
	measure := func(cells []string) {
		for i, c := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(c))
			}
		}
	}
	measure(t.header)
	for _, row := range t.rows {
		measure(row)
	}

	var sb strings.Builder
	line := func(cells []string) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(widths)-1 {
				sb.WriteString(cell)
			} else {
				sb.WriteString(runewidth.FillRight(cell, widths[i]))
				sb.WriteString("  ")
			}
		}
		sb.WriteString("\n")
	}

	if len(t.header) > 0 {
		line(t.header)
		sep := make([]string, len(widths))
		for i, w := range widths {
			sep[i] = strings.Repeat("-", w)
		}
		line(sep)
	}
	for _, row := range t.rows {
		line(row)
	}

	// trailing padding of the last column is never written, but a short row can leave spaces
	out := sb.String()
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}

	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
