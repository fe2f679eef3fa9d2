// Package formatter renders aggregation results and quota reports as
// bordered tables, summaries, or json.
package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

type align int

const (
	alignLeft align = iota
	alignRight
)

const minColumnWidth = 6

// table collects rows and renders them with box-drawing borders. Cell widths
// are display widths, so wide runes in titles do not skew the columns.
type table struct {
	headers []string
	aligns  []align
	rows    [][]string
}

func newTable(headers []string, aligns []align) *table {
	return &table{headers: headers, aligns: aligns}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(out io.Writer) {
	widths := t.columnWidths()

	t.printBorder(out, widths, "┌", "┬", "┐")
	t.printRow(out, t.headers, widths)
	t.printBorder(out, widths, "├", "┼", "┤")
	for _, row := range t.rows {
		t.printRow(out, row, widths)
	}
	t.printBorder(out, widths, "└", "┴", "┘")
}

func (t *table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i := range widths {
		if widths[i] < minColumnWidth {
			widths[i] = minColumnWidth
		}
	}
	return widths
}

func (t *table) printBorder(out io.Writer, widths []int, left, middle, right string) {
	fmt.Fprint(out, left)
	for i, width := range widths {
		fmt.Fprint(out, strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			fmt.Fprint(out, middle)
		}
	}
	fmt.Fprintln(out, right)
}

func (t *table) printRow(out io.Writer, cells []string, widths []int) {
	fmt.Fprint(out, "│")
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := width - runewidth.StringWidth(cell)
		if pad < 0 {
			pad = 0
		}
		if t.aligns[i] == alignRight {
			fmt.Fprintf(out, " %s%s │", strings.Repeat(" ", pad), cell)
		} else {
			fmt.Fprintf(out, " %s%s │", cell, strings.Repeat(" ", pad))
		}
	}
	fmt.Fprintln(out)
}

// terminalWidth reports the attached terminal's width, or a generous default
// when stdout is not a terminal (pipes, tests).
func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 120
}

// truncate shortens s to at most max display columns, ellipsized.
func truncate(s string, max int) string {
	if max <= 0 || runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "…")
}
