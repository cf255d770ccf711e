package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
)

const (
	fallbackTermWidth = 80
	// minColumnWidth keeps dates and status words on one line in narrow terminals.
	minColumnWidth = 20
)

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) int {
	type fder interface{ Fd() uintptr }
	if f, ok := w.(fder); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 { //nolint:gosec // file descriptors fit in int
			return width
		}
	}
	return fallbackTermWidth
}

// columnWidth is the widest a cell may grow before it wraps. Each column
// costs three characters of border and padding, plus one for the closing edge.
func columnWidth(w io.Writer, columns int) int {
	return max(minColumnWidth, terminalWidth(w)-(3*columns+1))
}

// newTable returns a table for a report with the given number of columns.
// Long cells such as WHOIS snippets and provider errors wrap at columnWidth.
// A grouped table merges the repeated domain cell of consecutive rows, as in
// the check report where every domain has a registration row and a
// certificate row, and rules a line between rows to keep groups apart.
func newTable(w io.Writer, columns int, grouped bool) *tablewriter.Table {
	formatting := tw.CellFormatting{AutoWrap: tw.WrapNormal}
	if grouped {
		formatting.MergeMode = tw.MergeHierarchical
	}
	cfg := tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Formatting:   formatting,
			ColMaxWidths: tw.CellWidth{Global: columnWidth(w, columns)},
		},
	})
	if !grouped {
		return tablewriter.NewTable(w, cfg)
	}
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})),
		cfg,
	)
}
