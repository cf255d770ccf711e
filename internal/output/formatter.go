package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tbckr/lapse/internal/validate"
)

// Format is the output format requested by the user.
type Format string

// Output format constants supported by the --output flag.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatPlain Format = "plain"
)

// ParseFormat validates s as an output format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatPlain:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be \"table\", \"json\", or \"plain\"", s)
	}
}

// Tabular results expose a header and string rows. Table output renders them
// with a wrapping table; plain output prints the rows tab-separated without
// the header, for piping into other tools.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Grouped results merge repeated leading cells in table output.
type Grouped interface {
	Tabular
	GroupByFirstColumn() bool
}

// Write renders result in format. JSON encodes result itself with
// indentation; table and plain require result to implement Tabular.
// Every table and plain cell has ANSI escapes stripped since cells carry
// upstream text such as WHOIS snippets.
func Write(w io.Writer, format Format, result any) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	tab, ok := result.(Tabular)
	if !ok {
		return fmt.Errorf("result type %T does not support %s output", result, format)
	}
	rows := sanitizeRows(tab.Rows())

	switch format {
	case FormatTable:
		if len(rows) == 0 {
			return nil
		}
		header := tab.Header()
		g, grouped := result.(Grouped)
		table := newTable(w, len(header), grouped && g.GroupByFirstColumn())
		table.Header(header)
		if err := table.Bulk(rows); err != nil {
			return err
		}
		return table.Render()
	case FormatPlain:
		for _, row := range rows {
			if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q", format)
	}
}

func sanitizeRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		clean := make([]string, len(row))
		for j, cell := range row {
			clean[j] = validate.StripANSI(cell)
		}
		out[i] = clean
	}
	return out
}
