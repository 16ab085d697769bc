package format

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/tuannm99/sqlfan/internal/sql/executor"
)

const (
	minColWidth = 8
	maxColWidth = 30
	// Column widths are sized from at most this many leading rows.
	sampleRows = 100

	blockRuleWidth = 80
	tableRuleWidth = 100

	ellipsis = "..."
)

// Formatter renders outcomes and run summaries as plain text. It implements
// executor.Renderer.
type Formatter struct{}

func New() *Formatter { return &Formatter{} }

var _ executor.Renderer = (*Formatter)(nil)

// RowSet renders rs as a bordered table. resultSet is 0 when the statement
// produced a single result set.
func (f *Formatter) RowSet(rs *executor.RowSet, target string, stmt, resultSet int) string {
	title := fmt.Sprintf("Results from Statement %d on %s", stmt, target)
	if resultSet > 0 {
		title += fmt.Sprintf(" (Result Set %d)", resultSet)
	}

	if len(rs.Rows) == 0 {
		return block(title, "No rows returned")
	}

	widths := columnWidths(rs)
	thick := strings.Repeat("═", tableRuleWidth)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(thick + "\n")
	fmt.Fprintf(&b, "%s (Showing %s rows)\n", title, humanize.Comma(int64(len(rs.Rows))))
	b.WriteString(thick + "\n")

	b.WriteString(border("┌", "┬", "┐", widths) + "\n")
	b.WriteString(line(rs.Columns, widths) + "\n")
	b.WriteString(border("├", "┼", "┤", widths) + "\n")
	cells := make([]string, len(widths))
	for _, row := range rs.Rows {
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = Value(row[i])
			}
		}
		b.WriteString(line(cells, widths) + "\n")
	}
	b.WriteString(border("└", "┴", "┘", widths) + "\n")

	fmt.Fprintf(&b, "\nTotal rows: %s\n", humanize.Comma(int64(len(rs.Rows))))
	b.WriteString(thick + "\n")
	return b.String()
}

func (f *Formatter) Affected(n int64, target string, stmt int) string {
	title := fmt.Sprintf("Statement %d executed on %s", stmt, target)
	if n > 0 {
		return block(title, "Rows affected: "+humanize.Comma(n))
	}
	return block(title, "Command completed successfully")
}

func (f *Formatter) StatementFailure(target string, stmt int, msg string) string {
	return block(fmt.Sprintf("Error in Statement %d on %s: %s", stmt, target, msg))
}

func (f *Formatter) ConnectionFailure(target string, msg string) string {
	return block(fmt.Sprintf("Connection error with %s: %s", target, msg))
}

func block(lines ...string) string {
	rule := strings.Repeat("═", blockRuleWidth)
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	for i, l := range lines {
		b.WriteString(l + "\n")
		if i == 0 && len(lines) > 1 {
			b.WriteString(rule + "\n")
		}
	}
	b.WriteString(rule + "\n")
	return b.String()
}

// columnWidths clamps each column to [minColWidth, maxColWidth] after
// measuring the header and the first sampleRows values.
func columnWidths(rs *executor.RowSet) []int {
	widths := make([]int, len(rs.Columns))
	sample := rs.Rows[:min(len(rs.Rows), sampleRows)]
	for i, name := range rs.Columns {
		w := utf8.RuneCountInString(name)
		for _, row := range sample {
			if i < len(row) {
				w = max(w, utf8.RuneCountInString(Value(row[i])))
			}
		}
		widths[i] = max(minColWidth, min(maxColWidth, w))
	}
	return widths
}

func border(left, mid, right string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(parts, mid) + right
}

func line(values []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = padRight(Truncate(values[i], w), w)
	}
	return "│ " + strings.Join(parts, " │ ") + " │"
}

// Truncate shortens s to exactly width runes, ending in "..." when it had
// to cut.
func Truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return string([]rune(s)[:width])
	}
	return string([]rune(s)[:width-len(ellipsis)]) + ellipsis
}

func padRight(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

var oneLine = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// Value renders a single cell. NULL is spelled out and line breaks are
// folded so a value never spans rows.
func Value(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		s = x
	case []byte:
		s = string(x)
	case time.Time:
		s = x.Format("2006-01-02 15:04:05.999999")
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	return oneLine.Replace(s)
}
