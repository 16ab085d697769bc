package format

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/tuannm99/sqlfan/internal/sql/executor"
)

const (
	summaryNameWidth  = 19
	summaryErrorWidth = 25
)

var (
	summaryHeaders = []string{"Database", "Time(s)", "Rows", "Statements", "Status", "Errors"}
	summaryWidths  = []int{20, 10, 12, 12, 10, 30}
)

// Summary renders the run overview followed by one line per target, in the
// order the targets completed.
func (f *Formatter) Summary(s *executor.Summary) string {
	rule := strings.Repeat("=", tableRuleWidth)

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("EXECUTION SUMMARY\n")
	b.WriteString(rule + "\n")
	if s.ID != "" {
		fmt.Fprintf(&b, "Run ID              : %s\n", s.ID)
	}
	fmt.Fprintf(&b, "Total Execution Time: %.3f seconds\n", s.Elapsed.Seconds())
	fmt.Fprintf(&b, "Overall Total Rows  : %s\n", humanize.Comma(s.TotalRows))
	fmt.Fprintf(&b, "Databases Processed : %d\n", len(s.Records))
	fmt.Fprintf(&b, "Executed At         : %s\n", s.StartedAt.Format("2006-01-02 15:04:05"))
	b.WriteString("\n")

	b.WriteString("DATABASE EXECUTION DETAILS\n")
	b.WriteString(rule + "\n")
	b.WriteString(summaryRow(summaryHeaders) + "\n")

	sep := summarySeparator()
	b.WriteString(sep + "\n")
	for _, rec := range s.Records {
		b.WriteString(summaryRow([]string{
			cut(rec.Target, summaryNameWidth),
			strconv.FormatFloat(rec.Elapsed.Seconds(), 'f', 3, 64),
			humanize.Comma(rec.TotalRows),
			strconv.Itoa(rec.StatementCount),
			string(rec.Status),
			ErrorSummary(rec.Errors),
		}) + "\n")
	}
	b.WriteString(sep + "\n")
	b.WriteString(rule + "\n")
	return b.String()
}

// ErrorSummary collapses an error list into one short cell.
func ErrorSummary(errs []string) string {
	switch len(errs) {
	case 0:
		return "None"
	case 1:
		if utf8.RuneCountInString(errs[0]) > summaryErrorWidth {
			return cut(errs[0], summaryErrorWidth) + ellipsis
		}
		return errs[0]
	default:
		return fmt.Sprintf("%d error(s)", len(errs))
	}
}

func cut(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

func summaryRow(cells []string) string {
	var b strings.Builder
	b.WriteString("|")
	for i, c := range cells {
		b.WriteString(" " + padRight(c, summaryWidths[i]-1) + "|")
	}
	return b.String()
}

func summarySeparator() string {
	var b strings.Builder
	b.WriteString("|")
	for _, w := range summaryWidths {
		b.WriteString(strings.Repeat("-", w) + "|")
	}
	return b.String()
}
