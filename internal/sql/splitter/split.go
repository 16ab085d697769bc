package splitter

import (
	"regexp"
	"strings"
)

// BatchSeparator is the keyword that, alone on a line, forces a hard split.
const BatchSeparator = "GO"

var (
	dropGuardRe  = regexp.MustCompile(`(?is)IF\s+OBJECT_ID\s*\([^)]+\)\s+IS\s+NOT\s+NULL\s+DROP\s+PROCEDURE\s+[^;]+;`)
	createProcRe = regexp.MustCompile(`(?is)CREATE\s+PROCEDURE\s+`)

	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Texts matching any of these are executed as one unit. Semicolons inside
	// procedural bodies are not statement terminators.
	atomicRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)\b(CREATE|ALTER|DROP)\s+(PROCEDURE|PROC|FUNCTION|FUNC)\s+`),
		regexp.MustCompile(`(?is)\b(CREATE|ALTER|DROP)\s+TRIGGER\s+`),
		regexp.MustCompile(`(?is)\b(CREATE|ALTER|DROP)\s+VIEW\s+.*?\bAS\b.*?\bSELECT\b`),
		regexp.MustCompile(`(?is)\b(EXEC|EXECUTE)\s+\w+`),
		regexp.MustCompile(`(?is)\bDECLARE\s+@\w+`),
		regexp.MustCompile(`(?is)\bBEGIN\b.*?\bEND\b`),
	}
)

// Split divides raw SQL text into independently executable statements.
//
// It never fails: text it cannot divide comes back as a single statement.
// Blank input yields an empty slice.
func Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if batches, ok := splitBatches(text); ok {
		return batches
	}

	if pair, ok := splitDropCreate(text); ok {
		return pair
	}

	text = stripComments(text)
	if text == "" {
		return nil
	}

	for _, re := range atomicRes {
		if re.MatchString(text) {
			return []string{text}
		}
	}

	return scan(text)
}

// splitBatches splits on lines holding only the batch separator. Each batch is
// returned as is; nothing inside a batch is split further.
func splitBatches(text string) ([]string, bool) {
	lines := strings.Split(text, "\n")

	found := false
	for _, line := range lines {
		if isSeparator(line) {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	var (
		out []string
		cur []string
	)
	flush := func() {
		if batch := strings.TrimSpace(strings.Join(cur, "\n")); batch != "" {
			out = append(out, batch)
		}
		cur = cur[:0]
	}
	for _, line := range lines {
		if isSeparator(line) {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return out, true
}

func isSeparator(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), BatchSeparator)
}

// splitDropCreate handles an IF OBJECT_ID(...) IS NOT NULL DROP PROCEDURE guard
// followed by a CREATE PROCEDURE definition. The guard is one unit and the
// definition the other.
//
// A comment line met after the CREATE line ends the definition. This can cut
// a body that carries a trailing comment line.
func splitDropCreate(text string) ([]string, bool) {
	loc := dropGuardRe.FindStringIndex(text)
	if loc == nil || !createProcRe.MatchString(text) {
		return nil, false
	}

	guard := strings.TrimSpace(text[loc[0]:loc[1]])

	var (
		kept        []string
		foundCreate bool
	)
	for _, line := range strings.Split(text[loc[1]:], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			if foundCreate {
				break
			}
			continue
		}
		if strings.HasPrefix(strings.ToUpper(trimmed), "CREATE") {
			foundCreate = true
		}
		if foundCreate || trimmed != "" {
			kept = append(kept, line)
		}
	}

	create := strings.TrimSpace(strings.Join(kept, "\n"))
	if create == "" {
		return nil, false
	}
	return []string{guard, create}, true
}

// stripComments removes "--" line comments and block comments. Comment markers
// inside string literals are not recognised as such and are stripped too.
func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if pos := strings.Index(line, "--"); pos >= 0 {
			lines[i] = strings.TrimRight(line[:pos], " \t\r")
		}
	}
	text = strings.Join(lines, "\n")
	text = blockCommentRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// scan walks the text once and cuts it on semicolons that sit outside string
// literals, bracketed identifiers, parentheses and BEGIN/END blocks.
func scan(text string) []string {
	var (
		out       []string
		start     int
		quote     byte
		inBracket bool
		parens    int
		blocks    int
	)
	emit := func(end int) {
		if stmt := strings.TrimSpace(text[start:end]); stmt != "" {
			out = append(out, stmt)
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]

		switch {
		case quote != 0:
			if ch == quote {
				if i+1 < len(text) && text[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case inBracket:
			if ch == ']' {
				inBracket = false
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '[':
			inBracket = true
		case ch == '(':
			parens++
		case ch == ')':
			if parens > 0 {
				parens--
			}
		case ch == ';':
			if parens == 0 && blocks == 0 {
				emit(i)
				start = i + 1
			}
		case isKeywordAt(text, i, "BEGIN"):
			blocks++
			i += len("BEGIN") - 1
		case isKeywordAt(text, i, "END"):
			if blocks > 0 {
				blocks--
			}
			i += len("END") - 1
		}
	}
	emit(len(text))
	return out
}

// isKeywordAt reports whether kw starts at text[i] as a whole word,
// compared case-insensitively.
func isKeywordAt(text string, i int, kw string) bool {
	end := i + len(kw)
	if end > len(text) || !strings.EqualFold(text[i:end], kw) {
		return false
	}
	if i > 0 && isWordByte(text[i-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z') ||
		b >= 0x80
}
