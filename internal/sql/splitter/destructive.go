package splitter

import "strings"

var destructiveVerbs = map[string]struct{}{
	"DROP":     {},
	"TRUNCATE": {},
	"DELETE":   {},
	"UPDATE":   {},
	"ALTER":    {},
}

// Destructive returns the statements whose leading keyword may modify or
// remove data. Callers use it to ask for confirmation before submitting.
func Destructive(stmts []string) []string {
	var out []string
	for _, stmt := range stmts {
		fields := strings.FieldsFunc(stmt, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
		})
		if len(fields) == 0 {
			continue
		}
		if _, ok := destructiveVerbs[strings.ToUpper(fields[0])]; ok {
			out = append(out, stmt)
		}
	}
	return out
}
