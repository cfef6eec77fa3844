package index

import "strings"

// terms splits a user query into search terms. Quotes are dropped so no
// input can reach the FTS5 query syntax.
func terms(query string) []string {
	fields := strings.Fields(strings.ReplaceAll(query, `"`, " "))
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "*^:()"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ftsMatch builds an FTS5 expression requiring every term, the last one as
// a prefix so partially typed words still match.
func ftsMatch(ts []string) string {
	quoted := make([]string, len(ts))
	for i, t := range ts {
		quoted[i] = `"` + t + `"`
	}
	if n := len(quoted); n > 0 {
		quoted[n-1] += "*"
	}
	return strings.Join(quoted, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches t anywhere in a column with LIKE ... ESCAPE '\'.
func likePattern(t string) string {
	return "%" + likeEscaper.Replace(t) + "%"
}
