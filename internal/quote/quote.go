// Package quote renders raw SQLite identifiers (table and column names)
// safely into emitted SQL, the way the teacher's dialect packages carry
// one small QuoteIdentifier per backend.
package quote

import (
	"sort"
	"strings"
)

// keywords holds every SQLite reserved word, alphabetically sorted so
// Identifier can binary-search it the same way the original C tool did.
var keywords = []string{
	"ABORT", "ACTION", "ADD", "AFTER", "ALL", "ALTER", "ANALYZE", "AND", "AS",
	"ASC", "ATTACH", "AUTOINCREMENT", "BEFORE", "BEGIN", "BETWEEN", "BY",
	"CASCADE", "CASE", "CAST", "CHECK", "COLLATE", "COLUMN", "COMMIT",
	"CONFLICT", "CONSTRAINT", "CREATE", "CROSS", "CURRENT_DATE",
	"CURRENT_TIME", "CURRENT_TIMESTAMP", "DATABASE", "DEFAULT", "DEFERRABLE",
	"DEFERRED", "DELETE", "DESC", "DETACH", "DISTINCT", "DROP", "EACH",
	"ELSE", "END", "ESCAPE", "EXCEPT", "EXCLUSIVE", "EXISTS", "EXPLAIN",
	"FAIL", "FOR", "FOREIGN", "FROM", "FULL", "GLOB", "GROUP", "HAVING", "IF",
	"IGNORE", "IMMEDIATE", "IN", "INDEX", "INDEXED", "INITIALLY", "INNER",
	"INSERT", "INSTEAD", "INTERSECT", "INTO", "IS", "ISNULL", "JOIN", "KEY",
	"LEFT", "LIKE", "LIMIT", "MATCH", "NATURAL", "NO", "NOT", "NOTNULL",
	"NULL", "OF", "OFFSET", "ON", "OR", "ORDER", "OUTER", "PLAN", "PRAGMA",
	"PRIMARY", "QUERY", "RAISE", "RECURSIVE", "REFERENCES", "REGEXP",
	"REINDEX", "RELEASE", "RENAME", "REPLACE", "RESTRICT", "RIGHT",
	"ROLLBACK", "ROW", "SAVEPOINT", "SELECT", "SET", "TABLE", "TEMP",
	"TEMPORARY", "THEN", "TO", "TRANSACTION", "TRIGGER", "UNION", "UNIQUE",
	"UPDATE", "USING", "VACUUM", "VALUES", "VIEW", "VIRTUAL", "WHEN", "WHERE",
	"WITH", "WITHOUT",
}

// Identifier renders name safely for splicing into emitted SQL, applying
// the minimum transformation necessary: unquoted where possible, double
// quoted (with internal quotes doubled) otherwise.
func Identifier(name string) string {
	if name == "" {
		return `""`
	}

	extraDigits := false
	for i, r := range name {
		if isIdentRune(r) {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			extraDigits = true
			continue
		}
		return quoteDouble(name)
	}

	if extraDigits {
		return name
	}

	if isKeyword(name) {
		return quoteDouble(name)
	}
	return name
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func quoteDouble(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 2)
	b.WriteByte('"')
	for _, r := range name {
		if r == '"' {
			b.WriteByte('"')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func isKeyword(name string) bool {
	upper := strings.ToUpper(name)
	i := sort.SearchStrings(keywords, upper)
	return i < len(keywords) && keywords[i] == upper
}
