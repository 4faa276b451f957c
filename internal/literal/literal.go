// Package literal renders a core.Value as the SQL literal text that,
// spliced into an emitted statement, reproduces that value, the way the
// teacher's dialect packages each carry a formatValue for their backend.
package literal

import (
	"strconv"
	"strings"

	"github.com/chinarulezzz/repqlite/internal/core"
)

const hexDigits = "0123456789abcdef"

// Format renders v as an SQL literal.
func Format(v core.Value) string {
	switch v.Kind {
	case core.KindNull:
		return "NULL"
	case core.KindInteger:
		return strconv.FormatInt(v.Integer, 10)
	case core.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', 15, 64)
	case core.KindText:
		return quoteText(v.Text)
	case core.KindBlob:
		return formatBlob(v.Blob)
	default:
		return "NULL"
	}
}

func quoteText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteByte('\'')
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

// formatBlob renders a BLOB as x'...' hex literal. A zero-length BLOB is
// rendered as NULL: SQLite's own printf("%s") path for a zero-length
// BLOB sees a NULL pointer rather than an empty buffer, and the source
// tool's printQuoted preserves that quirk rather than emitting x''.
func formatBlob(b []byte) string {
	if len(b) == 0 {
		return "NULL"
	}
	out := make([]byte, 0, 2*len(b)+3)
	out = append(out, 'x', '\'')
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0x0f])
	}
	out = append(out, '\'')
	return string(out)
}
