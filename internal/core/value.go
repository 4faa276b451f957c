// Package core holds the single source of truth for the shapes the diff
// engine passes between its components: SQLite cell values, resolved
// table descriptors, and the process-wide tunables value that replaces
// the original tool's file-scope globals.
package core

// Kind identifies which of SQLite's five storage classes a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBlob
)

// Value is a SQLite cell holding exactly one of NULL, INTEGER, FLOAT,
// TEXT, or BLOB.
type Value struct {
	Kind    Kind
	Integer int64
	Float   float64
	Text    string
	Blob    []byte
}

// NullValue returns a NULL Value.
func NullValue() Value { return Value{Kind: KindNull} }

// IntegerValue returns an INTEGER Value.
func IntegerValue(v int64) Value { return Value{Kind: KindInteger, Integer: v} }

// FloatValue returns a FLOAT Value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// TextValue returns a TEXT Value.
func TextValue(v string) Value { return Value{Kind: KindText, Text: v} }

// BlobValue returns a BLOB Value.
func BlobValue(v []byte) Value { return Value{Kind: KindBlob, Blob: v} }
