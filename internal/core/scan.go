package core

// ValueFromAny converts a value scanned out of database/sql (via a
// *any destination) into a Value. The mattn/go-sqlite3 driver preserves
// SQLite's storage classes exactly: nil, int64, float64, string, and
// []byte map one-to-one onto NULL, INTEGER, FLOAT, TEXT, and BLOB.
func ValueFromAny(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case int64:
		return IntegerValue(x)
	case float64:
		return FloatValue(x)
	case string:
		return TextValue(x)
	case []byte:
		return BlobValue(x)
	default:
		return NullValue()
	}
}
