// Package resolve implements component D: turning a table's schema, as
// seen through PRAGMA introspection on one attached database, into a
// core.TableDescriptor naming its columns and primary-key arity.
package resolve

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/quote"
)

var rowidSynonyms = []string{"rowid", "_rowid_", "oid"}

// Table resolves table in the schema named dbTag ("main" or "aux") of
// db, according to mode. The returned descriptor has Usable set to
// false, rather than an error, when the table is rowid-based but every
// rowid synonym is shadowed by a declared column.
func Table(ctx context.Context, db *sql.DB, dbTag, table string, mode core.PrimaryKeyMode) (*core.TableDescriptor, error) {
	cols, err := tableInfo(ctx, db, dbTag, table)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", dbTag, table, err)
	}

	var pkArity int
	var implicitRowid bool

	switch mode {
	case core.SchemaPK:
		pkArity = countDeclaredPK(cols)
		if pkArity == 0 {
			pkArity = 1
			implicitRowid = true
		}
	default:
		pkIndex, err := findPKIndex(ctx, db, dbTag, table)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", dbTag, table, err)
		}
		if pkIndex == "" {
			// No PK index: the key is the rowid, which a declared INTEGER
			// PRIMARY KEY column aliases directly.
			pkArity = 1
			implicitRowid = countDeclaredPK(cols) == 0
			break
		}

		nKey, nCol, anyMapped, err := indexXInfo(ctx, db, dbTag, pkIndex)
		if err != nil {
			return nil, fmt.Errorf("resolve %s.%s: %w", dbTag, table, err)
		}
		if nKey == nCol || anyMapped {
			pkArity = nKey
		} else {
			pkArity = 1
			implicitRowid = true
		}
	}

	names := orderColumns(cols, pkArity, implicitRowid, mode)

	desc := &core.TableDescriptor{
		Name:          table,
		PKArity:       pkArity,
		ImplicitRowid: implicitRowid,
		Usable:        true,
	}

	if implicitRowid {
		synonym := pickRowidSynonym(cols)
		if synonym == "" {
			desc.Usable = false
			desc.Columns = names
			return desc, nil
		}
		desc.Columns = append([]string{synonym}, names...)
		return desc, nil
	}

	desc.Columns = names
	return desc, nil
}

type columnInfo struct {
	cid    int
	name   string
	pkPos  int // 1-based position within the declared PK, 0 if not a PK column
}

func tableInfo(ctx context.Context, db *sql.DB, dbTag, table string) ([]columnInfo, error) {
	q := fmt.Sprintf("PRAGMA %s.table_info(%s)", quote.Identifier(dbTag), quote.Identifier(table))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      sql.NullString
			notnull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("table_info scan: %w", err)
		}
		cols = append(cols, columnInfo{cid: cid, name: name, pkPos: pk})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table_info rows: %w", err)
	}
	return cols, nil
}

func countDeclaredPK(cols []columnInfo) int {
	n := 0
	for _, c := range cols {
		if c.pkPos > 0 {
			n++
		}
	}
	return n
}

// findPKIndex returns the name of the index whose origin is "pk", or ""
// if the table has no declared primary-key index (its PK is the rowid).
func findPKIndex(ctx context.Context, db *sql.DB, dbTag, table string) (string, error) {
	q := fmt.Sprintf("PRAGMA %s.index_list(%s)", quote.Identifier(dbTag), quote.Identifier(table))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return "", fmt.Errorf("index_list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return "", fmt.Errorf("index_list scan: %w", err)
		}
		if origin == "pk" {
			return name, nil
		}
	}
	return "", rows.Err()
}

// indexXInfo returns the number of key columns, the total column count,
// and whether any row maps to a real table column (non-negative cid),
// for the named index.
func indexXInfo(ctx context.Context, db *sql.DB, dbTag, index string) (nKey, nCol int, anyMapped bool, err error) {
	q := fmt.Sprintf("PRAGMA %s.index_xinfo(%s)", quote.Identifier(dbTag), quote.Identifier(index))
	rows, qerr := db.QueryContext(ctx, q)
	if qerr != nil {
		return 0, 0, false, fmt.Errorf("index_xinfo: %w", qerr)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seqno int
			cid   int
			name  sql.NullString
			desc  int
			coll  string
			key   int
		)
		if err := rows.Scan(&seqno, &cid, &name, &desc, &coll, &key); err != nil {
			return 0, 0, false, fmt.Errorf("index_xinfo scan: %w", err)
		}
		nCol++
		if key != 0 {
			nKey++
		} else if cid >= 0 {
			anyMapped = true
		}
	}
	return nKey, nCol, anyMapped, rows.Err()
}

// orderColumns places each declared PK column at its key position and
// appends the rest as the data-column tail, in table_info's declaration
// order.
func orderColumns(cols []columnInfo, pkArity int, implicitRowid bool, mode core.PrimaryKeyMode) []string {
	if implicitRowid {
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			out = append(out, c.name)
		}
		return out
	}

	pkSlots := make([]string, pkArity)
	var tail []string
	for _, c := range cols {
		if c.pkPos > 0 && c.pkPos <= pkArity {
			pkSlots[c.pkPos-1] = c.name
			continue
		}
		tail = append(tail, c.name)
	}

	out := make([]string, 0, pkArity+len(tail))
	out = append(out, pkSlots...)
	out = append(out, tail...)
	return out
}

func pickRowidSynonym(cols []columnInfo) string {
	shadowed := make(map[string]bool, len(cols))
	for _, c := range cols {
		shadowed[c.name] = true
	}
	for _, s := range rowidSynonyms {
		if !shadowed[s] {
			return s
		}
	}
	return ""
}
