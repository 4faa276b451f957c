package classicdiff

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/literal"
	"github.com/chinarulezzz/repqlite/internal/quote"
	"github.com/chinarulezzz/repqlite/internal/sqlbuf"
)

// Dump emits table T's CREATE statement, a full INSERT stream over
// every row of aux.T in PK order, and every index defined on it in
// aux, for a table that exists only on the aux side of the diff.
func Dump(ctx context.Context, db *sql.DB, table string, da *core.TableDescriptor, buf *sqlbuf.Buffer) error {
	createSQL, err := tableCreateSQL(ctx, db, "aux", table)
	if err != nil {
		return fmt.Errorf("dump %s: %w", table, err)
	}
	buf.WriteString(createSQL)
	buf.WriteString(";\n")

	if err := dumpRows(ctx, db, table, da, buf); err != nil {
		return fmt.Errorf("dump %s: %w", table, err)
	}

	indexes, err := indexSQLs(ctx, db, "aux", table)
	if err != nil {
		return fmt.Errorf("dump %s: %w", table, err)
	}
	for _, idx := range indexes {
		buf.WriteString(idx)
		buf.WriteString(";\n")
	}
	return nil
}

func dumpRows(ctx context.Context, db *sql.DB, table string, da *core.TableDescriptor, buf *sqlbuf.Buffer) error {
	cols := da.Columns
	orderBy := orderByClause(da)

	selectCols := make([]string, 0, len(cols))
	for _, c := range cols {
		if da.ImplicitRowid && c == cols[0] {
			selectCols = append(selectCols, "rowid")
			continue
		}
		selectCols = append(selectCols, quote.Identifier(c))
	}

	q := fmt.Sprintf("SELECT %s FROM aux.%s ORDER BY %s",
		strings.Join(selectCols, ", "), quote.Identifier(table), orderBy)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	insertCols := make([]string, 0, len(cols))
	start := 0
	if da.ImplicitRowid {
		start = 1
	}
	for _, c := range cols[start:] {
		insertCols = append(insertCols, quote.Identifier(c))
	}

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		buf.Printf("INSERT INTO %s(%s) VALUES(", quote.Identifier(table), strings.Join(insertCols, ","))
		for i := start; i < len(dest); i++ {
			if i > start {
				buf.WriteByte(',')
			}
			buf.WriteString(literal.Format(core.ValueFromAny(dest[i])))
		}
		buf.WriteString(");\n")
	}
	return rows.Err()
}

func orderByClause(d *core.TableDescriptor) string {
	if d.ImplicitRowid {
		return "rowid"
	}
	parts := make([]string, d.PKArity)
	for i, c := range d.PKColumns() {
		parts[i] = quote.Identifier(c)
		_ = c
	}
	return strings.Join(parts, ", ")
}

func tableCreateSQL(ctx context.Context, db *sql.DB, dbTag, table string) (string, error) {
	var sqlText string
	q := fmt.Sprintf("SELECT sql FROM %s.sqlite_master WHERE type='table' AND name=?", quote.Identifier(dbTag))
	if err := db.QueryRowContext(ctx, q, table).Scan(&sqlText); err != nil {
		return "", fmt.Errorf("table create sql: %w", err)
	}
	return sqlText, nil
}

func indexSQLs(ctx context.Context, db *sql.DB, dbTag, table string) ([]string, error) {
	q := fmt.Sprintf(`SELECT sql FROM %s.sqlite_master
		WHERE type='index' AND tbl_name=? AND sql IS NOT NULL`, quote.Identifier(dbTag))
	rows, err := db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("index sql: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan index sql: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
