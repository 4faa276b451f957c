// Package rbudiff emits RBU (Resumable Bulk Update) data_<table>
// insert streams instead of classic DML, the way the source tool's
// rbudiff_one_table / getRbudiffQuery pair built one comparison query
// per table and rewrote BLOB columns as Fossil deltas when that was
// shorter than the literal value.
package rbudiff

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/delta"
	"github.com/chinarulezzz/repqlite/internal/literal"
	"github.com/chinarulezzz/repqlite/internal/quote"
	"github.com/chinarulezzz/repqlite/internal/resolve"
	"github.com/chinarulezzz/repqlite/internal/sqlbuf"
)

// Table validates that table's schema agrees on both sides, resolves
// its columns under forced schema-PK mode, and emits a data_<table>
// insert stream for every inserted, deleted, or updated row.
func Table(ctx context.Context, db *sql.DB, table string, buf *sqlbuf.Buffer) error {
	if err := checkSchemasMatch(ctx, db, table); err != nil {
		return err
	}

	dm, err := resolve.Table(ctx, db, "main", table, core.SchemaPK)
	if err != nil {
		return fmt.Errorf("rbudiff %s: %w", table, err)
	}
	if !dm.Usable {
		return fmt.Errorf("rbudiff: table %q has no usable PK columns", table)
	}

	cols := dm.Columns
	nPK := dm.PKArity
	otaRowid := dm.ImplicitRowid
	nCol := len(cols)

	dataCols := cols
	if otaRowid {
		dataCols = cols[1:]
	}

	createStmt := buildCreateStatement(table, dataCols, otaRowid)
	insertPrefix := buildInsertPrefix(table, dataCols, otaRowid)
	q := buildRbuDiffQuery(table, cols, nPK, otaRowid)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("rbudiff %s: query: %w", table, err)
	}
	defer rows.Close()

	nQ := 2*nCol + 1
	dest := make([]any, nQ)
	ptrs := make([]any, nQ)
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	wroteCreate := false
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("rbudiff %s: scan: %w", table, err)
		}
		if !wroteCreate {
			buf.WriteString(createStmt)
			buf.WriteString("\n")
			wroteCreate = true
		}
		buf.WriteString(insertPrefix)
		otaRowidOffset := 0
		if otaRowid {
			otaRowidOffset = 1
		}
		emitRow(buf, dest, nPK, nCol, otaRowidOffset)
		buf.WriteString(");\n")
	}
	return rows.Err()
}

func buildCreateStatement(table string, dataCols []string, otaRowid bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS 'data_%s'(", table)
	if otaRowid {
		b.WriteString("rbu_rowid, ")
	}
	for i, c := range dataCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote.Identifier(c))
	}
	b.WriteString(", rbu_control);")
	return b.String()
}

func buildInsertPrefix(table string, dataCols []string, otaRowid bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO 'data_%s' (", table)
	if otaRowid {
		b.WriteString("rbu_rowid, ")
	}
	for i, c := range dataCols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote.Identifier(c))
	}
	b.WriteString(", rbu_control) VALUES(")
	return b.String()
}

// emitRow writes the value list for one query result row. dest holds
// nCol "new" value columns, the ota_control column, then nCol "old"
// value columns (used only to compute BLOB deltas). otaRowidOffset is
// 1 when the table uses an implicit rowid PK (bOtaRowid) and 0
// otherwise; it locates each column's flag within ota_control, which
// has no position for the synthetic rowid column.
func emitRow(buf *sqlbuf.Buffer, dest []any, nPK, nCol, otaRowidOffset int) {
	ctl := dest[nCol]
	if asInt, ok := ctl.(int64); ok {
		for i := 0; i <= nCol; i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if i == nCol {
				buf.WriteString(literal.Format(core.IntegerValue(asInt)))
				continue
			}
			buf.WriteString(literal.Format(core.ValueFromAny(dest[i])))
		}
		return
	}

	otaControl := []byte(core.ValueFromAny(ctl).Text)
	for i := 0; i < nCol; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		newVal := core.ValueFromAny(dest[i])
		oldVal := core.ValueFromAny(dest[nCol+1+i])
		if i >= nPK && newVal.Kind == core.KindBlob && oldVal.Kind == core.KindBlob {
			d := delta.Encode(oldVal.Blob, newVal.Blob)
			if len(d) < len(newVal.Blob) {
				buf.WriteString(literal.Format(core.BlobValue(d)))
				otaControl[i-otaRowidOffset] = 'f'
				continue
			}
		}
		buf.WriteString(literal.Format(newVal))
	}
	buf.WriteByte(',')
	buf.WriteString(literal.Format(core.TextValue(string(otaControl))))
}

func checkSchemasMatch(ctx context.Context, db *sql.DB, table string) error {
	var mainSQL, auxSQL sql.NullString
	row := db.QueryRowContext(ctx,
		`SELECT (SELECT sql FROM main.sqlite_master WHERE type='table' AND name=?),
		        (SELECT sql FROM aux.sqlite_master WHERE type='table' AND name=?)`,
		table, table)
	if err := row.Scan(&mainSQL, &auxSQL); err != nil {
		return fmt.Errorf("rbudiff %s: check schemas: %w", table, err)
	}
	if mainSQL.String != auxSQL.String {
		return fmt.Errorf("rbudiff: table %q schema differs between main and aux", table)
	}
	return nil
}

// buildRbuDiffQuery assembles the three-branch UNION ALL query:
// inserts (aux rows absent from main), deletes (main rows absent from
// aux), and updates (joined rows with at least one changed non-PK
// column, omitted entirely when every column is part of the PK).
func buildRbuDiffQuery(table string, cols []string, nPK int, otaRowid bool) string {
	var b strings.Builder
	id := quote.Identifier(table)
	dataCols := cols[nPK:]

	b.WriteString("SELECT ")
	writeColumnList(&b, cols, "")
	b.WriteString(", 0, ")
	writeNullList(&b, len(cols))
	fmt.Fprintf(&b, " FROM aux.%s AS n WHERE NOT EXISTS (\n", id)
	fmt.Fprintf(&b, "    SELECT 1 FROM main.%s AS o WHERE ", id)
	writePKJoin(&b, cols[:nPK])
	b.WriteString("\n)")

	b.WriteString("\nUNION ALL\nSELECT ")
	writeColumnList(&b, cols[:nPK], "")
	if len(dataCols) > 0 {
		b.WriteString(", ")
		writeNullList(&b, len(dataCols))
	}
	b.WriteString(", 1, ")
	writeNullList(&b, len(cols))
	fmt.Fprintf(&b, " FROM main.%s AS n WHERE NOT EXISTS (\n", id)
	fmt.Fprintf(&b, "    SELECT 1 FROM aux.%s AS o WHERE ", id)
	writePKJoin(&b, cols[:nPK])
	b.WriteString("\n) ")

	if len(dataCols) > 0 {
		b.WriteString("\nUNION ALL\nSELECT ")
		for i, c := range cols[:nPK] {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "n.%s", quote.Identifier(c))
		}
		b.WriteString(",\n")
		for i, c := range dataCols {
			if i > 0 {
				b.WriteString(" ,\n")
			}
			q := quote.Identifier(c)
			fmt.Fprintf(&b, "    CASE WHEN n.%s IS o.%s THEN NULL ELSE n.%s END", q, q, q)
		}
		if !otaRowid {
			b.WriteString(", '")
			b.WriteString(strings.Repeat(".", nPK))
			b.WriteString("' ||\n")
		} else {
			b.WriteString(",\n")
		}
		for i, c := range dataCols {
			if i > 0 {
				b.WriteString(" ||\n")
			}
			q := quote.Identifier(c)
			fmt.Fprintf(&b, "    CASE WHEN n.%s IS o.%s THEN '.' ELSE 'x' END", q, q)
		}
		b.WriteString("\nAS ota_control, ")
		writeNullList(&b, nPK)
		b.WriteString(",\n")
		for i, c := range dataCols {
			if i > 0 {
				b.WriteString(" ,\n")
			}
			q := quote.Identifier(c)
			fmt.Fprintf(&b, "    CASE WHEN n.%s IS o.%s THEN NULL ELSE o.%s END", q, q, q)
		}
		fmt.Fprintf(&b, "\nFROM main.%s AS o, aux.%s AS n\nWHERE ", id, id)
		writePKJoin(&b, cols[:nPK])
		b.WriteString(" AND ota_control LIKE '%x%'")
	}

	b.WriteString("\nORDER BY ")
	for i := 1; i <= nPK; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", i)
	}
	return b.String()
}

func writeColumnList(b *strings.Builder, cols []string, prefix string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s%s", prefix, quote.Identifier(c))
	}
}

func writeNullList(b *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("NULL")
	}
}

func writePKJoin(b *strings.Builder, pkCols []string) {
	for i, c := range pkCols {
		if i > 0 {
			b.WriteString(" AND ")
		}
		q := quote.Identifier(c)
		fmt.Fprintf(b, "(n.%s IS o.%s)", q, q)
	}
}
