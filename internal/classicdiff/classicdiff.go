// Package classicdiff reconciles one table between the main and aux
// attached databases by emitting classic DROP/CREATE/ALTER/INSERT/
// UPDATE/DELETE/INDEX statements, the way the source tool's
// diff_one_table built and ran one comparison SELECT per table.
package classicdiff

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/literal"
	"github.com/chinarulezzz/repqlite/internal/quote"
	"github.com/chinarulezzz/repqlite/internal/resolve"
	"github.com/chinarulezzz/repqlite/internal/sqlbuf"
)

// Table reconciles table so that replaying the emitted SQL against
// main reproduces aux's content for it.
func Table(ctx context.Context, db *sql.DB, table string, mode core.PrimaryKeyMode, buf *sqlbuf.Buffer) error {
	inAux, err := tableExists(ctx, db, "aux", table)
	if err != nil {
		return err
	}
	inMain, err := tableExists(ctx, db, "main", table)
	if err != nil {
		return err
	}

	id := quote.Identifier(table)

	if !inAux {
		if inMain {
			buf.Printf("DROP TABLE %s;\n", id)
		}
		return nil
	}
	if !inMain {
		da, err := resolve.Table(ctx, db, "aux", table, mode)
		if err != nil {
			return err
		}
		if !da.Usable {
			return fmt.Errorf("classicdiff: table %q unresolvable in aux", table)
		}
		return Dump(ctx, db, table, da, buf)
	}

	dm, err := resolve.Table(ctx, db, "main", table, mode)
	if err != nil {
		return err
	}
	da, err := resolve.Table(ctx, db, "aux", table, mode)
	if err != nil {
		return err
	}
	if !dm.Usable || !da.Usable {
		return fmt.Errorf("classicdiff: table %q unresolvable", table)
	}

	if schemaMismatch(dm, da) {
		buf.Printf("DROP TABLE %s; -- due to schema mismatch\n", id)
		return Dump(ctx, db, table, da, buf)
	}

	if err := dropStaleIndexes(ctx, db, table, buf); err != nil {
		return err
	}
	if err := rowDiff(ctx, db, table, dm, da, buf); err != nil {
		return err
	}
	return createMissingIndexes(ctx, db, table, buf)
}

func tableExists(ctx context.Context, db *sql.DB, dbTag, table string) (bool, error) {
	q := fmt.Sprintf("SELECT 1 FROM %s.sqlite_master WHERE type='table' AND name=?", quote.Identifier(dbTag))
	var one int
	err := db.QueryRowContext(ctx, q, table).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("table exists: %w", err)
	}
	return true, nil
}

// schemaMismatch reports whether dm and da disagree on PK arity or on
// the names of their shared column prefix. A prefix-only mismatch is
// distinguished from da simply having extra trailing columns.
func schemaMismatch(dm, da *core.TableDescriptor) bool {
	if dm.PKArity != da.PKArity {
		return true
	}
	n := len(dm.Columns)
	if n > len(da.Columns) {
		return true
	}
	for i := 0; i < n; i++ {
		if dm.Columns[i] != da.Columns[i] {
			return true
		}
	}
	return false
}

func dropStaleIndexes(ctx context.Context, db *sql.DB, table string, buf *sqlbuf.Buffer) error {
	q := `SELECT name FROM main.sqlite_master
		WHERE type='index' AND tbl_name=? AND sql IS NOT NULL
		  AND sql NOT IN (SELECT sql FROM aux.sqlite_master
		                   WHERE type='index' AND tbl_name=? AND sql IS NOT NULL)`
	rows, err := db.QueryContext(ctx, q, table, table)
	if err != nil {
		return fmt.Errorf("drop stale indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan stale index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range names {
		buf.Printf("DROP INDEX %s;\n", quote.Identifier(name))
	}
	return nil
}

func createMissingIndexes(ctx context.Context, db *sql.DB, table string, buf *sqlbuf.Buffer) error {
	q := `SELECT sql FROM aux.sqlite_master
		WHERE type='index' AND tbl_name=? AND sql IS NOT NULL
		  AND sql NOT IN (SELECT sql FROM main.sqlite_master
		                   WHERE type='index' AND tbl_name=? AND sql IS NOT NULL)`
	rows, err := db.QueryContext(ctx, q, table, table)
	if err != nil {
		return fmt.Errorf("create missing indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sqlText string
		if err := rows.Scan(&sqlText); err != nil {
			return fmt.Errorf("scan missing index sql: %w", err)
		}
		buf.WriteString(sqlText)
		buf.WriteString(";\n")
	}
	return rows.Err()
}

// rowDiff builds the three-way UNION ALL comparison query (update,
// delete, insert) and emits one statement per returned row.
func rowDiff(ctx context.Context, db *sql.DB, table string, dm, da *core.TableDescriptor, buf *sqlbuf.Buffer) error {
	nPk := dm.PKArity
	extra := da.Columns[len(dm.Columns):]
	for _, c := range extra {
		buf.Printf("ALTER TABLE %s ADD COLUMN %s;\n", quote.Identifier(table), quote.Identifier(c))
	}

	hasData := len(da.Columns) > nPk
	q := buildRowDiffQuery(table, dm, da, hasData)

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("row diff query for %s: %w", table, err)
	}
	defer rows.Close()

	nQ := nPk + 1 + 2*(len(da.Columns)-nPk)
	dest := make([]any, nQ)
	ptrs := make([]any, nQ)
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	id := quote.Identifier(table)
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row diff result: %w", err)
		}
		tag := core.ValueFromAny(dest[nPk]).Integer

		switch tag {
		case 1:
			emitUpdate(buf, id, da, dest, nPk, nQ)
		case 2:
			emitDelete(buf, id, da, dest, nPk)
		default:
			emitInsert(buf, id, da, dest, nPk, nQ)
		}
	}
	return rows.Err()
}

func emitUpdate(buf *sqlbuf.Buffer, id string, da *core.TableDescriptor, dest []any, nPk, nQ int) {
	buf.Printf("UPDATE %s", id)
	sep := " SET"
	for i := nPk + 1; i < nQ; i += 2 {
		changed := core.ValueFromAny(dest[i]).Integer
		if changed == 0 {
			continue
		}
		col := da.Columns[(i+nPk-1)/2]
		buf.Printf("%s %s=%s", sep, quote.Identifier(col), literal.Format(core.ValueFromAny(dest[i+1])))
		sep = ","
	}
	emitWhere(buf, da, dest, nPk)
}

func emitDelete(buf *sqlbuf.Buffer, id string, da *core.TableDescriptor, dest []any, nPk int) {
	buf.Printf("DELETE FROM %s", id)
	emitWhere(buf, da, dest, nPk)
}

func emitWhere(buf *sqlbuf.Buffer, da *core.TableDescriptor, dest []any, nPk int) {
	sep := " WHERE"
	for i := 0; i < nPk; i++ {
		buf.Printf("%s %s=%s", sep, quote.Identifier(da.Columns[i]), literal.Format(core.ValueFromAny(dest[i])))
		sep = " AND"
	}
	buf.WriteString(";\n")
}

func emitInsert(buf *sqlbuf.Buffer, id string, da *core.TableDescriptor, dest []any, nPk, nQ int) {
	cols := make([]string, len(da.Columns))
	for i, c := range da.Columns {
		cols[i] = quote.Identifier(c)
	}
	buf.Printf("INSERT INTO %s(%s) VALUES(", id, strings.Join(cols, ","))
	for i := 0; i < nPk; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(literal.Format(core.ValueFromAny(dest[i])))
	}
	for i := nPk + 2; i < nQ; i += 2 {
		buf.WriteByte(',')
		buf.WriteString(literal.Format(core.ValueFromAny(dest[i])))
	}
	buf.WriteString(");\n")
}

// buildRowDiffQuery assembles the three-branch UNION ALL SELECT: an
// optional update branch (only when aux has non-PK columns), a delete
// branch, and an insert branch.
func buildRowDiffQuery(table string, dm, da *core.TableDescriptor, hasData bool) string {
	var b strings.Builder
	id := quote.Identifier(table)
	n := len(dm.Columns)
	n2 := len(da.Columns)
	nPk := dm.PKArity

	if hasData {
		b.WriteString("SELECT ")
		for i := 0; i < nPk; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "B.%s", quote.Identifier(dm.Columns[i]))
		}
		if nPk == n2 {
			b.WriteString(", 1 -- changed row\n")
		} else {
			b.WriteString(", 1, -- changed row\n")
		}
		for i := nPk; i < n; i++ {
			col := quote.Identifier(dm.Columns[i])
			sep := ","
			if i == n2-1 {
				sep = ""
			}
			fmt.Fprintf(&b, "       A.%s IS NOT B.%s, B.%s%s\n", col, col, col, sep)
		}
		for i := n; i < n2; i++ {
			col := quote.Identifier(da.Columns[i])
			sep := ","
			if i == n2-1 {
				sep = ""
			}
			fmt.Fprintf(&b, "       B.%s IS NOT NULL, B.%s%s\n", col, col, sep)
		}
		fmt.Fprintf(&b, "  FROM main.%s A, aux.%s B\n", id, id)
		sep := " WHERE"
		for i := 0; i < nPk; i++ {
			col := quote.Identifier(dm.Columns[i])
			fmt.Fprintf(&b, "%s A.%s=B.%s", sep, col, col)
			sep = " AND"
		}
		sep = "\n   AND ("
		for i := nPk; i < n; i++ {
			col := quote.Identifier(dm.Columns[i])
			closeParen := ""
			if i == n2-1 {
				closeParen = ")"
			}
			fmt.Fprintf(&b, "%sA.%s IS NOT B.%s%s\n", sep, col, col, closeParen)
			sep = "        OR "
		}
		for i := n; i < n2; i++ {
			col := quote.Identifier(da.Columns[i])
			closeParen := ""
			if i == n2-1 {
				closeParen = ")"
			}
			fmt.Fprintf(&b, "%sB.%s IS NOT NULL%s\n", sep, col, closeParen)
			sep = "        OR "
		}
		b.WriteString(" UNION ALL\n")
	}

	b.WriteString("SELECT ")
	for i := 0; i < nPk; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "A.%s", quote.Identifier(dm.Columns[i]))
	}
	if nPk == n2 {
		b.WriteString(", 2 -- deleted row\n")
	} else {
		b.WriteString(", 2, -- deleted row\n")
	}
	for i := nPk; i < n; i++ {
		sep := ","
		if i == n2-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "       NULL, NULL%s\n", sep)
	}
	for i := n; i < n2; i++ {
		sep := ","
		if i == n2-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "       NULL, NULL%s\n", sep)
	}
	fmt.Fprintf(&b, "  FROM main.%s A\n", id)
	fmt.Fprintf(&b, " WHERE NOT EXISTS(SELECT 1 FROM aux.%s B\n", id)
	sep := "                   WHERE"
	for i := 0; i < nPk; i++ {
		col := quote.Identifier(dm.Columns[i])
		fmt.Fprintf(&b, "%s A.%s=B.%s", sep, col, col)
		sep = " AND"
	}
	b.WriteString(")\n")

	b.WriteString(" UNION ALL\nSELECT ")
	for i := 0; i < nPk; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "B.%s", quote.Identifier(da.Columns[i]))
	}
	if nPk == n2 {
		b.WriteString(", 3 -- inserted row\n")
	} else {
		b.WriteString(", 3, -- inserted row\n")
	}
	for i := nPk; i < n; i++ {
		col := quote.Identifier(da.Columns[i])
		sep := ","
		if i == n2-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "       1, B.%s%s\n", col, sep)
	}
	for i := n; i < n2; i++ {
		col := quote.Identifier(da.Columns[i])
		sep := ","
		if i == n2-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "       1, B.%s%s\n", col, sep)
	}
	fmt.Fprintf(&b, "  FROM aux.%s B\n", id)
	fmt.Fprintf(&b, " WHERE NOT EXISTS(SELECT 1 FROM main.%s A\n", id)
	sep = "                   WHERE"
	for i := 0; i < nPk; i++ {
		col := quote.Identifier(dm.Columns[i])
		fmt.Fprintf(&b, "%s A.%s=B.%s", sep, col, col)
		sep = " AND"
	}
	b.WriteString(")\n ORDER BY")
	sep = " "
	for i := 1; i <= nPk; i++ {
		fmt.Fprintf(&b, "%s%d", sep, i)
		sep = ", "
	}
	b.WriteString(";\n")

	return b.String()
}
