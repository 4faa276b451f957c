package classicdiff

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/sqlbuf"
)

func openAttached(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec("ATTACH DATABASE ':memory:' AS aux")
	require.NoError(t, err)
	return db
}

func TestTableSimpleInsertS1(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'x'), (2, 'y')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	require.Contains(t, buf.String(), `INSERT INTO t(a,b) VALUES(2,'y');`)
}

func TestTableSimpleUpdateS2(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'y')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	require.Contains(t, buf.String(), `UPDATE t SET b='y' WHERE a=1;`)
}

func TestTableDeleteAndAddColumnS3(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x'), (2, 'y')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT, c INTEGER)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'x', 9)`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	out := buf.String()
	require.Contains(t, out, "ALTER TABLE t ADD COLUMN c;")
	require.Contains(t, out, "UPDATE t SET c=9 WHERE a=1;")
	require.Contains(t, out, "DELETE FROM t WHERE a=2;")
}

func TestTableSchemaMismatchS4(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b INTEGER)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'x')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	out := buf.String()
	require.Contains(t, out, "DROP TABLE t; -- due to schema mismatch")
	require.Contains(t, out, "INSERT INTO t(a,b) VALUES(1,'x');")
}

func TestTableKeywordIdentifiersS6(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main."order" ("select" INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE aux."order" ("select" INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux."order" VALUES (1)`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "order", core.TruePK, buf))
	out := buf.String()
	require.Contains(t, out, `INSERT INTO "order"("select") VALUES(1);`)
}

func TestTableDroppedWhenAbsentFromAux(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	require.Contains(t, buf.String(), "DROP TABLE t;")
}

func TestTableNullDiffProducesNoStatements(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'x')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", core.TruePK, buf))
	require.Equal(t, "", buf.String())
}
