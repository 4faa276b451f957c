package rbudiff

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

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

func TestTableInsertUsesImplicitRowid(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'x'), (2, 'y')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", buf))
	out := buf.String()
	require.Contains(t, out, `CREATE TABLE IF NOT EXISTS 'data_t'(rbu_rowid, a, b, rbu_control);`)
	require.Contains(t, out, `INSERT INTO 'data_t' (rbu_rowid, a, b, rbu_control) VALUES(2,2,'y',0);`)
}

func TestTableUpdateMarksChangedColumn(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT, c TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x', 'p')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT, c TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, 'y', 'p')`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", buf))
	out := buf.String()
	require.Contains(t, out, `INSERT INTO 'data_t' (a, b, c, rbu_control) VALUES(1,'y',NULL,'.x.');`)
}

func TestTableDeleteMarksRbuControl(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, 'x')`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", buf))
	out := buf.String()
	require.Contains(t, out, `INSERT INTO 'data_t' (a, b, rbu_control) VALUES(1,NULL,1);`)
}

func TestTableSchemaMismatchIsAnError(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b INTEGER)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b TEXT)`)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.Error(t, Table(ctx, db, "t", buf))
}

// TestTableBLOBDeltaScenarioS5 mirrors the BLOB-delta end-to-end scenario:
// a 512-byte BLOB mutated at offsets 100..115 must be rewritten as a hex
// delta strictly shorter than the literal value, with an 'f' flag at the
// corresponding ota_control position.
func TestTableBLOBDeltaScenarioS5(t *testing.T) {
	ctx := context.Background()
	db := openAttached(t)

	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, 512)
	copy(dst, src)
	for i := 100; i < 116; i++ {
		dst[i] = 0
	}

	_, err := db.ExecContext(ctx, `CREATE TABLE main.t (a INTEGER PRIMARY KEY, b BLOB)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO main.t VALUES (1, ?)`, src)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `CREATE TABLE aux.t (a INTEGER PRIMARY KEY, b BLOB)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO aux.t VALUES (1, ?)`, dst)
	require.NoError(t, err)

	buf := sqlbuf.New()
	require.NoError(t, Table(ctx, db, "t", buf))
	out := buf.String()

	const prefix = `INSERT INTO 'data_t' (a, b, rbu_control) VALUES(1,x'`
	require.Contains(t, out, prefix)
	require.Contains(t, out, `,'.f');`)

	start := strings.Index(out, prefix) + len(prefix)
	end := strings.Index(out[start:], "'")
	require.Greater(t, end, 0)
	require.Less(t, end/2, len(dst))
}
