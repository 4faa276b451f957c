// Package pass implements component I: opening a primary database and
// its backup, diffing every shared table, and appending the resulting
// patch to a journal sink.
package pass

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/chinarulezzz/repqlite/internal/classicdiff"
	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/rbudiff"
	"github.com/chinarulezzz/repqlite/internal/sqlbuf"
)

// NoDiff is returned as the replay offset when a pass produced no patch
// content beyond its header and its BEGIN/COMMIT bracket.
const NoDiff = -1

var (
	driverMu    sync.Mutex
	driverSeq   int
	driverNames = make(map[string]string)
)

// registeredDriver returns the sql driver name registered to load
// extensionPaths on every connection, registering it once per distinct
// path set rather than once per Open call — concurrent passes that
// share the same --lib configuration reuse the same driver instead of
// racing sql.Register under unique, ever-growing names.
func registeredDriver(extensionPaths []string) string {
	key := strings.Join(extensionPaths, "\x00")

	driverMu.Lock()
	defer driverMu.Unlock()

	if name, ok := driverNames[key]; ok {
		return name
	}

	driverSeq++
	name := fmt.Sprintf("sqlite3_repqlite_%d", driverSeq)
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, p := range extensionPaths {
				if err := conn.LoadExtension(p, ""); err != nil {
					return fmt.Errorf("load extension %s: %w", p, err)
				}
			}
			return nil
		},
	})
	driverNames[key] = name
	return name
}

// Open opens primaryPath as the "main" database and attaches backupPath
// as "aux", loading every path in extensionPaths into the connection
// first. It retries transient "database is locked" errors with an
// exponential backoff, the way a driver colliding with an in-flight
// writer on the same file would clear up on its own within a second or
// two.
func Open(ctx context.Context, primaryPath, backupPath string, extensionPaths []string) (*sql.DB, error) {
	driverName := "sqlite3"
	if len(extensionPaths) > 0 {
		driverName = registeredDriver(extensionPaths)
	}

	var db *sql.DB
	open := func() error {
		conn, err := sql.Open(driverName, primaryPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("open primary %s: %w", primaryPath, err))
		}
		conn.SetMaxOpenConns(1)
		if err := verifyReadable(ctx, conn, "main"); err != nil {
			_ = conn.Close()
			if isLocked(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if _, err := conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE %s AS aux", sqlQuoteLiteral(backupPath))); err != nil {
			_ = conn.Close()
			wrapped := fmt.Errorf("attach backup %s: %w", backupPath, err)
			if isLocked(err) {
				return wrapped
			}
			return backoff.Permanent(wrapped)
		}
		if err := verifyReadable(ctx, conn, "aux"); err != nil {
			_ = conn.Close()
			if isLocked(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		db = conn
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(open, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return db, nil
}

func isLocked(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func verifyReadable(ctx context.Context, db *sql.DB, dbTag string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s.sqlite_master LIMIT 1", dbTag))
	if err != nil {
		return fmt.Errorf("verify %s readable: %w", dbTag, err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

// Run executes one pass: it enumerates every table present on either
// side, diffs each in table-name order, and appends the resulting
// patch text to sink. It returns the byte offset the replay segment
// starts at, or NoDiff if the pass produced no statements.
func Run(ctx context.Context, db *sql.DB, sink Sink, tunables core.Tunables) (int64, error) {
	preOffset, err := sink.Offset()
	if err != nil {
		return 0, fmt.Errorf("pass: read sink offset: %w", err)
	}

	buf := sqlbuf.New()
	buf.Printf("-- %s\n", time.Now().UTC().Format(time.RFC3339))

	if tunables.Transaction {
		buf.WriteString("BEGIN TRANSACTION;\n")
	}
	bodyStart := buf.Len()

	tables, err := listTables(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("pass: %w", err)
	}

	for _, table := range tables {
		if tunables.RBU {
			if err := rbudiff.Table(ctx, db, table, buf); err != nil {
				return 0, fmt.Errorf("pass: %w", err)
			}
			continue
		}
		if err := classicdiff.Table(ctx, db, table, tunables.PrimaryKeyMode, buf); err != nil {
			return 0, fmt.Errorf("pass: %w", err)
		}
	}
	produced := buf.Len() > bodyStart

	if tunables.Transaction {
		buf.WriteString("COMMIT;\n")
	}

	if _, err := sink.Write([]byte(buf.String())); err != nil {
		return 0, fmt.Errorf("pass: write sink: %w", err)
	}

	if !produced {
		return NoDiff, nil
	}
	return preOffset, nil
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM main.sqlite_master
		WHERE type='table' AND sql NOT LIKE 'CREATE VIRTUAL%'
		UNION
		SELECT name FROM aux.sqlite_master
		WHERE type='table' AND sql NOT LIKE 'CREATE VIRTUAL%'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: scan: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func sqlQuoteLiteral(path string) string {
	return "'" + strings.ReplaceAll(path, "'", "''") + "'"
}
