// Package replay implements component J: re-opening a single database
// and executing a previously written patch file starting at a given
// byte offset, one logical statement per line.
package replay

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
)

// Result records one statement's outcome, so a caller can report
// per-statement failures without the whole replay aborting.
type Result struct {
	Statement string
	Err       error
}

// File opens the patch file at path and replays every logical statement
// found in it, starting at offset, against db. Execution errors are collected in
// the returned slice rather than aborting the replay of subsequent
// statements, matching the source tool's sqlPatch loop.
func File(ctx context.Context, db *sql.DB, path string, offset int64) ([]Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("replay %s: seek to %d: %w", path, offset, err)
	}

	return Statements(ctx, db, f)
}

// Statements reads logical statements from r and executes each in turn
// against db.
func Statements(ctx context.Context, db *sql.DB, r io.Reader) ([]Result, error) {
	var results []Result
	reader := bufio.NewReader(r)
	for {
		stmt, err := nextStatement(reader)
		if stmt != "" {
			_, execErr := db.ExecContext(ctx, stmt)
			results = append(results, Result{Statement: stmt, Err: execErr})
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return results, fmt.Errorf("replay: read statement: %w", err)
		}
	}
	return results, nil
}

// nextStatement reads one logical line: a run of bytes terminated by an
// unquoted newline. Only double-quote state is tracked, so a newline
// embedded inside a double-quoted identifier does not end the statement
// early; a newline inside a single-quoted string literal does.
func nextStatement(r *bufio.Reader) (string, error) {
	var buf []byte
	inQuote := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if len(buf) == 0 {
					return "", io.EOF
				}
				return string(buf), io.EOF
			}
			return "", err
		}

		if b == '"' {
			inQuote = !inQuote
		}

		if b == '\n' && !inQuote {
			return trimTrailingCR(buf), nil
		}
		buf = append(buf, b)
	}
}

func trimTrailingCR(buf []byte) string {
	if n := len(buf); n > 0 && buf[n-1] == '\r' {
		buf = buf[:n-1]
	}
	return string(buf)
}
