// Package main contains the CLI implementation of repqlite. It uses
// the cobra package for CLI tool implementation, the way smf's own
// cmd/smf/main.go builds its command tree.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/chinarulezzz/repqlite/internal/config"
	"github.com/chinarulezzz/repqlite/internal/core"
	"github.com/chinarulezzz/repqlite/internal/pass"
	"github.com/chinarulezzz/repqlite/internal/replay"
	"github.com/chinarulezzz/repqlite/internal/watch"
)

// sqlOpenBackup opens a bare *sql.DB against a backup file, for replay —
// a plain single-database handle, unlike pass.Open's primary+attached-aux pair.
func sqlOpenBackup(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open backup %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

type sharedFlags struct {
	configPath  string
	event       string
	lib         []string
	primaryKey  bool
	rbu         bool
	transaction bool
	verbose     bool
	debug       int
}

func (f *sharedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to a TOML tunables file")
	cmd.Flags().StringVar(&f.event, "event", "close_write", "Which filesystem event triggers a pass: close_write|modify")
	cmd.Flags().StringArrayVarP(&f.lib, "lib", "L", nil, "Load a SQLite extension before each pass (repeatable)")
	cmd.Flags().BoolVar(&f.primaryKey, "primarykey", false, "Force schema-PK mode in classic diff")
	cmd.Flags().BoolVar(&f.rbu, "rbu", false, "Emit RBU data_<table> format instead of classic")
	cmd.Flags().BoolVar(&f.transaction, "transaction", true, "Wrap pass output in BEGIN/COMMIT")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Set the verbose tunable (no progress output is printed)")
	cmd.Flags().IntVar(&f.debug, "debug", 0, "Set the debug bit mask tunable (no dumps are produced)")
}

func (f *sharedFlags) tunables(cmd *cobra.Command) (core.Tunables, error) {
	o := config.Overrides{}
	if cmd.Flags().Changed("event") {
		o.Event = &f.event
	}
	if len(f.lib) > 0 {
		o.Lib = f.lib
	}
	if cmd.Flags().Changed("primarykey") {
		o.PrimaryKey = &f.primaryKey
	}
	if cmd.Flags().Changed("rbu") {
		o.RBU = &f.rbu
	}
	if cmd.Flags().Changed("transaction") {
		o.Transaction = &f.transaction
	}
	if cmd.Flags().Changed("verbose") {
		o.Verbose = &f.verbose
	}
	if cmd.Flags().Changed("debug") {
		o.Debug = &f.debug
	}
	return config.Load(f.configPath, o)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "repqlite",
		Short: "Keep SQLite backup replicas in eventual agreement with their primaries",
	}

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(diffCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watchCmd() *cobra.Command {
	flags := &sharedFlags{}
	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Watch a directory and keep backups in sync with their primaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tun, err := flags.tunables(cmd)
			if err != nil {
				return err
			}
			return runWatch(args[0], tun)
		},
	}
	flags.register(cmd)
	return cmd
}

func runWatch(root string, tun core.Tunables) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT)
	defer cancel()

	runOne := func(ctx context.Context, root, name string) error {
		return watchAndApply(ctx, root, name, tun)
	}

	w := watch.New(root, tun.Event, runOne, 4)
	return w.Run(ctx)
}

// watchAndApply runs one pass for the database named name rooted at
// root, then immediately replays the patch segment the pass just wrote
// onto the backup — the "diff → append → replay" loop spec.md's
// orchestration describes as a single step.
func watchAndApply(ctx context.Context, root, name string, tun core.Tunables) error {
	primaryPath := filepath.Join(root, name)
	backupPath := filepath.Join(root, "backup", name)
	patchPath := filepath.Join(root, "patches", name)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(patchPath), 0o755); err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}

	db, err := pass.Open(ctx, primaryPath, backupPath, tun.ExtensionPaths)
	if err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	defer db.Close()

	sink, err := pass.OpenFileSink(patchPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	defer sink.Close()

	offset, err := pass.Run(ctx, db, sink, tun)
	if err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	if offset == pass.NoDiff {
		return nil
	}

	backupDB, err := sqlOpenBackup(backupPath)
	if err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	defer backupDB.Close()

	if _, err := replay.File(ctx, backupDB, patchPath, offset); err != nil {
		return fmt.Errorf("watch %s: %w", name, err)
	}
	return nil
}

type diffFlags struct {
	sharedFlags
	output string
}

func diffCmd() *cobra.Command {
	flags := &diffFlags{}
	cmd := &cobra.Command{
		Use:   "diff <primary.db> <backup.db>",
		Short: "Run a single pass between two explicit database files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tun, err := flags.tunables(cmd)
			if err != nil {
				return err
			}
			return runDiff(args[0], args[1], flags.output, tun)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the patch text here instead of stdout")
	return cmd
}

func runDiff(primaryPath, backupPath, outPath string, tun core.Tunables) error {
	ctx := context.Background()
	db, err := pass.Open(ctx, primaryPath, backupPath, tun.ExtensionPaths)
	if err != nil {
		return err
	}
	defer db.Close()

	sink := &memorySink{}
	if _, err := pass.Run(ctx, db, sink, tun); err != nil {
		return err
	}

	if outPath == "" {
		fmt.Print(string(sink.data))
		return nil
	}
	return os.WriteFile(outPath, sink.data, 0o644)
}

type memorySink struct {
	data []byte
}

func (s *memorySink) Offset() (int64, error) { return int64(len(s.data)), nil }
func (s *memorySink) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

func replayCmd() *cobra.Command {
	var offset int64
	cmd := &cobra.Command{
		Use:   "replay <database.db> <patch-file>",
		Short: "Re-run a previously written patch file segment against a database",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runReplay(args[0], args[1], offset)
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "Byte offset in the patch file to start replaying from")
	return cmd
}

func runReplay(dbPath, patchPath string, offset int64) error {
	db, err := sqlOpenBackup(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := replay.File(context.Background(), db, patchPath, offset)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v: %s\n", r.Err, r.Statement)
		}
	}
	return nil
}
