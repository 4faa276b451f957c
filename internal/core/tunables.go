package core

// TableDescriptor is the resolved shape of a table on both sides of a
// diff: its column order and which prefix of columns forms the primary
// key.
type TableDescriptor struct {
	Name string

	// Columns holds every column in declaration order, except that when
	// ImplicitRowid is true the synthesized rowid-alias column is
	// prepended. The first PKArity entries are the primary-key columns
	// in key order; the rest are data columns.
	Columns []string

	// PKArity is the number of leading Columns entries that make up the
	// primary key. Always positive.
	PKArity int

	// ImplicitRowid is true when the primary key is a synthetic rowid
	// synonym (rowid, _rowid_, or oid) rather than a declared column.
	ImplicitRowid bool

	// Usable is false only for a rowid-based table whose three rowid
	// synonyms are all shadowed by declared columns; such tables are
	// skipped with a diagnostic rather than diffed.
	Usable bool
}

// DataColumns returns the non-primary-key suffix of Columns.
func (t *TableDescriptor) DataColumns() []string {
	return t.Columns[t.PKArity:]
}

// PKColumns returns the primary-key prefix of Columns.
func (t *TableDescriptor) PKColumns() []string {
	return t.Columns[:t.PKArity]
}

// EventKind names the filesystem event that triggers a pass.
type EventKind int

const (
	// EventCloseWrite fires once writes to a file have stopped for a
	// short settle delay, coalescing a burst of writes into one pass.
	EventCloseWrite EventKind = iota
	// EventModify fires immediately on every write, with no settle delay.
	EventModify
)

func (e EventKind) String() string {
	if e == EventModify {
		return "modify"
	}
	return "close_write"
}

// PrimaryKeyMode selects how component D resolves a table's primary key.
type PrimaryKeyMode int

const (
	// TruePK resolves the key SQLite actually locates rows by (PRAGMA
	// index_list / index_xinfo): an INTEGER PRIMARY KEY or a WITHOUT
	// ROWID table's declared key, and the rowid for every other rowid
	// table, including one whose declared PRIMARY KEY has its own index.
	TruePK PrimaryKeyMode = iota
	// SchemaPK uses the PRIMARY KEY columns declared in the table
	// definition (PRAGMA table_info), falling back to the rowid only when
	// none is declared. RBU mode forces this.
	SchemaPK
)

func (m PrimaryKeyMode) String() string {
	if m == SchemaPK {
		return "schema_pk"
	}
	return "true_pk"
}

// Tunables is the process-wide, read-only configuration value threaded
// explicitly through every component, replacing the file-scope globals
// the original tool kept.
type Tunables struct {
	// Event selects which filesystem event the watcher reacts to.
	Event EventKind

	// ExtensionPaths are SQLite loadable extensions loaded into every
	// connection before a pass runs.
	ExtensionPaths []string

	// PrimaryKeyMode selects component D's resolution strategy.
	PrimaryKeyMode PrimaryKeyMode

	// RBU selects the RBU insert-stream emitter (component G) over the
	// classic DDL/DML emitter (component E). Forces PrimaryKeyMode to
	// SchemaPK.
	RBU bool

	// Transaction wraps each pass's emitted patch, classic or RBU, in
	// BEGIN/COMMIT.
	Transaction bool

	// Verbose records the --verbose / config setting. No component reads
	// it; no progress or note diagnostics are printed.
	Verbose bool

	// DebugMask records the --debug / config bit mask. No component reads
	// it; no column lists or diff SQL are dumped.
	DebugMask int
}

// DefaultTunables returns the compiled-in defaults, the lowest-precedence
// layer the config loader starts from.
func DefaultTunables() Tunables {
	return Tunables{
		Event:          EventCloseWrite,
		PrimaryKeyMode: TruePK,
		RBU:            false,
		Transaction:    true,
		Verbose:        false,
		DebugMask:      0,
	}
}

// Normalize applies cross-field rules that hold regardless of where a
// Tunables value came from: RBU mode always implies schema-PK mode.
func (t *Tunables) Normalize() {
	if t.RBU {
		t.PrimaryKeyMode = SchemaPK
	}
}
