// Package config implements component K: building a core.Tunables value
// from compiled-in defaults, an optional TOML file, and CLI flag
// overrides, in increasing precedence.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/chinarulezzz/repqlite/internal/core"
)

// File is the TOML document shape accepted by --config, mirroring
// core.Tunables field-for-field.
type File struct {
	Event       string   `toml:"event"`
	Lib         []string `toml:"lib"`
	PrimaryKey  *bool    `toml:"primarykey"`
	RBU         *bool    `toml:"rbu"`
	Transaction *bool    `toml:"transaction"`
	Verbose     *bool    `toml:"verbose"`
	Debug       *int     `toml:"debug"`
}

// Overrides holds CLI flag values; a nil pointer (or nil slice) means
// "flag not set", so it doesn't override a lower-precedence layer.
type Overrides struct {
	Event       *string
	Lib         []string
	PrimaryKey  *bool
	RBU         *bool
	Transaction *bool
	Verbose     *bool
	Debug       *int
}

// Load builds a core.Tunables from compiled-in defaults, optionally
// merging in a TOML file at configPath, then CLI overrides, in that
// order of increasing precedence. An unknown key in the TOML file is a
// configuration error.
func Load(configPath string, overrides Overrides) (core.Tunables, error) {
	t := core.DefaultTunables()

	if configPath != "" {
		f, err := loadFile(configPath)
		if err != nil {
			return core.Tunables{}, err
		}
		applyFile(&t, f)
	}

	applyOverrides(&t, overrides)
	t.Normalize()
	return t, nil
}

func loadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	meta, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
	}
	return &f, nil
}

func applyFile(t *core.Tunables, f *File) {
	if f.Event != "" {
		t.Event = parseEvent(f.Event)
	}
	if len(f.Lib) > 0 {
		t.ExtensionPaths = f.Lib
	}
	if f.PrimaryKey != nil && *f.PrimaryKey {
		t.PrimaryKeyMode = core.SchemaPK
	}
	if f.RBU != nil {
		t.RBU = *f.RBU
	}
	if f.Transaction != nil {
		t.Transaction = *f.Transaction
	}
	if f.Verbose != nil {
		t.Verbose = *f.Verbose
	}
	if f.Debug != nil {
		t.DebugMask = *f.Debug
	}
}

func applyOverrides(t *core.Tunables, o Overrides) {
	if o.Event != nil {
		t.Event = parseEvent(*o.Event)
	}
	if len(o.Lib) > 0 {
		t.ExtensionPaths = o.Lib
	}
	if o.PrimaryKey != nil {
		t.PrimaryKeyMode = core.TruePK
		if *o.PrimaryKey {
			t.PrimaryKeyMode = core.SchemaPK
		}
	}
	if o.RBU != nil {
		t.RBU = *o.RBU
	}
	if o.Transaction != nil {
		t.Transaction = *o.Transaction
	}
	if o.Verbose != nil {
		t.Verbose = *o.Verbose
	}
	if o.Debug != nil {
		t.DebugMask = *o.Debug
	}
}

func parseEvent(s string) core.EventKind {
	if s == "modify" {
		return core.EventModify
	}
	return core.EventCloseWrite
}
