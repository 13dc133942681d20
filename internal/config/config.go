// Package config loads an optional luax.toml file used to seed the
// interpreter's require() search path, loop-iteration cap, and GC shim
// tuning before CLI flags / Options override it. Grounded on
// Creative-Workz-Studio-LLC-cpi-si-claude-code's system/lib/config's
// toml.DecodeFile + "missing file is not fatal" pattern, trimmed to this
// module's much smaller config surface.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// File is the on-disk shape of luax.toml.
type File struct {
	Require struct {
		Path  string `toml:"path"`
		CPath string `toml:"cpath"`
	} `toml:"require"`

	Limits struct {
		MaxLoopIterations int64 `toml:"max_loop_iterations"`
	} `toml:"limits"`

	GC struct {
		Mode     string `toml:"mode"` // "incremental" | "generational"
		Pause    int    `toml:"pause"`
		StepMul  int    `toml:"stepmul"`
		MinorMul int    `toml:"minormul"`
		MajorMul int    `toml:"majormul"`
	} `toml:"gc"`
}

// Load reads path (typically "luax.toml" in the working directory); a
// missing file returns a zero-value File and no error, matching the
// "project config is optional" convention the grounding example follows
// for config layers with no mandatory data.
func Load(path string) (*File, error) {
	var f File
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &f, nil
		}
		return nil, err
	}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ApplyTo merges f into opts wherever opts hasn't already set the
// corresponding field — Options values the caller set explicitly always
// win, matching spec.md SPEC_FULL's "Options takes precedence" layering.
func (f *File) ApplyTo(luaPath, luaCPath *string, maxLoopIterations *int64) {
	if *luaPath == "" {
		*luaPath = f.Require.Path
	}
	if *luaCPath == "" {
		*luaCPath = f.Require.CPath
	}
	if *maxLoopIterations == 0 {
		*maxLoopIterations = f.Limits.MaxLoopIterations
	}
}
