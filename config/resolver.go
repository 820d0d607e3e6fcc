package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/vmwire/errors"
	"github.com/wippyai/vmwire/programs"
)

// BuiltinPrefix marks a reference to a built-in program.
const BuiltinPrefix = "builtin:"

// Resolver maps program references to module binaries: "builtin:<name>"
// selects a built-in program, anything else is a file path relative to the
// resolver's directory.
type Resolver struct {
	dir string
}

// NewResolver creates a resolver for paths relative to dir.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

func (r *Resolver) Resolve(_ context.Context, ref string) ([]byte, error) {
	if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
		b, found := programs.Lookup(name)
		if !found {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Value(name).
				Detail("no built-in program %q (have %s)", name, strings.Join(programs.Names(), ", ")).
				Build()
		}
		return b, nil
	}
	path := ref
	if !filepath.IsAbs(path) && r.dir != "" {
		path = filepath.Join(r.dir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindIO, err, "read "+path)
	}
	return b, nil
}
