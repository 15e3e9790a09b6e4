package core

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// InputResolver turns the declared inputs of a step into an InputSet.
type InputResolver struct {
	// BaseDir anchors relative patterns.
	BaseDir string
}

func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands every pattern to regular files, drops duplicates, sorts
// by path and loads each file.
//
// A literal path must exist: a step whose upstream did not write its input
// is never hashed or run. A glob may match nothing. Directories are
// ignored either way.
func (r *InputResolver) Resolve(patterns []string) (*InputSet, error) {
	found := make(map[string]string)
	for _, pattern := range patterns {
		if err := r.expand(pattern, found); err != nil {
			return nil, fmt.Errorf("resolving input %q: %w", pattern, err)
		}
	}

	set := &InputSet{Inputs: make([]Input, 0, len(found))}
	for _, rel := range slices.Sorted(maps.Keys(found)) {
		content, err := os.ReadFile(found[rel])
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", rel, err)
		}
		set.Inputs = append(set.Inputs, Input{Path: rel, Content: content})
	}
	return set, nil
}

// expand adds the files matched by pattern to found, keyed by their
// slash-separated display path.
func (r *InputResolver) expand(pattern string, found map[string]string) error {
	native := filepath.FromSlash(pattern)
	abs := filepath.IsAbs(native)
	if !abs {
		native = filepath.Join(r.BaseDir, native)
	}

	candidates := []string{native}
	if strings.ContainsAny(pattern, "*?[]") {
		matches, err := filepath.Glob(native)
		if err != nil {
			return err
		}
		candidates = matches
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no such file: %s", pattern)
		}
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		key := c
		if !abs {
			if rel, err := filepath.Rel(r.BaseDir, c); err == nil {
				key = rel
			}
		}
		found[filepath.ToSlash(key)] = c
	}
	return nil
}
