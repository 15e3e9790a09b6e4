package core

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"regsim/internal/dataio"
)

// ReplayResult describes a replayed cache entry.
type ReplayResult struct {
	Hash TaskHash

	// ArtifactsRestored counts the files that were missing or differed from
	// the cache. Matching files are not touched.
	ArtifactsRestored int
	Restored          []string

	// Paths lists every artifact of the entry.
	Paths []string
}

// Replayer writes cached artifacts back into a working directory.
type Replayer struct {
	WorkingDir string
}

func NewReplayer(workingDir string) *Replayer {
	return &Replayer{WorkingDir: workingDir}
}

// Replay makes every artifact of entry match the cached bytes exactly.
// Entries with an empty path or no stored content are rejected before
// anything is written.
func (r *Replayer) Replay(entry *CacheEntry) (*ReplayResult, error) {
	if r == nil {
		return nil, errors.New("replayer is nil")
	}
	if entry == nil {
		return nil, errors.New("cache entry is nil")
	}
	res := &ReplayResult{Hash: entry.Hash, Paths: make([]string, len(entry.Artifacts))}
	for i, a := range entry.Artifacts {
		switch {
		case a.Path == "":
			return nil, fmt.Errorf("entry %s: artifact %d has no path", entry.Hash, i)
		case a.Content == nil:
			return nil, fmt.Errorf("entry %s: artifact %s has no content", entry.Hash, a.Path)
		}
		res.Paths[i] = a.Path
	}

	for _, a := range entry.Artifacts {
		target := filepath.FromSlash(a.Path)
		if !filepath.IsAbs(target) {
			target = filepath.Join(r.WorkingDir, target)
		}
		current, err := os.ReadFile(target)
		if err == nil && bytes.Equal(current, a.Content) {
			continue
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("reading %s: %w", a.Path, err)
		}
		if err := dataio.WriteFileAtomic(target, a.Content, 0o644); err != nil {
			return res, fmt.Errorf("restoring %s: %w", a.Path, err)
		}
		res.Restored = append(res.Restored, a.Path)
	}
	res.ArtifactsRestored = len(res.Restored)
	return res, nil
}
