package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Harvester collects the declared outputs of a step after it succeeds.
// Files that were written but not declared are never collected.
type Harvester struct {
	// BaseDir anchors relative output paths.
	BaseDir string
}

// NewHarvester creates a harvester rooted at baseDir.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{BaseDir: baseDir}
}

// Harvest reads every declared output. A declared directory contributes all
// regular files below it. Artifact paths are relative to BaseDir when the
// declaration is relative, and the result is sorted by path.
//
// A declared output that does not exist is an error: the step claimed
// success without producing what it promised.
func (h *Harvester) Harvest(declaredOutputs []string) (*ArtifactSet, error) {
	if len(declaredOutputs) == 0 {
		return &ArtifactSet{Artifacts: []Artifact{}}, nil
	}

	var files []string
	for _, output := range declaredOutputs {
		full := filepath.FromSlash(output)
		if !filepath.IsAbs(full) {
			full = filepath.Join(h.BaseDir, full)
		}

		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("declared output does not exist: %s", output)
			}
			return nil, fmt.Errorf("stat output %q: %w", output, err)
		}
		if !info.IsDir() {
			files = append(files, full)
			continue
		}
		err = filepath.WalkDir(full, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("collecting files from %q: %w", output, err)
		}
	}

	artifacts := make([]Artifact, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		p := h.relative(f)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", p, err)
		}
		artifacts = append(artifacts, Artifact{Path: p, Content: content})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return &ArtifactSet{Artifacts: artifacts}, nil
}

func (h *Harvester) relative(full string) string {
	rel, err := filepath.Rel(h.BaseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}
