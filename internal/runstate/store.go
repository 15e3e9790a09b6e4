package runstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"regsim/internal/dataio"
)

// StateDir holds run records under the base directory.
const StateDir = ".regsim"

const (
	runFile     = "run.json"
	failureFile = "failure.json"
	stepsDir    = "steps"
)

// Store keeps run records on disk:
//
//	<base>/.regsim/runs/<run-id>/run.json
//	<base>/.regsim/runs/<run-id>/steps/<step>.json
//	<base>/.regsim/runs/<run-id>/failure.json
//
// Records are validated on the way in and on the way out, and each file is
// replaced atomically.
type Store struct {
	root string
}

func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("baseDir is required")
	}
	return &Store{root: filepath.Join(baseDir, StateDir, "runs")}, nil
}

// RunDir is the directory holding the records of runID.
func (s *Store) RunDir(runID string) string { return filepath.Join(s.root, runID) }

// ListRunIDs returns the IDs of every recorded run in lexical order, or nil
// when nothing was recorded yet.
func (s *Store) ListRunIDs() ([]string, error) {
	if s == nil {
		return nil, errors.New("nil Store")
	}
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) SaveRun(run Run) error {
	return save(filepath.Join(s.RunDir(run.RunID), runFile), run, "run")
}

func (s *Store) LoadRun(runID string) (Run, error) {
	if err := requireID("runID", runID); err != nil {
		return Run{}, err
	}
	return load[Run](filepath.Join(s.RunDir(runID), runFile), "run")
}

// SaveStep writes the record of one terminal step. A nil Outputs is stored
// as an empty array.
func (s *Store) SaveStep(runID string, rec StepRecord) error {
	if err := requireID("runID", runID); err != nil {
		return err
	}
	if rec.Outputs == nil {
		rec.Outputs = []string{}
	}
	return save(s.stepPath(runID, rec.Step), rec, "step record")
}

func (s *Store) LoadStep(runID, step string) (StepRecord, error) {
	if err := errors.Join(requireID("runID", runID), requireID("step", step)); err != nil {
		return StepRecord{}, err
	}
	return load[StepRecord](s.stepPath(runID, step), "step record")
}

// LoadAllSteps loads every step record of runID keyed by step name. A run
// with no step records yields an empty map.
func (s *Store) LoadAllSteps(runID string) (map[string]StepRecord, error) {
	if err := requireID("runID", runID); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(s.RunDir(runID), stepsDir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := make(map[string]StepRecord, len(files))
	for _, f := range files {
		step := strings.TrimSuffix(filepath.Base(f), ".json")
		rec, err := load[StepRecord](f, "step record")
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step, err)
		}
		out[step] = rec
	}
	return out, nil
}

func (s *Store) SaveFailure(runID string, failure Failure) error {
	if err := requireID("runID", runID); err != nil {
		return err
	}
	return save(filepath.Join(s.RunDir(runID), failureFile), failure, "failure")
}

func (s *Store) LoadFailure(runID string) (Failure, error) {
	if err := requireID("runID", runID); err != nil {
		return Failure{}, err
	}
	return load[Failure](filepath.Join(s.RunDir(runID), failureFile), "failure")
}

func (s *Store) stepPath(runID, step string) string {
	return filepath.Join(s.RunDir(runID), stepsDir, step+".json")
}

func requireID(what, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s is required", what)
	}
	return nil
}

type record interface{ Validate() error }

func save(path string, v record, what string) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid %s: %w", what, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", what, err)
	}
	if err := dataio.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", what, err)
	}
	return nil
}

// load decodes exactly one JSON document with no unknown fields and
// validates it.
func load[T record](path, what string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decoding %s: %w", what, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return v, fmt.Errorf("decoding %s: trailing content", what)
	}
	if err := v.Validate(); err != nil {
		return v, fmt.Errorf("invalid %s on disk: %w", what, err)
	}
	return v, nil
}
