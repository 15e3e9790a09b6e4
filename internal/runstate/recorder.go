package runstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder writes the records of pipeline runs through a Store: run.json at
// start and finish, one step record per terminal step and failure.json when
// the run fails.
type Recorder struct {
	Store *Store
}

// NewRecorder creates a recorder storing under baseDir.
func NewRecorder(baseDir string) (*Recorder, error) {
	store, err := NewStore(baseDir)
	if err != nil {
		return nil, err
	}
	return &Recorder{Store: store}, nil
}

// NewRunID returns a fresh random run identifier.
func (r *Recorder) NewRunID() string {
	return uuid.NewString()
}

func (r *Recorder) StartRun(run Run) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	if run.StartTime.IsZero() {
		run.StartTime = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	return r.Store.SaveRun(run)
}

func (r *Recorder) RecordStep(runID string, rec StepRecord) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	return r.Store.SaveStep(runID, rec)
}

func (r *Recorder) RecordFailure(runID string, err error) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	f, ferr := FailureFromError(err)
	if ferr != nil {
		return ferr
	}
	return r.Store.SaveFailure(runID, f)
}

// FinishRun stamps the end time and final status on a started run.
func (r *Recorder) FinishRun(runID string, status RunStatus) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return fmt.Errorf("loading run %s: %w", runID, err)
	}
	end := time.Now().UTC()
	if end.Before(run.StartTime) {
		end = run.StartTime
	}
	run.EndTime = &end
	run.Status = status
	return r.Store.SaveRun(run)
}
