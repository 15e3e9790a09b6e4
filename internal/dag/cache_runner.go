package dag

import (
	"context"
	"fmt"
	"time"

	"regsim/internal/core"
)

// NodeResult is the outcome of executing or replaying one node.
type NodeResult struct {
	Hash core.TaskHash

	// ExitCode is non-zero when the step failed; Err then holds the cause.
	ExitCode int
	Err      error

	FromCache         bool
	ArtifactsRestored int
	Restored          []string
	Artifacts         []string

	Started  time.Time
	Finished time.Time
}

// Duration is the wall time spent on the node.
func (r *NodeResult) Duration() time.Duration {
	if r == nil {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// CacheAwareRunner adapts core.Runner to the executor's TaskRunner.
type CacheAwareRunner struct {
	Runner *core.Runner
}

// NewCacheAwareRunner wraps r.
func NewCacheAwareRunner(r *core.Runner) (*CacheAwareRunner, error) {
	if r == nil {
		return nil, fmt.Errorf("nil core runner")
	}
	return &CacheAwareRunner{Runner: r}, nil
}

// Run executes the task, or replays it when its signature is cached.
func (r *CacheAwareRunner) Run(ctx context.Context, task core.Task) (*NodeResult, error) {
	res, err := r.Runner.Run(ctx, &task)
	if err != nil {
		return nil, err
	}
	return fromRunResult(res), nil
}

// Probe replays the task if its signature is cached.
func (r *CacheAwareRunner) Probe(_ context.Context, task core.Task) (*NodeResult, bool, error) {
	if r == nil || r.Runner == nil {
		return nil, false, fmt.Errorf("nil core runner")
	}
	res, err := r.Runner.Lookup(&task)
	if err != nil {
		return nil, false, err
	}
	if res == nil {
		return nil, false, nil
	}
	return fromRunResult(res), true, nil
}

func fromRunResult(res *core.RunResult) *NodeResult {
	return &NodeResult{
		Hash:              res.Hash,
		ExitCode:          res.ExitCode,
		Err:               res.Err,
		FromCache:         res.FromCache,
		ArtifactsRestored: res.ArtifactsRestored,
		Restored:          res.Restored,
		Artifacts:         res.Artifacts,
		Started:           res.Started,
		Finished:          res.Finished,
	}
}
