package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Runner executes one task with signature-based caching:
//
//  1. resolve inputs and compute the TaskHash
//  2. on a cache hit, replay the artifacts and return
//  3. otherwise execute; on success harvest the declared outputs and cache
//     them, on failure cache nothing
//
// A nil Cache disables caching: every task executes.
type Runner struct {
	WorkingDir string
	Cache      Cache
	Executor   *Executor
	Resolver   *InputResolver
	Hasher     *TaskHasher
	Harvester  *Harvester
	Replayer   *Replayer
	Logger     *zap.Logger
}

// NewRunner creates a Runner rooted at workingDir.
func NewRunner(workingDir string, cache Cache) *Runner {
	return &Runner{
		WorkingDir: workingDir,
		Cache:      cache,
		Executor:   NewExecutor(workingDir),
		Resolver:   NewInputResolver(workingDir),
		Hasher:     NewTaskHasher(),
		Harvester:  NewHarvester(workingDir),
		Replayer:   NewReplayer(workingDir),
		Logger:     zap.NewNop(),
	}
}

// RunResult is the outcome of running a task.
type RunResult struct {
	Hash TaskHash

	// ExitCode is 0 on success, non-zero when the step failed.
	ExitCode int

	// Err is the step failure, nil on success or replay.
	Err error

	FromCache         bool
	ArtifactsRestored int

	// Restored lists the artifacts a replay had to rewrite.
	Restored []string

	// Artifacts lists the paths produced (or replayed) by the task.
	Artifacts []string

	Started  time.Time
	Finished time.Time
}

// Duration is the wall time spent on the task.
func (r *RunResult) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Signature resolves the task's inputs and returns its TaskHash.
func (r *Runner) Signature(task *Task) (TaskHash, error) {
	if err := validateTask(task); err != nil {
		return "", err
	}
	inputs, err := r.Resolver.Resolve(task.Inputs)
	if err != nil {
		return "", fmt.Errorf("resolving inputs: %w", err)
	}
	return r.Hasher.ComputeHash(HashInput{
		Inputs:     inputs,
		Kind:       task.Kind,
		Params:     task.Params,
		Outputs:    task.Outputs,
		WorkingDir: r.WorkingDir,
	}), nil
}

// Lookup replays the cache entry of task if there is one. It returns
// (nil, nil) on a miss or when caching is disabled.
func (r *Runner) Lookup(task *Task) (*RunResult, error) {
	started := time.Now()
	hash, err := r.Signature(task)
	if err != nil {
		return nil, err
	}
	return r.lookup(task, hash, started)
}

// Run executes task or replays it from cache.
func (r *Runner) Run(ctx context.Context, task *Task) (*RunResult, error) {
	started := time.Now()
	hash, err := r.Signature(task)
	if err != nil {
		return nil, err
	}
	res, err := r.lookup(task, hash, started)
	if err != nil || res != nil {
		return res, err
	}
	return r.execute(ctx, task, hash)
}

func (r *Runner) lookup(task *Task, hash TaskHash, started time.Time) (*RunResult, error) {
	if r.Cache == nil {
		return nil, nil
	}
	exists, err := r.Cache.Has(hash)
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}
	if !exists {
		return nil, nil
	}
	return r.replayFromCache(task, hash, started)
}

func validateTask(task *Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if task.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if task.Kind == "" {
		return fmt.Errorf("task %q: kind is required", task.Name)
	}
	return nil
}

func (r *Runner) replayFromCache(task *Task, hash TaskHash, started time.Time) (*RunResult, error) {
	entry, err := r.Cache.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("retrieving cache entry: %w", err)
	}
	if entry == nil {
		r.logger().Warn("cache entry unusable, executing step",
			zap.String("step", task.Name),
			zap.String("hash", hash.String()))
		return nil, nil
	}
	replayed, err := r.Replayer.Replay(entry)
	if err != nil {
		return nil, fmt.Errorf("replaying cached result: %w", err)
	}
	r.logger().Debug("step replayed from cache",
		zap.String("step", task.Name),
		zap.String("hash", hash.String()),
		zap.Int("restored", replayed.ArtifactsRestored))
	return &RunResult{
		Hash:              hash,
		FromCache:         true,
		ArtifactsRestored: replayed.ArtifactsRestored,
		Restored:          replayed.Restored,
		Artifacts:         replayed.Paths,
		Started:           started,
		Finished:          time.Now(),
	}, nil
}

func (r *Runner) execute(ctx context.Context, task *Task, hash TaskHash) (*RunResult, error) {
	started := time.Now()
	if err := r.CleanArtifacts(task.Outputs); err != nil {
		return nil, err
	}

	execResult, err := r.Executor.Execute(ctx, task, hash)
	if err != nil {
		return nil, fmt.Errorf("executing task: %w", err)
	}
	res := &RunResult{Hash: hash, ExitCode: execResult.ExitCode, Err: execResult.Err, Started: started}
	if execResult.ExitCode != 0 {
		res.Finished = time.Now()
		return res, nil
	}

	artifacts, err := r.Harvester.Harvest(task.Outputs)
	if err != nil {
		// The step claimed success but broke its output contract.
		res.ExitCode = 1
		res.Err = fmt.Errorf("harvesting artifacts: %w", err)
		res.Finished = time.Now()
		return res, nil
	}
	res.Artifacts = artifacts.Paths()

	if r.Cache != nil {
		entry := &CacheEntry{Hash: hash, Artifacts: make([]CachedArtifact, len(artifacts.Artifacts))}
		for i, a := range artifacts.Artifacts {
			entry.Artifacts[i] = CachedArtifact{Path: a.Path, Content: a.Content}
		}
		if err := r.Cache.Put(entry); err != nil {
			return nil, fmt.Errorf("caching result: %w", err)
		}
	}
	res.Finished = time.Now()
	return res, nil
}

// CleanArtifacts removes the declared outputs so a failing step cannot
// leave a stale file behind that a downstream step would accept.
func (r *Runner) CleanArtifacts(outputs []string) error {
	for _, output := range outputs {
		full := filepath.FromSlash(output)
		if !filepath.IsAbs(full) {
			full = filepath.Join(r.WorkingDir, full)
		}
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("removing %q: %w", output, err)
		}
	}
	return nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
