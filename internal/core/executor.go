package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// StepContext is what a StepFunc sees of the runtime.
type StepContext struct {
	Task       *Task
	WorkingDir string
	Logger     *zap.Logger
}

// StepFunc performs the work of one step kind. A returned error fails the
// step; it is carried unchanged in ExecutionResult.Err so callers can
// classify it with errors.As.
type StepFunc func(ctx context.Context, sc StepContext) error

// ExecutionResult is the outcome of executing a task.
type ExecutionResult struct {
	// ExitCode is 0 on success and 1 when the step function failed.
	ExitCode int

	// Err is the step failure, nil on success.
	Err error

	Hash TaskHash
}

// Executor dispatches tasks to the StepFunc registered for their kind.
//
// Step functions run in-process; they receive only the task and the working
// directory, never ambient state from the executor.
type Executor struct {
	WorkingDir string
	Logger     *zap.Logger

	mu    sync.RWMutex
	steps map[string]StepFunc
}

// NewExecutor creates an Executor with no registered kinds.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir, Logger: zap.NewNop(), steps: make(map[string]StepFunc)}
}

// Register binds fn to kind, replacing any earlier registration.
func (e *Executor) Register(kind string, fn StepFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.steps == nil {
		e.steps = make(map[string]StepFunc)
	}
	e.steps[kind] = fn
}

// Kinds returns the registered kinds in sorted order.
func (e *Executor) Kinds() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.steps))
	for k := range e.steps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Executor) lookup(kind string) (StepFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.steps[kind]
	return fn, ok
}

// Execute runs the task's step function.
//
// A step failure is reported through ExecutionResult (ExitCode 1, Err set),
// not as an error: the returned error is reserved for conditions that make
// the run itself unable to continue, such as an unknown kind or a cancelled
// context.
func (e *Executor) Execute(ctx context.Context, task *Task, hash TaskHash) (*ExecutionResult, error) {
	if task == nil {
		return nil, fmt.Errorf("task is nil")
	}
	fn, ok := e.lookup(task.Kind)
	if !ok {
		return nil, fmt.Errorf("no step registered for kind %q", task.Kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execution cancelled: %w", err)
	}

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := StepContext{
		Task:       task,
		WorkingDir: e.WorkingDir,
		Logger:     logger.With(zap.String("step", task.Name), zap.String("kind", task.Kind)),
	}

	err := invoke(ctx, fn, sc)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}
	if err != nil {
		return &ExecutionResult{ExitCode: 1, Err: err, Hash: hash}, nil
	}
	return &ExecutionResult{Hash: hash}, nil
}

// invoke converts a panicking step into a step failure.
func invoke(ctx context.Context, fn StepFunc, sc StepContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", sc.Task.Name, r)
		}
	}()
	return fn(ctx, sc)
}
