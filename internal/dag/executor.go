package dag

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"regsim/internal/core"
	"regsim/internal/trace"
)

// TaskRunner executes a single task.
//
// A step failure is reported through NodeResult (non-zero ExitCode, Err).
// A returned error means the run cannot continue at all and aborts it.
type TaskRunner interface {
	// Probe replays the task if it can be satisfied from cache. When cached
	// is true, result is non-nil and FromCache is set.
	Probe(ctx context.Context, task core.Task) (result *NodeResult, cached bool, err error)

	Run(ctx context.Context, task core.Task) (*NodeResult, error)
}

// Observer is told about every task that reaches a terminal state, in commit
// order. It is called from one goroutine at a time with the state lock
// released; res is nil for skipped tasks. A returned error aborts the run.
type Observer interface {
	OnTaskTerminal(task core.Task, state TaskState, res *NodeResult) error
}

// Executor executes a TaskGraph once.
type Executor struct {
	Graph  *TaskGraph
	Runner TaskRunner

	// Observer, Sink and Logger are optional.
	Observer Observer
	Sink     trace.Sink
	Logger   *zap.Logger

	// FailFast skips every not-yet-started task after the first failure.
	FailFast bool

	mu    sync.Mutex
	state ExecutionState
	rec   *trace.Recorder
	acc   accumulator
}

type terminal struct {
	name  string
	state TaskState
	res   *NodeResult
}

type accumulator struct {
	order     []string
	failures  []string
	hashes    map[string]core.TaskHash
	exit      map[string]int
	errs      map[string]error
	durations map[string]time.Duration
	pending   []terminal
}

// NewExecutor creates an executor with all nodes PENDING.
func NewExecutor(g *TaskGraph, runner TaskRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}

	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.Name] = TaskPending
	}
	return &Executor{
		Graph:  g,
		Runner: runner,
		state:  state,
		rec:    trace.NewRecorder(),
		acc: accumulator{
			hashes:    make(map[string]core.TaskHash, len(g.nodes)),
			exit:      make(map[string]int, len(g.nodes)),
			errs:      make(map[string]error),
			durations: make(map[string]time.Duration, len(g.nodes)),
		},
	}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.state)
}

// RunSerial executes the graph one task at a time, always picking the first
// ready task in (depth, name) order.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution cancelled: %w", err)
		}

		e.mu.Lock()
		ready := GetReadyTasks(e.Graph, e.state)
		if len(ready) == 0 {
			done := e.allTerminal()
			e.mu.Unlock()
			if done {
				return e.result(), nil
			}
			return nil, fmt.Errorf("no ready tasks but graph not finished")
		}

		next := ready[0]
		task := e.Graph.byName[next].Task

		probeRes, cached, err := e.Runner.Probe(ctx, task)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("probing cache for %q: %w", next, err)
		}
		if cached {
			if probeRes == nil {
				e.mu.Unlock()
				return nil, fmt.Errorf("probing cache for %q: nil result", next)
			}
			err := e.commitCached(next, probeRes)
			notes := e.takePending()
			e.mu.Unlock()
			if err != nil {
				return nil, err
			}
			if err := e.notify(notes); err != nil {
				return nil, err
			}
			continue
		}

		if err := Transition(e.state, next, TaskPending, TaskRunning); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.acc.order = append(e.acc.order, next)
		e.mu.Unlock()

		e.logger().Debug("dispatching step", zap.String("step", next), zap.String("kind", task.Kind))
		runRes, err := e.Runner.Run(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", next, err)
		}
		if runRes == nil {
			return nil, fmt.Errorf("executing %q: nil result", next)
		}

		e.mu.Lock()
		err = e.commitFinished(next, runRes)
		notes := e.takePending()
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if err := e.notify(notes); err != nil {
			return nil, err
		}
	}
}

type workItem struct {
	name string
	task core.Task
}

type workResult struct {
	name   string
	result *NodeResult
	err    error
}

// RunParallel executes the graph with up to concurrency workers.
//
// Dispatch is staged by topological depth and, within a depth, by name, so
// the set of tasks started never depends on completion timing unless a
// failure occurs. All state access is under e.mu; tasks run outside it.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	maxDepth := slices.Max(e.Graph.depth)
	byDepth := make([][]string, maxDepth+1)
	for _, n := range e.Graph.nodes {
		d := e.Graph.depth[n.canonicalIndex]
		byDepth[d] = append(byDepth[d], n.Name)
	}
	for _, names := range byDepth {
		slices.Sort(names)
	}

	workCh := make(chan workItem, concurrency)
	doneCh := make(chan workResult, concurrency)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				res, err := e.Runner.Run(ctx, w.task)
				doneCh <- workResult{name: w.name, result: res, err: err}
			}
		}()
	}
	fail := func(err error) (*GraphResult, error) {
		stopWorkers()
		return nil, err
	}

	inFlight := 0

	for depth := 0; depth <= maxDepth; depth++ {
		names := byDepth[depth]
		nextToStart := 0

		for {
			e.mu.Lock()
			var dispatchErr error
			for dispatchErr == nil && inFlight < concurrency && nextToStart < len(names) {
				name := names[nextToStart]
				node := e.Graph.byName[name]
				st := e.state[name]

				// Skipped by an earlier failure: never execute.
				if st.Terminal() {
					nextToStart++
					continue
				}
				if st != TaskPending {
					dispatchErr = fmt.Errorf("unexpected non-pending state for %q: %s", name, st)
					break
				}
				if !e.Graph.dependenciesSatisfied(node.canonicalIndex, e.state) {
					dispatchErr = fmt.Errorf("task %q at depth %d is pending but dependencies are not successful", name, depth)
					break
				}

				res, cached, err := e.Runner.Probe(ctx, node.Task)
				if err != nil {
					dispatchErr = fmt.Errorf("probing cache for %q: %w", name, err)
					break
				}
				if cached {
					if res == nil {
						dispatchErr = fmt.Errorf("probing cache for %q: nil result", name)
						break
					}
					dispatchErr = e.commitCached(name, res)
					nextToStart++
					continue
				}

				if err := Transition(e.state, name, TaskPending, TaskRunning); err != nil {
					dispatchErr = err
					break
				}
				e.acc.order = append(e.acc.order, name)
				inFlight++
				nextToStart++
				e.logger().Debug("dispatching step", zap.String("step", name), zap.String("kind", node.Task.Kind), zap.Int("depth", depth))
				workCh <- workItem{name: name, task: node.Task}
			}
			stageDone := nextToStart >= len(names) && inFlight == 0
			notes := e.takePending()
			e.mu.Unlock()

			if dispatchErr != nil {
				return fail(dispatchErr)
			}
			if err := e.notify(notes); err != nil {
				return fail(err)
			}
			if stageDone {
				break
			}

			select {
			case <-ctx.Done():
				return fail(fmt.Errorf("execution cancelled: %w", ctx.Err()))
			case r := <-doneCh:
				if r.err != nil {
					return fail(fmt.Errorf("executing %q: %w", r.name, r.err))
				}
				if r.result == nil {
					return fail(fmt.Errorf("executing %q: nil result", r.name))
				}

				e.mu.Lock()
				var err error
				if cur := e.state[r.name]; cur != TaskRunning {
					err = fmt.Errorf("completion for %q but state is %s", r.name, cur)
				} else {
					err = e.commitFinished(r.name, r.result)
				}
				inFlight--
				notes := e.takePending()
				e.mu.Unlock()

				if err != nil {
					return fail(err)
				}
				if err := e.notify(notes); err != nil {
					return fail(err)
				}
			}
		}
	}

	stopWorkers()
	return e.result(), nil
}

// commitCached records a cache replay. Caller holds e.mu.
func (e *Executor) commitCached(name string, res *NodeResult) error {
	if err := Transition(e.state, name, TaskPending, TaskCached); err != nil {
		return err
	}
	e.acc.hashes[name] = res.Hash
	e.acc.exit[name] = 0
	e.acc.durations[name] = res.Duration()
	if len(res.Restored) > 0 {
		e.record(trace.TraceEvent{Kind: trace.EventTaskArtifactsRestored, TaskID: name, Artifacts: res.Restored})
	}
	e.record(trace.TraceEvent{Kind: trace.EventTaskCached, TaskID: name})
	e.acc.pending = append(e.acc.pending, terminal{name: name, state: TaskCached, res: res})
	return nil
}

// commitFinished records the outcome of an executed task, propagating a
// failure downstream (and everywhere, under FailFast). Caller holds e.mu.
func (e *Executor) commitFinished(name string, res *NodeResult) error {
	e.acc.hashes[name] = res.Hash
	e.acc.exit[name] = res.ExitCode
	e.acc.durations[name] = res.Duration()

	if res.ExitCode == 0 {
		if err := Transition(e.state, name, TaskRunning, TaskCompleted); err != nil {
			return err
		}
		e.record(trace.TraceEvent{Kind: trace.EventTaskExecuted, TaskID: name})
		e.acc.pending = append(e.acc.pending, terminal{name: name, state: TaskCompleted, res: res})
		return nil
	}

	stepErr := res.Err
	if stepErr == nil {
		stepErr = fmt.Errorf("step %s exited with code %d", name, res.ExitCode)
	}
	e.acc.errs[name] = stepErr
	e.acc.failures = append(e.acc.failures, name)

	skipped, err := FailAndPropagate(e.Graph, e.state, name)
	if err != nil {
		return err
	}
	e.record(trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: name})
	e.acc.pending = append(e.acc.pending, terminal{name: name, state: TaskFailed, res: res})
	for _, s := range skipped {
		e.record(trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: s, Reason: trace.ReasonUpstreamFailed, CauseTaskID: name})
		e.acc.pending = append(e.acc.pending, terminal{name: s, state: TaskSkipped})
	}
	if e.FailFast {
		for _, s := range AbortPending(e.Graph, e.state) {
			e.record(trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: s, Reason: trace.ReasonRunAborted, CauseTaskID: name})
			e.acc.pending = append(e.acc.pending, terminal{name: s, state: TaskSkipped})
		}
	}
	return nil
}

func (e *Executor) record(ev trace.TraceEvent) {
	e.rec.Record(ev)
	trace.SafeRecord(e.Sink, ev)
}

// takePending hands off queued notifications. Caller holds e.mu.
func (e *Executor) takePending() []terminal {
	p := e.acc.pending
	e.acc.pending = nil
	return p
}

// notify logs and reports terminal tasks. Caller must not hold e.mu.
func (e *Executor) notify(notes []terminal) error {
	for _, n := range notes {
		task := e.Graph.byName[n.name].Task
		fields := []zap.Field{zap.String("step", n.name), zap.String("state", string(n.state))}
		if n.res != nil {
			fields = append(fields, zap.Duration("duration", n.res.Duration()), zap.Bool("from_cache", n.res.FromCache))
		}
		e.logger().Debug("step terminal", fields...)

		if e.Observer == nil {
			continue
		}
		if err := e.Observer.OnTaskTerminal(task, n.state, n.res); err != nil {
			return fmt.Errorf("observing %q: %w", n.name, err)
		}
	}
	return nil
}

// allTerminal reports whether every node is finished. Caller holds e.mu.
func (e *Executor) allTerminal() bool {
	for _, st := range e.state {
		if !st.Terminal() {
			return false
		}
	}
	return true
}

func (e *Executor) result() *GraphResult {
	final := e.StateSnapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	return &GraphResult{
		GraphHash:      e.Graph.Hash(),
		FinalState:     final,
		ExecutionOrder: append([]string(nil), e.acc.order...),
		FailureOrder:   append([]string(nil), e.acc.failures...),
		TaskHashes:     maps.Clone(e.acc.hashes),
		ExitCode:       maps.Clone(e.acc.exit),
		Errors:         maps.Clone(e.acc.errs),
		Durations:      maps.Clone(e.acc.durations),
		Trace:          e.rec.Trace(e.Graph.Hash().String()),
	}
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
