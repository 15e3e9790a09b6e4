package dag

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"regsim/internal/core"
	"regsim/internal/trace"
)

type observed struct {
	name  string
	state TaskState
}

type recordingObserver struct {
	mu     sync.Mutex
	seen   []observed
	failOn string
}

func (o *recordingObserver) OnTaskTerminal(task core.Task, state TaskState, _ *NodeResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{name: task.Name, state: state})
	if task.Name == o.failOn {
		return errors.New("observer refused")
	}
	return nil
}

func failFastGraph(t *testing.T) *TaskGraph {
	t.Helper()
	// A -> C, B independent. A fails first in (depth, name) order.
	g, err := NewTaskGraph(
		[]core.Task{
			{Name: "A", Kind: "run-a"},
			{Name: "B", Kind: "run-b"},
			{Name: "C", Kind: "run-c"},
		},
		[]Edge{{From: "A", To: "C"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestExecutor_FailFastSkipsPendingWithRunAborted(t *testing.T) {
	for _, mode := range []string{"serial", "parallel"} {
		t.Run(mode, func(t *testing.T) {
			exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{fail: map[string]bool{"A": true}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			exec.FailFast = true
			exec.Logger = zaptest.NewLogger(t)

			var res *GraphResult
			if mode == "serial" {
				res, err = exec.RunSerial(context.Background())
			} else {
				res, err = exec.RunParallel(context.Background(), 1)
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(res.ExecutionOrder, []string{"A"}) {
				t.Fatalf("expected only A started, got %v", res.ExecutionOrder)
			}
			want := ExecutionState{"A": TaskFailed, "B": TaskSkipped, "C": TaskSkipped}
			if !reflect.DeepEqual(res.FinalState, want) {
				t.Fatalf("final state mismatch: got %v want %v", res.FinalState, want)
			}

			b := eventsFor(res.Trace, "B")
			if len(b) != 1 || b[0].Reason != trace.ReasonRunAborted || b[0].CauseTaskID != "A" {
				t.Fatalf("unexpected events for B: %+v", b)
			}
			c := eventsFor(res.Trace, "C")
			if len(c) != 1 || c[0].Reason != trace.ReasonUpstreamFailed || c[0].CauseTaskID != "A" {
				t.Fatalf("unexpected events for C: %+v", c)
			}
			if _, stepErr, ok := res.FirstFailure(); !ok || stepErr == nil {
				t.Fatalf("expected a synthesized step error, got %v (%v)", stepErr, ok)
			}
			if res.Succeeded() {
				t.Fatalf("expected failed run")
			}
		})
	}
}

func TestExecutor_WithoutFailFastIndependentWorkContinues(t *testing.T) {
	exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{fail: map[string]bool{"A": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalState["B"] != TaskCompleted {
		t.Fatalf("expected B completed, got %s", res.FinalState["B"])
	}
	if got := res.Trace.Counts(); got[trace.EventTaskExecuted] != 1 || got[trace.EventTaskFailed] != 1 || got[trace.EventTaskSkipped] != 1 {
		t.Fatalf("unexpected event counts: %v", got)
	}
}

func TestExecutor_ObserverSeesEveryTerminalTaskOnce(t *testing.T) {
	obs := &recordingObserver{}
	exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{fail: map[string]bool{"A": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exec.Observer = obs
	if _, err := exec.RunParallel(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]TaskState{}
	for _, o := range obs.seen {
		if _, dup := got[o.name]; dup {
			t.Fatalf("task %q observed twice", o.name)
		}
		got[o.name] = o.state
	}
	want := map[string]TaskState{"A": TaskFailed, "B": TaskCompleted, "C": TaskSkipped}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("observed mismatch: got %v want %v", got, want)
	}
}

func TestExecutor_ObserverErrorAbortsRun(t *testing.T) {
	for _, mode := range []string{"serial", "parallel"} {
		t.Run(mode, func(t *testing.T) {
			exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			exec.Observer = &recordingObserver{failOn: "A"}
			if mode == "serial" {
				_, err = exec.RunSerial(context.Background())
			} else {
				_, err = exec.RunParallel(context.Background(), 2)
			}
			if err == nil {
				t.Fatalf("expected observer error to abort the run")
			}
		})
	}
}

func TestExecutor_SinkReceivesEvents(t *testing.T) {
	rec := trace.NewRecorder()
	exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exec.Sink = rec
	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Snapshot()) != len(res.Trace.Events) {
		t.Fatalf("sink saw %d events, trace has %d", len(rec.Snapshot()), len(res.Trace.Events))
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.RunSerial(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestExecutor_RejectsBadArguments(t *testing.T) {
	if _, err := NewExecutor(nil, &scriptedRunner{}); err == nil {
		t.Fatalf("expected error for nil graph")
	}
	if _, err := NewExecutor(failFastGraph(t), nil); err == nil {
		t.Fatalf("expected error for nil runner")
	}
	exec, err := NewExecutor(failFastGraph(t), &scriptedRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := exec.RunParallel(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero concurrency")
	}
}
