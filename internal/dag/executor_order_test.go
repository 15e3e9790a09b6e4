package dag

import (
	"context"
	"reflect"
	"testing"
	"time"
)

var twoByTwoOrder = []string{
	"simulate_1", "simulate_2",
	"fit_1_l1", "fit_1_l2", "fit_2_l1", "fit_2_l2",
	"evaluate_1_l1", "evaluate_1_l2", "evaluate_2_l1", "evaluate_2_l2",
	"report",
}

func TestExecutorSerial_DispatchesByDepthThenName(t *testing.T) {
	g := pipelineGraph(t, 2, "l1", "l2")
	exec, err := NewExecutor(g, &scriptedRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.ExecutionOrder, twoByTwoOrder) {
		t.Fatalf("execution order mismatch:\ngot  %v\nwant %v", res.ExecutionOrder, twoByTwoOrder)
	}
	if got := res.FinalState.Count(TaskCompleted); got != g.Len() {
		t.Fatalf("expected %d completed, got %d", g.Len(), got)
	}
}

func TestExecutorSerial_FailedFitSkipsItsEvaluationAndReport(t *testing.T) {
	g := pipelineGraph(t, 2, "l1", "l2")
	exec, err := NewExecutor(g, &scriptedRunner{fail: map[string]bool{"fit_1_l1": true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := exec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"simulate_1", "simulate_2",
		"fit_1_l1", "fit_1_l2", "fit_2_l1", "fit_2_l2",
		"evaluate_1_l2", "evaluate_2_l1", "evaluate_2_l2",
	}
	if !reflect.DeepEqual(res.ExecutionOrder, want) {
		t.Fatalf("execution order mismatch:\ngot  %v\nwant %v", res.ExecutionOrder, want)
	}
	for name, st := range map[string]TaskState{
		"fit_1_l1":      TaskFailed,
		"evaluate_1_l1": TaskSkipped,
		"report":        TaskSkipped,
		"evaluate_2_l2": TaskCompleted,
	} {
		if res.FinalState[name] != st {
			t.Fatalf("expected %s %s, got %s", name, st, res.FinalState[name])
		}
	}
	name, stepErr, ok := res.FirstFailure()
	if !ok || name != "fit_1_l1" || stepErr == nil {
		t.Fatalf("unexpected first failure: %s %v %v", name, stepErr, ok)
	}
}

func TestExecutorParallel_MatchesSerial(t *testing.T) {
	g := pipelineGraph(t, 2, "l1", "l2")

	serialExec, err := NewExecutor(g, &scriptedRunner{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	serialRes, err := serialExec.RunSerial(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runner := &scriptedRunner{delay: map[string]time.Duration{"simulate_1": 2 * time.Millisecond, "fit_2_l2": time.Millisecond}}
	parExec, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parRes, err := parExec.RunParallel(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parRes.GraphHash != serialRes.GraphHash {
		t.Fatalf("graph hash mismatch: %s vs %s", parRes.GraphHash, serialRes.GraphHash)
	}
	if !reflect.DeepEqual(parRes.FinalState, serialRes.FinalState) {
		t.Fatalf("final state mismatch: par=%v serial=%v", parRes.FinalState, serialRes.FinalState)
	}
	if !reflect.DeepEqual(parRes.ExecutionOrder, serialRes.ExecutionOrder) {
		t.Fatalf("execution order mismatch: par=%v serial=%v", parRes.ExecutionOrder, serialRes.ExecutionOrder)
	}
}

func TestExecutorParallel_StableAcrossRuns(t *testing.T) {
	g := pipelineGraph(t, 3, "l1", "l2")
	delays := map[string]time.Duration{
		"simulate_1":    2 * time.Millisecond,
		"simulate_3":    time.Millisecond,
		"fit_2_l1":      3 * time.Millisecond,
		"fit_3_l2":      time.Millisecond,
		"evaluate_1_l1": 2 * time.Millisecond,
	}

	var baseline *GraphResult
	for i := 0; i < 50; i++ {
		exec, err := NewExecutor(g, &scriptedRunner{delay: delays})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		res, err := exec.RunParallel(context.Background(), 8)
		if err != nil {
			t.Fatalf("run %d unexpected error: %v", i, err)
		}
		if baseline == nil {
			baseline = res
			continue
		}
		if !reflect.DeepEqual(res.FinalState, baseline.FinalState) {
			t.Fatalf("run %d final state mismatch: %v vs %v", i, res.FinalState, baseline.FinalState)
		}
		if !reflect.DeepEqual(res.ExecutionOrder, baseline.ExecutionOrder) {
			t.Fatalf("run %d order mismatch: %v vs %v", i, res.ExecutionOrder, baseline.ExecutionOrder)
		}
	}
}

func TestExecutorParallel_EveryStepRunsExactlyOnce(t *testing.T) {
	g := pipelineGraph(t, 2, "l1", "l2")
	runner := &scriptedRunner{delay: map[string]time.Duration{"simulate_1": 2 * time.Millisecond, "simulate_2": 2 * time.Millisecond}}
	exec, err := NewExecutor(g, runner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := exec.RunParallel(context.Background(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for name, st := range res.FinalState {
		if st == TaskRunning {
			t.Fatalf("step %q left RUNNING", name)
		}
	}
	for _, name := range twoByTwoOrder {
		if got := runner.count(name); got != 1 {
			t.Fatalf("expected %q to execute once, got %d", name, got)
		}
	}
}
