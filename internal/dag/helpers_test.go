package dag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"regsim/internal/core"
)

// pipelineTasks declares simulate_r -> fit_r_f -> evaluate_r_f -> report for
// every replicate r and family f. simulate_r also feeds evaluate_r_f.
func pipelineTasks(replicates int, families ...string) ([]core.Task, []Edge) {
	var tasks []core.Task
	var edges []Edge
	var mse []string
	for r := 1; r <= replicates; r++ {
		sim := fmt.Sprintf("simulate_%d", r)
		data := fmt.Sprintf("out/data_%d.train.csv", r)
		tasks = append(tasks, core.Task{
			Name:    sim,
			Kind:    "simulate",
			Params:  map[string]string{"replicate": fmt.Sprint(r)},
			Outputs: []string{data},
		})
		for _, f := range families {
			fit := fmt.Sprintf("fit_%d_%s", r, f)
			eval := fmt.Sprintf("evaluate_%d_%s", r, f)
			pred := fmt.Sprintf("out/data_%d.%s.predicted.csv", r, f)
			summary := fmt.Sprintf("out/data_%d.%s.mse.csv", r, f)
			tasks = append(tasks,
				core.Task{
					Name:    fit,
					Kind:    "fit",
					Inputs:  []string{data},
					Params:  map[string]string{"replicate": fmt.Sprint(r), "family": f},
					Outputs: []string{pred},
				},
				core.Task{
					Name:    eval,
					Kind:    "evaluate",
					Inputs:  []string{data, pred},
					Params:  map[string]string{"replicate": fmt.Sprint(r), "family": f},
					Outputs: []string{summary},
				},
			)
			edges = append(edges, Edge{From: sim, To: fit}, Edge{From: sim, To: eval}, Edge{From: fit, To: eval}, Edge{From: eval, To: "report"})
			mse = append(mse, summary)
		}
	}
	tasks = append(tasks, core.Task{Name: "report", Kind: "report", Inputs: mse, Outputs: []string{"out/report.md"}})
	return tasks, edges
}

func pipelineGraph(t *testing.T, replicates int, families ...string) *TaskGraph {
	t.Helper()
	tasks, edges := pipelineTasks(replicates, families...)
	g, err := NewTaskGraph(tasks, edges)
	if err != nil {
		t.Fatalf("NewTaskGraph: %v", err)
	}
	return g
}

func pendingState(g *TaskGraph) ExecutionState {
	state := make(ExecutionState, g.Len())
	for _, n := range g.Nodes() {
		state[n.Name] = TaskPending
	}
	return state
}

// scriptedRunner fails the steps named in fail, optionally sleeping first,
// and counts every execution.
type scriptedRunner struct {
	fail  map[string]bool
	delay map[string]time.Duration

	mu     sync.Mutex
	counts map[string]int
}

func (r *scriptedRunner) Probe(context.Context, core.Task) (*NodeResult, bool, error) {
	return nil, false, nil
}

func (r *scriptedRunner) Run(_ context.Context, task core.Task) (*NodeResult, error) {
	if task.Name == "" {
		return nil, errors.New("missing step name")
	}
	if d := r.delay[task.Name]; d > 0 {
		time.Sleep(d)
	}
	runtime.Gosched()

	r.mu.Lock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[task.Name]++
	r.mu.Unlock()

	res := &NodeResult{Hash: core.TaskHash("hash:" + task.Name)}
	if r.fail[task.Name] {
		res.ExitCode = 1
		res.Err = fmt.Errorf("%s: scripted failure", task.Name)
	}
	return res, nil
}

func (r *scriptedRunner) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}
