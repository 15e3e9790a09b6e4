package trace

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, tr ExecutionTrace) string {
	t.Helper()
	b, err := tr.CanonicalJSON()
	require.NoError(t, err)
	return string(b)
}

func TestCanonicalJSON_ArrivalOrderDoesNotMatter(t *testing.T) {
	events := []TraceEvent{
		{Kind: EventTaskExecuted, TaskID: "fit_1_l2"},
		{Kind: EventTaskCached, TaskID: "simulate_1"},
		{Kind: EventTaskSkipped, TaskID: "report", Reason: ReasonUpstreamFailed, CauseTaskID: "fit_1_l2"},
		{Kind: EventTaskArtifactsRestored, TaskID: "simulate_1", Artifacts: []string{"out/data_1.train.csv"}},
	}
	reversed := make([]TraceEvent, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}

	a := encode(t, ExecutionTrace{GraphHash: "g", Events: events})
	b := encode(t, ExecutionTrace{GraphHash: "g", Events: reversed})
	assert.Equal(t, a, b)
}

func TestCanonicalJSON_Layout(t *testing.T) {
	tr := ExecutionTrace{
		GraphHash: "g",
		Events: []TraceEvent{
			{Kind: EventTaskSkipped, TaskID: "report", Reason: ReasonUpstreamFailed, CauseTaskID: "fit_1_l1"},
			{Kind: EventTaskCached, TaskID: "simulate_1"},
			{Kind: EventTaskArtifactsRestored, TaskID: "simulate_1", Artifacts: []string{"out/data_1.test.csv", "out/data_1.train.csv"}},
			{Kind: EventTaskFailed, TaskID: "fit_1_l1", Artifacts: []string{}},
		},
	}
	want := `{"graphHash":"g","events":[` +
		`{"kind":"TaskFailed","taskId":"fit_1_l1"},` +
		`{"kind":"TaskSkipped","taskId":"report","reason":"UpstreamFailed","causeTaskId":"fit_1_l1"},` +
		`{"kind":"TaskArtifactsRestored","taskId":"simulate_1","artifacts":["out/data_1.test.csv","out/data_1.train.csv"]},` +
		`{"kind":"TaskCached","taskId":"simulate_1"}]}`
	assert.Equal(t, want, encode(t, tr))
}

func TestCanonicalJSON_SortsArtifactsWithoutTouchingCaller(t *testing.T) {
	arts := []string{"z.csv", "a.csv"}
	tr := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{{Kind: EventTaskArtifactsRestored, TaskID: "s", Artifacts: arts}}}

	assert.Contains(t, encode(t, tr), `"artifacts":["a.csv","z.csv"]`)
	assert.Equal(t, []string{"z.csv", "a.csv"}, arts)
}

func TestCanonicalJSON_EmptyTrace(t *testing.T) {
	assert.Equal(t, `{"graphHash":"g","events":[]}`, encode(t, ExecutionTrace{GraphHash: "g"}))
}

func TestHash_FollowsCanonicalBytes(t *testing.T) {
	a := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{
		{Kind: EventTaskExecuted, TaskID: "fit_1_l1"},
		{Kind: EventTaskCached, TaskID: "simulate_1"},
	}}
	b := ExecutionTrace{GraphHash: "g", Events: []TraceEvent{a.Events[1], a.Events[0]}}
	c := ExecutionTrace{GraphHash: "other", Events: a.Events}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}

func TestValidate(t *testing.T) {
	cases := map[string]ExecutionTrace{
		"missing graph hash": {Events: []TraceEvent{{Kind: EventTaskCached, TaskID: "a"}}},
		"missing kind":       {GraphHash: "g", Events: []TraceEvent{{TaskID: "a"}}},
		"missing task id":    {GraphHash: "g", Events: []TraceEvent{{Kind: EventTaskFailed}}},
		"empty artifact":     {GraphHash: "g", Events: []TraceEvent{{Kind: EventTaskArtifactsRestored, TaskID: "a", Artifacts: []string{"x", ""}}}},
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, tr.Validate())
			_, err := tr.CanonicalJSON()
			assert.Error(t, err)
		})
	}
	var nilTrace *ExecutionTrace
	assert.Error(t, nilTrace.Validate())
}

func TestRecorder_ConcurrentWorkers(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := range 24 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(TraceEvent{Kind: EventTaskExecuted, TaskID: fmt.Sprintf("evaluate_%02d_l2", i)})
		}()
	}
	wg.Wait()

	tr := rec.Trace("g")
	require.Len(t, tr.Events, 24)
	for i := 1; i < len(tr.Events); i++ {
		assert.Less(t, tr.Events[i-1].TaskID, tr.Events[i].TaskID)
	}
	assert.Equal(t, 24, tr.Counts()[EventTaskExecuted])
	assert.Len(t, rec.Snapshot(), 24)
}

type panickySink struct{}

func (panickySink) Record(TraceEvent) { panic("sink bug") }

func TestTee_ContainsPanickingSink(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	ev := TraceEvent{Kind: EventTaskSkipped, TaskID: "report", Reason: ReasonRunAborted}

	assert.NotPanics(t, func() { SafeRecord(Tee{a, panickySink{}, nil, b}, ev) })
	assert.Equal(t, []TraceEvent{ev}, a.Snapshot())
	assert.Equal(t, []TraceEvent{ev}, b.Snapshot())

	var nilRec *Recorder
	assert.NotPanics(t, func() { nilRec.Record(ev) })
	assert.Nil(t, nilRec.Snapshot())
}
