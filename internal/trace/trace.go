// Package trace records the scheduling decisions of a pipeline run as a
// canonical, timing-free document.
package trace

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ExecutionTrace lists what happened to every step of one run: executed,
// replayed from cache, failed or skipped.
//
// Only logical facts are kept. Two runs of the same graph against the same
// cache state encode to the same bytes; durations and error text belong in
// the run records. GraphHash is a plain string so dag can import this
// package.
type ExecutionTrace struct {
	GraphHash string       `json:"graphHash"`
	Events    []TraceEvent `json:"events"`
}

// TraceEventKind names a scheduling decision. The values appear in the
// encoded trace.
type TraceEventKind string

const (
	EventTaskArtifactsRestored TraceEventKind = "TaskArtifactsRestored"
	EventTaskCached            TraceEventKind = "TaskCached"
	EventTaskExecuted          TraceEventKind = "TaskExecuted"
	EventTaskFailed            TraceEventKind = "TaskFailed"
	EventTaskSkipped           TraceEventKind = "TaskSkipped"
)

// kindRank orders events of one step: restore precedes the cache decision.
var kindRank = map[TraceEventKind]int{
	EventTaskArtifactsRestored: 1,
	EventTaskCached:            2,
	EventTaskExecuted:          3,
	EventTaskFailed:            4,
	EventTaskSkipped:           5,
}

// Skip reasons.
const (
	// ReasonUpstreamFailed marks a step skipped because CauseTaskID failed.
	ReasonUpstreamFailed = "UpstreamFailed"

	// ReasonRunAborted marks a step never dispatched after fail-fast or
	// cancellation.
	ReasonRunAborted = "RunAborted"
)

// TraceEvent is one decision about one step. Field order here is the
// encoded key order.
type TraceEvent struct {
	Kind        TraceEventKind `json:"kind"`
	TaskID      string         `json:"taskId,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	CauseTaskID string         `json:"causeTaskId,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
}

func (e TraceEvent) compare(o TraceEvent) int {
	return cmp.Or(
		cmp.Compare(e.TaskID, o.TaskID),
		cmp.Compare(rankOf(e.Kind), rankOf(o.Kind)),
		cmp.Compare(e.Reason, o.Reason),
		cmp.Compare(e.CauseTaskID, o.CauseTaskID),
		slices.Compare(e.Artifacts, o.Artifacts),
	)
}

func rankOf(k TraceEventKind) int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank) + 1
}

// Validate reports the first malformed field.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i, e := range t.Events {
		switch {
		case e.Kind == "":
			return fmt.Errorf("events[%d]: kind is required", i)
		case e.TaskID == "" && kindRank[e.Kind] != 0:
			return fmt.Errorf("events[%d]: %s requires a taskId", i, e.Kind)
		}
		if j := slices.Index(e.Artifacts, ""); j >= 0 {
			return fmt.Errorf("events[%d]: artifacts[%d] is empty", i, j)
		}
	}
	return nil
}

// Canonicalize sorts artifacts within each event, drops empty artifact
// lists and orders events by step, kind, reason, cause and artifacts. The
// result does not depend on the order events arrived in.
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Artifacts) == 0 {
			t.Events[i].Artifacts = nil
			continue
		}
		t.Events[i].Artifacts = slices.Sorted(slices.Values(t.Events[i].Artifacts))
	}
	slices.SortStableFunc(t.Events, TraceEvent.compare)
}

// CanonicalJSON encodes a canonicalized copy of t. The receiver's slices
// are left untouched.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	c := ExecutionTrace{GraphHash: t.GraphHash, Events: slices.Clone(t.Events)}
	if c.Events == nil {
		c.Events = []TraceEvent{}
	}
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Hash is the hex sha256 of CanonicalJSON.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Counts tallies events by kind.
func (t ExecutionTrace) Counts() map[TraceEventKind]int {
	out := make(map[TraceEventKind]int, len(kindRank))
	for _, e := range t.Events {
		out[e.Kind]++
	}
	return out
}
