package pipeline

import (
	"fmt"
	"sync"

	"regsim/internal/model"
)

// Phase is the run-level state.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseAllReplicatesComplete
	PhaseAggregated
	PhaseReported
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "Initial"
	case PhaseAllReplicatesComplete:
		return "AllReplicatesComplete"
	case PhaseAggregated:
		return "Aggregated"
	case PhaseReported:
		return "Reported"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ReplicateStage is how far one replicate has progressed.
type ReplicateStage int

const (
	StagePending ReplicateStage = iota
	StageSimulated
	StageFitted
	StageEvaluated
)

func (s ReplicateStage) String() string {
	switch s {
	case StagePending:
		return "Pending"
	case StageSimulated:
		return "Simulated"
	case StageFitted:
		return "Fitted"
	case StageEvaluated:
		return "Evaluated"
	default:
		return fmt.Sprintf("ReplicateStage(%d)", int(s))
	}
}

type replicateProgress struct {
	simulated bool
	fits      map[model.Family]bool
	evals     map[model.Family]bool
}

// PhaseTracker is the completion-count barrier of a run. It moves forward
// one phase at a time; the run reaches AllReplicatesComplete only when every
// replicate has an evaluation for every family.
type PhaseTracker struct {
	mu         sync.Mutex
	phase      Phase
	replicates int
	families   []model.Family
	progress   map[model.ReplicateID]*replicateProgress
	evaluated  int
}

// NewPhaseTracker tracks replicates 1..replicates over families.
func NewPhaseTracker(replicates int, families []model.Family) *PhaseTracker {
	return &PhaseTracker{
		replicates: replicates,
		families:   append([]model.Family(nil), families...),
		progress:   make(map[model.ReplicateID]*replicateProgress, replicates),
	}
}

// Phase returns the current phase.
func (t *PhaseTracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Advance moves to the next phase. Anything but the immediate successor is
// an error.
func (t *PhaseTracker) Advance(to Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advance(to)
}

func (t *PhaseTracker) advance(to Phase) error {
	if to != t.phase+1 || to > PhaseReported {
		return fmt.Errorf("invalid phase transition %s -> %s", t.phase, to)
	}
	if to == PhaseAllReplicatesComplete && t.evaluated != t.replicates*len(t.families) {
		return fmt.Errorf("invalid phase transition %s -> %s: %d of %d evaluations complete",
			t.phase, to, t.evaluated, t.replicates*len(t.families))
	}
	t.phase = to
	return nil
}

func (t *PhaseTracker) get(r model.ReplicateID) (*replicateProgress, error) {
	if r < 1 || int(r) > t.replicates {
		return nil, fmt.Errorf("replicate %d out of range 1..%d", r, t.replicates)
	}
	p, ok := t.progress[r]
	if !ok {
		p = &replicateProgress{fits: map[model.Family]bool{}, evals: map[model.Family]bool{}}
		t.progress[r] = p
	}
	return p, nil
}

func (t *PhaseTracker) knownFamily(f model.Family) bool {
	for _, k := range t.families {
		if k == f {
			return true
		}
	}
	return false
}

// Simulated records that replicate r has its dataset.
func (t *PhaseTracker) Simulated(r model.ReplicateID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.get(r)
	if err != nil {
		return err
	}
	p.simulated = true
	return nil
}

// Fitted records the fit of family f on replicate r.
func (t *PhaseTracker) Fitted(r model.ReplicateID, f model.Family) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.get(r)
	if err != nil {
		return err
	}
	if !t.knownFamily(f) {
		return fmt.Errorf("unexpected family %q", f)
	}
	if !p.simulated {
		return fmt.Errorf("replicate %d fitted before it was simulated", r)
	}
	p.fits[f] = true
	return nil
}

// Evaluated records the evaluation of family f on replicate r and reports
// whether that completed the barrier, in which case the tracker has moved
// to PhaseAllReplicatesComplete. Duplicate evaluations are errors.
func (t *PhaseTracker) Evaluated(r model.ReplicateID, f model.Family) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.get(r)
	if err != nil {
		return false, err
	}
	if !t.knownFamily(f) {
		return false, fmt.Errorf("unexpected family %q", f)
	}
	if !p.fits[f] {
		return false, fmt.Errorf("replicate %d family %s evaluated before it was fitted", r, f)
	}
	if p.evals[f] {
		return false, fmt.Errorf("replicate %d family %s evaluated twice", r, f)
	}
	p.evals[f] = true
	t.evaluated++
	if t.evaluated < t.replicates*len(t.families) {
		return false, nil
	}
	return true, t.advance(PhaseAllReplicatesComplete)
}

// Stage reports how far replicate r has progressed.
func (t *PhaseTracker) Stage(r model.ReplicateID) ReplicateStage {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.progress[r]
	switch {
	case !ok || !p.simulated:
		return StagePending
	case len(p.evals) == len(t.families):
		return StageEvaluated
	case len(p.fits) == len(t.families):
		return StageFitted
	default:
		return StageSimulated
	}
}
