package trace

import "sync"

// Sink observes trace events as the executor emits them. A sink cannot
// influence scheduling.
type Sink interface {
	Record(event TraceEvent)
}

// SafeRecord delivers event to s. A nil sink is ignored and a panicking
// sink is contained.
func SafeRecord(s Sink, event TraceEvent) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	s.Record(event)
}

// Recorder buffers events for a later Trace call. It may be shared between
// workers.
type Recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event TraceEvent) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Snapshot copies the events recorded so far, in arrival order.
func (r *Recorder) Snapshot() []TraceEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}

// Trace returns the canonical trace of everything recorded so far.
func (r *Recorder) Trace(graphHash string) ExecutionTrace {
	tr := ExecutionTrace{GraphHash: graphHash, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}

// Tee forwards each event to every sink in turn.
type Tee []Sink

func (t Tee) Record(event TraceEvent) {
	for _, s := range t {
		SafeRecord(s, event)
	}
}
