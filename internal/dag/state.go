package dag

// TaskState is where a step is in its lifecycle. States are kept in an
// ExecutionState rather than on the graph, which stays immutable.
type TaskState string

const (
	TaskPending   TaskState = "PENDING"
	TaskRunning   TaskState = "RUNNING"
	TaskCompleted TaskState = "COMPLETED"
	TaskFailed    TaskState = "FAILED"
	TaskSkipped   TaskState = "SKIPPED"
	TaskCached    TaskState = "CACHED"
)

// Terminal reports whether the step is finished.
func (s TaskState) Terminal() bool {
	return s != TaskPending && s != TaskRunning && s != ""
}

// Succeeded reports whether the step's outputs are available to dependents.
func (s TaskState) Succeeded() bool {
	return s == TaskCompleted || s == TaskCached
}

// ExecutionState maps step name to its current TaskState.
type ExecutionState map[string]TaskState

// Count returns how many steps are in st.
func (s ExecutionState) Count(st TaskState) int {
	n := 0
	for _, v := range s {
		if v == st {
			n++
		}
	}
	return n
}
