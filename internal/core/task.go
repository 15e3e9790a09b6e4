package core

// Task is the declarative definition of one pipeline step.
//
// Name is the step identifier (e.g. "fit_3_l1") and does not contribute to
// the step's TaskHash. Everything else does.
type Task struct {
	Name string `json:"name" yaml:"name"`

	// Kind selects the StepFunc registered with the Executor.
	Kind string `json:"kind" yaml:"kind"`

	// Inputs are file paths or glob patterns, relative to the working
	// directory. Their content is part of the step identity.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Params are the step's self-describing parameters. Values are strings
	// so they hash and serialize without float formatting ambiguity.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`

	// Outputs are the files the step must produce. Only these are harvested
	// into the cache.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Param returns the named parameter and whether it is present.
func (t *Task) Param(name string) (string, bool) {
	if t == nil || t.Params == nil {
		return "", false
	}
	v, ok := t.Params[name]
	return v, ok
}
