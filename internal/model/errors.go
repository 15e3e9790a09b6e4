package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrFit           = errors.New("fit error")
	ErrJoin          = errors.New("join error")
	ErrIncomplete    = errors.New("incomplete aggregation")
)

// ConfigurationError reports invalid or inconsistent run parameters.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	msg := ErrConfiguration.Error()
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// FitError reports a degenerate or failed model fit.
type FitError struct {
	Replicate ReplicateID
	Family    Family
	Reason    string
	Err       error
}

func (e *FitError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s (replicate=%d family=%s): %s", ErrFit.Error(), e.Replicate, e.Family, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FitError) Unwrap() error { return e.Err }

func (e *FitError) Is(target error) bool { return target == ErrFit }

// JoinError reports a fit result that cannot be paired with its own dataset.
type JoinError struct {
	Replicate ReplicateID
	Family    Family
	Reason    string
}

func (e *JoinError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (replicate=%d family=%s): %s", ErrJoin.Error(), e.Replicate, e.Family, e.Reason)
}

func (e *JoinError) Is(target error) bool { return target == ErrJoin }

// IncompleteAggregationError reports that the completion barrier was not met.
type IncompleteAggregationError struct {
	Expected   int
	Got        int
	Missing    []string
	Duplicates []string
}

func (e *IncompleteAggregationError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: expected %d summaries, got %d", ErrIncomplete.Error(), e.Expected, e.Got)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing [%s]", strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicates) > 0 {
		fmt.Fprintf(&b, "; duplicate [%s]", strings.Join(e.Duplicates, ", "))
	}
	return b.String()
}

func (e *IncompleteAggregationError) Is(target error) bool { return target == ErrIncomplete }

// StepError attributes a failure to the pipeline step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
