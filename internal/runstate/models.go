package runstate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

type ExecutionMode string

const (
	ExecutionModeClean       ExecutionMode = "clean"
	ExecutionModeIncremental ExecutionMode = "incremental"
)

// ParseMode accepts the --mode flag values, case-insensitively.
func ParseMode(s string) (ExecutionMode, error) {
	switch m := ExecutionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ExecutionModeClean, ExecutionModeIncremental:
		return m, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want clean or incremental)", s)
	}
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is run.json: one pipeline invocation. EndTime stays null until the
// run finishes.
type Run struct {
	RunID     string        `json:"run_id" validate:"notblank"`
	GraphHash string        `json:"graph_hash" validate:"notblank"`
	StartTime time.Time     `json:"start_time" validate:"required"`
	EndTime   *time.Time    `json:"end_time"`
	Mode      ExecutionMode `json:"mode" validate:"oneof=clean incremental"`
	Jobs      int           `json:"jobs" validate:"min=1"`
	Status    RunStatus     `json:"status" validate:"oneof=running succeeded failed"`
	Steps     int           `json:"steps" validate:"min=0"`
}

func (r Run) Validate() error {
	var extra []error
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		extra = append(extra, errors.New("end_time: precedes start_time"))
	}
	return check(r, extra...)
}

type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCached    StepStatus = "cached"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord is steps/<step>.json. Skipped steps have no signature or
// timings; failed ones carry the error text.
type StepRecord struct {
	Step      string     `json:"step" validate:"notblank,excludesall=/\\"`
	Kind      string     `json:"kind" validate:"notblank"`
	Status    StepStatus `json:"status" validate:"oneof=completed cached failed skipped"`
	Signature string     `json:"signature,omitempty"`
	FromCache bool       `json:"from_cache"`
	Started   *time.Time `json:"started,omitempty"`
	Finished  *time.Time `json:"finished,omitempty"`
	Outputs   []string   `json:"outputs" validate:"required"`
	Error     string     `json:"error,omitempty"`
}

func (s StepRecord) Validate() error {
	var extra []error
	switch s.Status {
	case StepCompleted, StepCached:
		if s.Signature == "" {
			extra = append(extra, fmt.Errorf("signature: required when status is %s", s.Status))
		}
	case StepFailed:
		if s.Error == "" {
			extra = append(extra, errors.New("error: required when status is failed"))
		}
	}
	return check(s, extra...)
}

type FailureClass string

const (
	FailureClassConfiguration FailureClass = "configuration"
	FailureClassFit           FailureClass = "fit"
	FailureClassJoin          FailureClass = "join"
	FailureClassAggregation   FailureClass = "aggregation"
	FailureClassSystem        FailureClass = "system"
)

// Failure is failure.json: why a run ended unsuccessfully.
type Failure struct {
	FailureClass FailureClass `json:"failure_class" validate:"oneof=configuration fit join aggregation system"`
	Step         *string      `json:"step,omitempty" validate:"omitempty,notblank"`
	ErrorCode    string       `json:"error_code" validate:"notblank"`
	ErrorMessage string       `json:"error_message" validate:"notblank"`
}

func (f Failure) Validate() error { return check(f) }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// check joins struct tag violations, one "field: rule" line each, with any
// cross-field errors.
func check(v any, extra ...error) error {
	var errs []error
	var verrs validator.ValidationErrors
	if err := validate.Struct(v); errors.As(err, &verrs) {
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			errs = append(errs, fmt.Errorf("%s: failed %s", fe.Field(), rule))
		}
	} else if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(append(errs, extra...)...)
}
