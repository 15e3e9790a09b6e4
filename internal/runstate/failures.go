package runstate

import (
	"errors"

	"regsim/internal/model"
)

// FailureFromError classifies err into the failure taxonomy. The step is
// taken from the outermost model.StepError, if any. Unrecognized errors are
// system failures.
func FailureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	f := Failure{ErrorMessage: err.Error()}
	var se *model.StepError
	if errors.As(err, &se) && se != nil && se.Step != "" {
		step := se.Step
		f.Step = &step
	}

	switch {
	case errors.Is(err, model.ErrConfiguration):
		f.FailureClass = FailureClassConfiguration
		f.ErrorCode = "ConfigurationError"
	case errors.Is(err, model.ErrFit):
		f.FailureClass = FailureClassFit
		f.ErrorCode = "FitError"
	case errors.Is(err, model.ErrJoin):
		f.FailureClass = FailureClassJoin
		f.ErrorCode = "JoinError"
	case errors.Is(err, model.ErrIncomplete):
		f.FailureClass = FailureClassAggregation
		f.ErrorCode = "IncompleteAggregation"
	default:
		f.FailureClass = FailureClassSystem
		f.ErrorCode = "SystemFailure"
	}
	return f, nil
}
