// Package evaluate scores a fit against the dataset it came from.
package evaluate

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"regsim/internal/model"
)

// mse is the mean squared difference of a and b. Callers check that the
// lengths match; floats.Distance panics otherwise.
func mse(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	d := floats.Distance(a, b, 2)
	return d * d / float64(len(a))
}

// Evaluate computes prediction error against the test responses and
// coefficient error against the truth. It is pure and idempotent.
func Evaluate(fit model.FitResult, ds model.Dataset, truth []float64) (model.ErrorSummary, error) {
	if fit.Replicate != ds.Replicate {
		return model.ErrorSummary{}, &model.JoinError{
			Replicate: fit.Replicate,
			Family:    fit.Family,
			Reason:    fmt.Sprintf("fit result paired with dataset of replicate %d", ds.Replicate),
		}
	}
	if len(fit.Predictions) != len(ds.Test) {
		return model.ErrorSummary{}, &model.ConfigurationError{
			Field:  "test_size",
			Reason: fmt.Sprintf("replicate %d/%s has %d predictions for %d test rows", fit.Replicate, fit.Family, len(fit.Predictions), len(ds.Test)),
		}
	}
	if len(fit.Coefficients) != len(truth) {
		return model.ErrorSummary{}, &model.ConfigurationError{
			Field:  "coefficients",
			Reason: fmt.Sprintf("replicate %d/%s has %d coefficients, truth has %d", fit.Replicate, fit.Family, len(fit.Coefficients), len(truth)),
		}
	}
	return model.ErrorSummary{
		Replicate:        fit.Replicate,
		Family:           fit.Family,
		PredictionError:  mse(fit.Predictions, ds.TestResponses()),
		CoefficientError: mse(fit.Coefficients, truth),
	}, nil
}

// Join pairs every fit with the dataset of its own replicate and evaluates
// it. A fit whose replicate has no dataset is a *model.JoinError, never a
// silent skip. Results are ordered by (replicate, family order).
func Join(fits []model.FitResult, datasets []model.Dataset, truth []float64) ([]model.ErrorSummary, error) {
	byRep := make(map[model.ReplicateID]model.Dataset, len(datasets))
	for _, ds := range datasets {
		if _, dup := byRep[ds.Replicate]; dup {
			return nil, &model.JoinError{Replicate: ds.Replicate, Reason: "duplicate dataset for replicate"}
		}
		byRep[ds.Replicate] = ds
	}
	out := make([]model.ErrorSummary, 0, len(fits))
	for _, fr := range fits {
		ds, ok := byRep[fr.Replicate]
		if !ok {
			return nil, &model.JoinError{Replicate: fr.Replicate, Family: fr.Family, Reason: "no dataset exists for this replicate"}
		}
		s, err := Evaluate(fr, ds, truth)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Replicate != out[j].Replicate {
			return out[i].Replicate < out[j].Replicate
		}
		return out[i].Family.Order() < out[j].Family.Order()
	})
	return out, nil
}
