// Package aggregate implements the completion barrier and the per-family
// summary of all error summaries in a run.
package aggregate

import (
	"fmt"
	"sort"

	"regsim/internal/model"
)

// Expectation is the complete key set the barrier waits for.
type Expectation struct {
	Replicates int
	Families   []model.Family
}

// Count is the number of distinct summaries that completes the barrier.
func (e Expectation) Count() int { return e.Replicates * len(e.Families) }

// Keys enumerates the expected keys in (replicate, family) order.
func (e Expectation) Keys() []model.Key {
	out := make([]model.Key, 0, e.Count())
	for r := 1; r <= e.Replicates; r++ {
		for _, f := range e.Families {
			out = append(out, model.Key{Replicate: model.ReplicateID(r), Family: f})
		}
	}
	return out
}

func (e Expectation) contains(k model.Key) bool {
	if k.Replicate < 1 || int(k.Replicate) > e.Replicates {
		return false
	}
	for _, f := range e.Families {
		if f == k.Family {
			return true
		}
	}
	return false
}

// Aggregate averages both error metrics per family.
//
// The barrier is explicit: exactly one summary per expected key must be
// present. Missing or duplicate keys yield *model.IncompleteAggregationError
// and a key outside the expected set yields *model.JoinError. No partial
// report is ever produced.
func Aggregate(summaries []model.ErrorSummary, exp Expectation) (model.ComparisonReport, error) {
	if exp.Replicates < 1 || len(exp.Families) == 0 {
		return model.ComparisonReport{}, &model.ConfigurationError{Field: "replicates", Reason: "expectation must cover at least one replicate and one family"}
	}

	seen := make(map[model.Key]model.ErrorSummary, len(summaries))
	var duplicates []string
	for _, s := range summaries {
		k := s.Key()
		if !exp.contains(k) {
			return model.ComparisonReport{}, &model.JoinError{Replicate: k.Replicate, Family: k.Family, Reason: "summary does not belong to any expected replicate/family"}
		}
		if _, dup := seen[k]; dup {
			duplicates = append(duplicates, k.String())
			continue
		}
		seen[k] = s
	}

	var missing []string
	for _, k := range exp.Keys() {
		if _, ok := seen[k]; !ok {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 || len(duplicates) > 0 {
		sort.Strings(duplicates)
		return model.ComparisonReport{}, &model.IncompleteAggregationError{
			Expected:   exp.Count(),
			Got:        len(summaries),
			Missing:    missing,
			Duplicates: duplicates,
		}
	}

	type acc struct {
		coef, pred float64
		n          int
	}
	sums := make(map[model.Family]*acc)
	for _, k := range exp.Keys() {
		s := seen[k]
		a := sums[s.Family]
		if a == nil {
			a = &acc{}
			sums[s.Family] = a
		}
		a.coef += s.CoefficientError
		a.pred += s.PredictionError
		a.n++
	}

	families := make([]model.Family, 0, len(sums))
	for f := range sums {
		families = append(families, f)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].Order() < families[j].Order() })

	report := model.ComparisonReport{Replicates: exp.Replicates, Complete: true}
	for _, f := range families {
		a := sums[f]
		report.Rows = append(report.Rows, model.ReportRow{
			Family:              f,
			AvgCoefficientError: a.coef / float64(a.n),
			AvgPredictionError:  a.pred / float64(a.n),
			Replicates:          a.n,
		})
	}
	return report, nil
}

// Row returns the report row of family f.
func Row(r model.ComparisonReport, f model.Family) (model.ReportRow, error) {
	for _, row := range r.Rows {
		if row.Family == f {
			return row, nil
		}
	}
	return model.ReportRow{}, fmt.Errorf("report has no row for family %q", f)
}
