// Package model defines the entities that flow between regsim pipeline steps.
//
// Every value here is write-once within a run: a step produces it, persists it,
// and downstream steps only read it. Joins between entities are keyed by
// (ReplicateID, Family) and never cross replicates.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplicateID is the 1-based index of an independent simulated dataset.
// It doubles as the random seed for that replicate.
type ReplicateID int

func (r ReplicateID) String() string { return strconv.Itoa(int(r)) }

// Family identifies a penalized regression method.
type Family string

const (
	FamilyL1 Family = "l1"
	FamilyL2 Family = "l2"
)

// Families lists the supported families in report order.
var Families = []Family{FamilyL1, FamilyL2}

// ParseFamily accepts the case-insensitive family tag.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyL1:
		return FamilyL1, nil
	case FamilyL2:
		return FamilyL2, nil
	default:
		return "", &ConfigurationError{Field: "families", Reason: fmt.Sprintf("unknown model family %q (expected l1|l2)", s)}
	}
}

// Label is the human-readable method name used in reports.
func (f Family) Label() string {
	switch f {
	case FamilyL1:
		return "Lasso (L1)"
	case FamilyL2:
		return "Ridge (L2)"
	default:
		return string(f)
	}
}

// Order returns the position of f in report order, or -1 when unknown.
func (f Family) Order() int {
	for i, known := range Families {
		if known == f {
			return i
		}
	}
	return -1
}

// Row is one observation: a feature vector and its response.
type Row struct {
	X []float64
	Y float64
}

// Dataset is the simulated train/test split for one replicate.
type Dataset struct {
	Replicate ReplicateID
	Train     []Row
	Test      []Row
}

// Features returns the feature width of the dataset, or 0 when it has no rows.
func (d Dataset) Features() int {
	if len(d.Train) > 0 {
		return len(d.Train[0].X)
	}
	if len(d.Test) > 0 {
		return len(d.Test[0].X)
	}
	return 0
}

// TestResponses returns the Y column of the test partition.
func (d Dataset) TestResponses() []float64 {
	out := make([]float64, len(d.Test))
	for i, r := range d.Test {
		out[i] = r.Y
	}
	return out
}

// FitResult is the output of fitting one family on one replicate.
//
// Predictions align one-to-one with Dataset.Test. Coefficients are on the
// original feature scale and align with the true coefficient vector.
type FitResult struct {
	Replicate    ReplicateID
	Family       Family
	Predictions  []float64
	Coefficients []float64
	Intercept    float64
	Lambda       float64
}

// ErrorSummary holds the two error metrics for one (replicate, family) pair.
type ErrorSummary struct {
	Replicate        ReplicateID
	Family           Family
	PredictionError  float64
	CoefficientError float64
}

// Key returns the join key of the summary.
func (s ErrorSummary) Key() Key { return Key{Replicate: s.Replicate, Family: s.Family} }

// Key is the (replicate, family) join key.
type Key struct {
	Replicate ReplicateID
	Family    Family
}

func (k Key) String() string { return fmt.Sprintf("%d/%s", k.Replicate, k.Family) }

// ReportRow is one aggregated line of the comparison report.
type ReportRow struct {
	Family              Family
	AvgCoefficientError float64
	AvgPredictionError  float64
	Replicates          int
}

// ComparisonReport is the final per-family summary across all replicates.
type ComparisonReport struct {
	Rows       []ReportRow
	Replicates int
	Complete   bool
}
