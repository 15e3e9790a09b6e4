// Package fit implements the L1- and L2-penalized linear regression fitters.
//
// Both families share one procedure: standardize the training partition,
// build a log-spaced penalty grid, pick the penalty with the lowest k-fold
// cross-validated squared error, refit on the whole training partition and
// predict the test partition. Only the per-penalty solver differs.
package fit

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"regsim/internal/model"
)

// foldStream separates fold assignment from the simulation stream of the
// same replicate.
const foldStream = 0xf01d

// Options controls cross-validation and the solvers.
type Options struct {
	Folds          int
	LambdaCount    int
	LambdaMinRatio float64
	MaxIterations  int
	Tolerance      float64
}

// DefaultOptions matches the reference configuration.
func DefaultOptions() Options {
	return Options{
		Folds:          5,
		LambdaCount:    100,
		LambdaMinRatio: 1e-4,
		MaxIterations:  10000,
		Tolerance:      1e-7,
	}
}

func (o Options) validate() error {
	switch {
	case o.Folds < 2:
		return &model.ConfigurationError{Field: "folds", Reason: fmt.Sprintf("must be >= 2 (got %d)", o.Folds)}
	case o.LambdaCount < 2:
		return &model.ConfigurationError{Field: "lambda_count", Reason: fmt.Sprintf("must be >= 2 (got %d)", o.LambdaCount)}
	case !(o.LambdaMinRatio > 0 && o.LambdaMinRatio < 1):
		return &model.ConfigurationError{Field: "lambda_min_ratio", Reason: fmt.Sprintf("must be in (0, 1) (got %v)", o.LambdaMinRatio)}
	case o.MaxIterations <= 0:
		return &model.ConfigurationError{Field: "max_iterations", Reason: fmt.Sprintf("must be > 0 (got %d)", o.MaxIterations)}
	case !(o.Tolerance > 0):
		return &model.ConfigurationError{Field: "tolerance", Reason: fmt.Sprintf("must be > 0 (got %v)", o.Tolerance)}
	}
	return nil
}

// Fitter fits one model family to one dataset.
type Fitter interface {
	Family() model.Family
	Fit(ctx context.Context, ds model.Dataset) (model.FitResult, error)
}

// New returns the fitter for family.
func New(family model.Family, opts Options) (Fitter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch family {
	case model.FamilyL1:
		return &penalized{family: family, opts: opts, solver: lasso{maxIter: opts.MaxIterations, tol: opts.Tolerance}}, nil
	case model.FamilyL2:
		return &penalized{family: family, opts: opts, solver: ridge{}}, nil
	default:
		return nil, &model.ConfigurationError{Field: "families", Reason: fmt.Sprintf("unknown model family %q", family)}
	}
}

type penalized struct {
	family model.Family
	opts   Options
	solver solver
}

func (f *penalized) Family() model.Family { return f.family }

func (f *penalized) fail(ds model.Dataset, format string, args ...any) error {
	return &model.FitError{Replicate: ds.Replicate, Family: f.family, Reason: fmt.Sprintf(format, args...)}
}

// Fit runs cross-validated selection and the final refit. Degenerate inputs
// are reported as *model.FitError; no default model is ever substituted.
func (f *penalized) Fit(ctx context.Context, ds model.Dataset) (model.FitResult, error) {
	n := len(ds.Train)
	k := f.opts.Folds
	if n < k {
		return model.FitResult{}, f.fail(ds, "%d training rows cannot be split into %d folds", n, k)
	}
	p := ds.Features()
	if p == 0 {
		return model.FitResult{}, f.fail(ds, "dataset has no features")
	}
	for i, r := range ds.Train {
		if len(r.X) != p {
			return model.FitResult{}, f.fail(ds, "training row %d has %d features, want %d", i, len(r.X), p)
		}
	}
	for i, r := range ds.Test {
		if len(r.X) != p {
			return model.FitResult{}, f.fail(ds, "test row %d has %d features, want %d", i, len(r.X), p)
		}
	}

	ys := make([]float64, n)
	for i, r := range ds.Train {
		ys[i] = r.Y
	}
	if floats.Max(ys) == floats.Min(ys) {
		return model.FitResult{}, f.fail(ds, "response is constant on the training partition")
	}

	full := newDesign(ds.Train, seq(n), p)
	if !full.anyActive() {
		return model.FitResult{}, f.fail(ds, "all features are constant on the training partition")
	}
	l1Max := full.lambdaMax()
	if !(l1Max > 0) || math.IsInf(l1Max, 0) {
		return model.FitResult{}, f.fail(ds, "degenerate penalty path (lambda max = %v); the response is constant or non-finite", l1Max)
	}
	lambdas := Grid(f.solver.lambdaMax(l1Max), f.solver.gridRatio(f.opts.LambdaMinRatio), f.opts.LambdaCount)

	cvErr, err := f.crossValidate(ctx, ds, p, lambdas)
	if err != nil {
		return model.FitResult{}, err
	}
	best := -1
	for i, e := range cvErr {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			continue
		}
		if best < 0 || e < cvErr[best] {
			best = i
		}
	}
	if best < 0 {
		return model.FitResult{}, f.fail(ds, "no penalty produced a finite cross-validation error")
	}

	path, err := f.solver.path(full, lambdas[:best+1])
	if err != nil {
		return model.FitResult{}, &model.FitError{Replicate: ds.Replicate, Family: f.family, Reason: "final refit failed", Err: err}
	}
	beta, intercept := full.unscale(path[best])

	preds := make([]float64, len(ds.Test))
	for i, r := range ds.Test {
		preds[i] = predict(beta, intercept, r.X)
	}
	return model.FitResult{
		Replicate:    ds.Replicate,
		Family:       f.family,
		Predictions:  preds,
		Coefficients: beta,
		Intercept:    intercept,
		Lambda:       lambdas[best],
	}, nil
}

// crossValidate returns the mean held-out squared error per penalty.
func (f *penalized) crossValidate(ctx context.Context, ds model.Dataset, p int, lambdas []float64) ([]float64, error) {
	n := len(ds.Train)
	folds := AssignFolds(ds.Replicate, n, f.opts.Folds)
	sse := make([]float64, len(lambdas))

	for fold := 0; fold < f.opts.Folds; fold++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var trainIdx, holdIdx []int
		for i, fi := range folds {
			if fi == fold {
				holdIdx = append(holdIdx, i)
			} else {
				trainIdx = append(trainIdx, i)
			}
		}
		d := newDesign(ds.Train, trainIdx, p)
		path, err := f.solver.path(d, lambdas)
		if err != nil {
			return nil, &model.FitError{Replicate: ds.Replicate, Family: f.family, Reason: fmt.Sprintf("fold %d", fold+1), Err: err}
		}
		for li, b := range path {
			beta, intercept := d.unscale(b)
			for _, i := range holdIdx {
				e := ds.Train[i].Y - predict(beta, intercept, ds.Train[i].X)
				sse[li] += e * e
			}
		}
	}
	floats.Scale(1/float64(n), sse)
	return sse, nil
}

// Grid returns count penalties log-spaced from top down to top·ratio.
func Grid(top, ratio float64, count int) []float64 {
	g := floats.LogSpan(make([]float64, count), top*ratio, top)
	for i, j := 0, len(g)-1; i < j; i, j = i+1, j-1 {
		g[i], g[j] = g[j], g[i]
	}
	g[0] = top
	return g
}

// AssignFolds maps each of n rows to a fold in [0, k). Rows are permuted by a
// stream seeded with the replicate id and dealt round-robin, so fold sizes
// differ by at most one.
func AssignFolds(replicate model.ReplicateID, n, k int) []int {
	rng := rand.New(rand.NewPCG(uint64(replicate), foldStream))
	out := make([]int, n)
	for pos, row := range rng.Perm(n) {
		out[row] = pos % k
	}
	return out
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
