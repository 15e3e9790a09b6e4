package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"regsim/internal/aggregate"
	"regsim/internal/core"
	"regsim/internal/dataio"
	"regsim/internal/evaluate"
	"regsim/internal/fit"
	"regsim/internal/model"
	"regsim/internal/simulate"
)

// steps holds the step functions of one run. The report step hands its
// result back through report.
type steps struct {
	loadLimit int

	mu     sync.Mutex
	report *model.ComparisonReport
}

func (s *steps) register(exec *core.Executor) {
	exec.Register(KindSimulate, s.simulate)
	exec.Register(KindFit, s.fit)
	exec.Register(KindEvaluate, s.evaluate)
	exec.Register(KindReport, s.aggregate)
}

func (s *steps) simulate(_ context.Context, sc core.StepContext) error {
	p := paramsOf(sc.Task)
	layout := p.layout(sc.WorkingDir)
	r := p.replicate()
	coefs := p.floats(paramCoefficients)
	sizes := simulate.Sizes{Train: p.int(paramTrainSize), Test: p.int(paramTestSize)}
	noise := p.float(paramNoiseSD)
	if err := p.err(); err != nil {
		return err
	}

	ds, err := simulate.Generate(r, coefs, sizes, noise)
	if err != nil {
		return err
	}
	if err := dataio.WriteDataset(layout, ds); err != nil {
		return fmt.Errorf("writing dataset %d: %w", r, err)
	}
	sc.Logger.Debug("dataset simulated", zap.Int("train", len(ds.Train)), zap.Int("test", len(ds.Test)))
	return nil
}

func (s *steps) fit(ctx context.Context, sc core.StepContext) error {
	p := paramsOf(sc.Task)
	layout := p.layout(sc.WorkingDir)
	r := p.replicate()
	family := p.family()
	opts := fit.Options{
		Folds:          p.int(paramFolds),
		LambdaCount:    p.int(paramLambdaCount),
		LambdaMinRatio: p.float(paramLambdaMinRatio),
		MaxIterations:  p.int(paramMaxIterations),
		Tolerance:      p.float(paramTolerance),
	}
	if err := p.err(); err != nil {
		return err
	}

	fitter, err := fit.New(family, opts)
	if err != nil {
		return err
	}
	ds, err := dataio.ReadDataset(layout, r)
	if err != nil {
		return fmt.Errorf("reading dataset %d: %w", r, err)
	}
	res, err := fitter.Fit(ctx, ds)
	if err != nil {
		return err
	}
	if err := dataio.WriteFitResult(layout, res); err != nil {
		return fmt.Errorf("writing fit result %d/%s: %w", r, family, err)
	}
	sc.Logger.Debug("model fitted", zap.Float64("lambda", res.Lambda))
	return nil
}

func (s *steps) evaluate(_ context.Context, sc core.StepContext) error {
	p := paramsOf(sc.Task)
	layout := p.layout(sc.WorkingDir)
	r := p.replicate()
	family := p.family()
	truth := p.floats(paramCoefficients)
	if err := p.err(); err != nil {
		return err
	}

	ds, err := dataio.ReadDataset(layout, r)
	if err != nil {
		return fmt.Errorf("reading dataset %d: %w", r, err)
	}
	fr, err := dataio.ReadFitResult(layout, r, family)
	if err != nil {
		return fmt.Errorf("reading fit result %d/%s: %w", r, family, err)
	}
	summary, err := evaluate.Evaluate(fr, ds, truth)
	if err != nil {
		return err
	}
	if err := dataio.WriteSummary(layout, summary); err != nil {
		return fmt.Errorf("writing summary %d/%s: %w", r, family, err)
	}
	sc.Logger.Debug("fit evaluated",
		zap.Float64("prediction_error", summary.PredictionError),
		zap.Float64("coefficient_error", summary.CoefficientError))
	return nil
}

func (s *steps) aggregate(ctx context.Context, sc core.StepContext) error {
	p := paramsOf(sc.Task)
	layout := p.layout(sc.WorkingDir)
	exp := aggregate.Expectation{Replicates: p.int(paramReplicates), Families: p.families()}
	if err := p.err(); err != nil {
		return err
	}

	report, err := buildReport(ctx, layout, exp, s.loadLimit)
	if err != nil {
		return err
	}
	if err := aggregate.WriteReport(layout, report); err != nil {
		return err
	}

	s.mu.Lock()
	s.report = &report
	s.mu.Unlock()
	return nil
}

func (s *steps) takeReport() (model.ComparisonReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return model.ComparisonReport{}, false
	}
	return *s.report, true
}

// buildReport loads every expected summary and aggregates them.
func buildReport(ctx context.Context, layout dataio.Layout, exp aggregate.Expectation, limit int) (model.ComparisonReport, error) {
	summaries, err := aggregate.LoadSummaries(ctx, layout, exp, limit)
	if err != nil {
		return model.ComparisonReport{}, err
	}
	return aggregate.Aggregate(summaries, exp)
}
