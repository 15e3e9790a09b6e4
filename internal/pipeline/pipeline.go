package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.uber.org/zap"

	"regsim/internal/aggregate"
	"regsim/internal/config"
	"regsim/internal/core"
	"regsim/internal/dag"
	"regsim/internal/dataio"
	"regsim/internal/metrics"
	"regsim/internal/model"
	"regsim/internal/runstate"
	"regsim/internal/trace"
)

// DefaultOutputDir is the output directory used when Options leaves it empty.
const DefaultOutputDir = "out"

// Options configures one pipeline run. Only WorkDir is required.
type Options struct {
	// WorkDir is the absolute working directory every path is relative to.
	WorkDir string

	// OutputDir is the slash-separated output directory below WorkDir. It is
	// cleared at the start of every run.
	OutputDir string

	// Cache enables incremental mode; nil runs every step.
	Cache core.Cache

	// Jobs bounds step parallelism. Zero falls back to the configuration,
	// then to one worker per CPU.
	Jobs int

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Recorder *runstate.Recorder
	Sink     trace.Sink

	// RunID names the run record; empty asks the Recorder for a fresh one.
	RunID string
}

// Result is the outcome of a run. Graph is set whenever the graph executed,
// including runs that failed.
type Result struct {
	RunID  string
	Graph  *dag.GraphResult
	Report model.ComparisonReport
	Phase  Phase
}

// Pipeline is one configured, validated run.
type Pipeline struct {
	cfg   config.Config
	opts  Options
	graph *dag.TaskGraph
}

// New validates cfg and opts and declares the step graph.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(opts.WorkDir) {
		return nil, &model.ConfigurationError{Field: "workdir", Reason: fmt.Sprintf("must be an absolute path (got %q)", opts.WorkDir)}
	}
	out, err := CleanOutputDir(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	opts.OutputDir = out
	if opts.Jobs <= 0 {
		opts.Jobs = cfg.Jobs
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	g, err := BuildGraph(cfg, out)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, opts: opts, graph: g}, nil
}

// CleanOutputDir canonicalizes an output directory and rejects any that is not
// strictly below the working directory. Empty means DefaultOutputDir.
func CleanOutputDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return DefaultOutputDir, nil
	}
	slashed := filepath.ToSlash(dir)
	clean := path.Clean(slashed)
	if path.IsAbs(clean) || filepath.IsAbs(dir) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &model.ConfigurationError{Field: "output_dir", Reason: fmt.Sprintf("must be a subdirectory of the working directory (got %q)", dir)}
	}
	return clean, nil
}

// Graph returns the declared step graph.
func (p *Pipeline) Graph() *dag.TaskGraph { return p.graph }

// Layout is where the run writes its entity files.
func (p *Pipeline) Layout() dataio.Layout {
	return dataio.NewLayout(filepath.Join(p.opts.WorkDir, filepath.FromSlash(p.opts.OutputDir)))
}

// Run executes the graph once. On a step failure it returns the partial
// Result together with a *model.StepError wrapping the step's own error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	log := p.opts.Logger
	layout := p.Layout()
	if err := os.RemoveAll(layout.Dir); err != nil {
		return nil, fmt.Errorf("clearing output directory: %w", err)
	}
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	res := &Result{RunID: p.opts.RunID}
	mode := runstate.ExecutionModeClean
	if p.opts.Cache != nil {
		mode = runstate.ExecutionModeIncremental
	}
	if rec := p.opts.Recorder; rec != nil {
		if res.RunID == "" {
			res.RunID = rec.NewRunID()
		}
		err := rec.StartRun(runstate.Run{
			RunID:     res.RunID,
			GraphHash: p.graph.Hash().String(),
			Mode:      mode,
			Jobs:      p.opts.Jobs,
			Steps:     p.graph.Len(),
		})
		if err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}
	log = log.With(zap.String("run_id", res.RunID))
	log.Info("pipeline starting",
		zap.String("graph_hash", p.graph.Hash().String()),
		zap.Int("steps", p.graph.Len()),
		zap.Int("features", p.cfg.Features()),
		zap.Int("expected_summaries", p.cfg.Expected()),
		zap.Int("jobs", p.opts.Jobs),
		zap.String("mode", string(mode)))

	tracker := NewPhaseTracker(p.cfg.Replicates, p.cfg.Families)
	st := &steps{loadLimit: p.opts.Jobs}

	coreRunner := core.NewRunner(p.opts.WorkDir, p.opts.Cache)
	coreRunner.Logger = log
	coreRunner.Executor.Logger = log
	st.register(coreRunner.Executor)
	if err := checkKinds(p.graph, coreRunner.Executor.Kinds()); err != nil {
		return res, p.finish(res, err)
	}
	runner, err := dag.NewCacheAwareRunner(coreRunner)
	if err != nil {
		return nil, err
	}
	exec, err := dag.NewExecutor(p.graph, runner)
	if err != nil {
		return nil, err
	}
	exec.FailFast = true
	exec.Logger = log
	exec.Sink = p.opts.Sink
	exec.Observer = &observer{
		tracker:  tracker,
		metrics:  p.opts.Metrics,
		recorder: p.opts.Recorder,
		runID:    res.RunID,
		logger:   log,
	}

	var gr *dag.GraphResult
	if p.opts.Jobs == 1 {
		gr, err = exec.RunSerial(ctx)
	} else {
		gr, err = exec.RunParallel(ctx, p.opts.Jobs)
	}
	res.Phase = tracker.Phase()
	if err != nil {
		return res, p.finish(res, fmt.Errorf("executing pipeline: %w", err))
	}
	res.Graph = gr

	if name, stepErr, failed := gr.FirstFailure(); failed {
		return res, p.finish(res, &model.StepError{Step: name, Err: stepErr})
	}

	report, ok := st.takeReport()
	if !ok {
		// The report step was replayed from cache.
		exp := aggregate.Expectation{Replicates: p.cfg.Replicates, Families: p.cfg.Families}
		report, err = buildReport(ctx, layout, exp, p.opts.Jobs)
		if err != nil {
			return res, p.finish(res, &model.StepError{Step: ReportStep, Err: err})
		}
	}
	for _, f := range p.cfg.Families {
		row, err := aggregate.Row(report, f)
		if err != nil {
			return res, p.finish(res, &model.StepError{Step: ReportStep, Err: err})
		}
		log.Info("family result",
			zap.String("family", string(f)),
			zap.Float64("avg_estimation_error", row.AvgCoefficientError),
			zap.Float64("avg_prediction_error", row.AvgPredictionError))
	}
	res.Report = report
	p.opts.Metrics.ObserveReport(report)

	counts := gr.Trace.Counts()
	log.Info("pipeline finished",
		zap.Stringer("phase", res.Phase),
		zap.Int("executed", counts[trace.EventTaskExecuted]),
		zap.Int("cached", counts[trace.EventTaskCached]))
	return res, p.finish(res, nil)
}

// checkKinds fails when a step of g has a kind with no registered function.
func checkKinds(g *dag.TaskGraph, kinds []string) error {
	for _, t := range g.Tasks() {
		if !slices.Contains(kinds, t.Kind) {
			return fmt.Errorf("step %s has unregistered kind %q (registered: %s)", t.Name, t.Kind, strings.Join(kinds, ","))
		}
	}
	return nil
}

// finish writes the terminal run record and passes runErr through.
func (p *Pipeline) finish(res *Result, runErr error) error {
	rec := p.opts.Recorder
	if rec == nil || res.RunID == "" {
		return runErr
	}
	status := runstate.RunStatusSucceeded
	var errs []error
	if runErr != nil {
		status = runstate.RunStatusFailed
		if err := rec.RecordFailure(res.RunID, runErr); err != nil {
			errs = append(errs, fmt.Errorf("recording failure: %w", err))
		}
	}
	if err := rec.FinishRun(res.RunID, status); err != nil {
		errs = append(errs, fmt.Errorf("recording run end: %w", err))
	}
	if runErr != nil {
		for _, err := range errs {
			p.opts.Logger.Warn("run record incomplete", zap.Error(err))
		}
		return runErr
	}
	return errors.Join(errs...)
}
