package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"regsim/internal/aggregate"
	"regsim/internal/core"
	"regsim/internal/dataio"
	"regsim/internal/metrics"
	"regsim/internal/pipeline"
	"regsim/internal/runstate"
	"regsim/internal/trace"
)

// DefaultCacheDir is the step cache used by incremental runs, under --workdir.
const DefaultCacheDir = ".regsim/cache"

type runOptions struct {
	workDir     string
	outputDir   string
	cacheDir    string
	mode        string
	tracePath   string
	metricsFile string
	cfg         configFlags
}

func (a *app) newRunCommand() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate, fit, evaluate and report",
		Long: `Run executes the whole pipeline: one simulation per replicate, one fit
and one evaluation per replicate and family, then the comparison report.

The output directory is cleared first. In incremental mode a step whose
inputs, parameters and outputs are unchanged is replayed from the cache
instead of executed.`,
		Args: cobra.NoArgs,
		RunE: a.body(func(cmd *cobra.Command) error {
			return a.runPipeline(cmd.Context(), cmd.Flags(), o)
		}),
	}
	fs := cmd.Flags()
	fs.StringVar(&o.workDir, "workdir", "", "absolute working directory (required)")
	fs.StringVar(&o.outputDir, "output-dir", pipeline.DefaultOutputDir, "output directory under --workdir")
	fs.StringVar(&o.cacheDir, "cache-dir", DefaultCacheDir, "step cache directory for incremental mode")
	fs.StringVar(&o.mode, "mode", string(runstate.ExecutionModeClean), "execution mode (clean|incremental)")
	fs.StringVar(&o.tracePath, "trace", "", "write the canonical execution trace to this file")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	o.cfg.register(fs)
	return cmd
}

func (a *app) runPipeline(ctx context.Context, fs *pflag.FlagSet, o *runOptions) error {
	workDir, err := requireWorkDir(o.workDir)
	if err != nil {
		return err
	}
	mode, err := runstate.ParseMode(o.mode)
	if err != nil {
		return invalidInvocationf("%v", err)
	}
	var tracePath, metricsPath string
	if fs.Changed("trace") {
		if tracePath, err = resolveUnderWorkDir(workDir, "trace", o.tracePath); err != nil {
			return err
		}
	}
	if fs.Changed("metrics-file") {
		if metricsPath, err = resolveUnderWorkDir(workDir, "metrics-file", o.metricsFile); err != nil {
			return err
		}
	}
	outputDir, err := pipeline.CleanOutputDir(o.outputDir)
	if err != nil {
		return err
	}
	cacheDir, err := resolveUnderWorkDir(workDir, "cache-dir", o.cacheDir)
	if err != nil {
		return err
	}
	reserved := map[string]string{
		"--cache-dir":     cacheDir,
		"the run records": filepath.Join(workDir, runstate.StateDir),
	}
	if fs.Changed("config") {
		if reserved["--config"], err = resolveUnderWorkDir(workDir, "config", o.cfg.path); err != nil {
			return err
		}
	}
	if err := guardOutputDir(filepath.Join(workDir, filepath.FromSlash(outputDir)), reserved); err != nil {
		return err
	}
	cfg, err := o.cfg.load(fs, workDir)
	if err != nil {
		return err
	}

	var cache core.Cache
	if mode == runstate.ExecutionModeIncremental {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		cache = core.NewFileCache(cacheDir)
	}

	recorder, err := runstate.NewRecorder(workDir)
	if err != nil {
		return fmt.Errorf("opening run records: %w", err)
	}
	m := metrics.New(nil)
	events := trace.NewRecorder()

	p, err := pipeline.New(cfg, pipeline.Options{
		WorkDir:   workDir,
		OutputDir: outputDir,
		Cache:     cache,
		Logger:    a.logger,
		Metrics:   m,
		Recorder:  recorder,
		Sink:      trace.Tee{events, eventLog{a.logger}},
	})
	if err != nil {
		return err
	}

	res, runErr := p.Run(ctx)
	a.result = res

	var artifactErrs []error
	if tracePath != "" {
		tr := events.Trace(p.Graph().Hash().String())
		if err := writeTrace(tracePath, tr); err != nil {
			artifactErrs = append(artifactErrs, err)
		}
	}
	if metricsPath != "" {
		if err := os.MkdirAll(filepath.Dir(metricsPath), 0o755); err != nil {
			artifactErrs = append(artifactErrs, fmt.Errorf("creating metrics directory: %w", err))
		} else if err := m.WriteFile(metricsPath); err != nil {
			artifactErrs = append(artifactErrs, fmt.Errorf("writing metrics: %w", err))
		}
	}

	if runErr != nil {
		for _, err := range artifactErrs {
			a.logger.Warn("run artifact not written", zap.Error(err))
		}
		return runErr
	}
	if _, err := io.WriteString(a.stdout, aggregate.RenderTerminal(res.Report)+"\n"); err != nil {
		artifactErrs = append(artifactErrs, fmt.Errorf("printing report: %w", err))
	}
	return errors.Join(artifactErrs...)
}

// writeTrace writes the canonical trace JSON atomically.
func writeTrace(path string, tr trace.ExecutionTrace) error {
	b, err := tr.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := dataio.WriteFileAtomic(path, b, 0o644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}
