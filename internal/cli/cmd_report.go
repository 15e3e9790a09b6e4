package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"regsim/internal/aggregate"
	"regsim/internal/dataio"
	"regsim/internal/pipeline"
)

const (
	reportFormatTerminal = "terminal"
	reportFormatMarkdown = "markdown"
	reportFormatHTML     = "html"
)

type reportOptions struct {
	workDir   string
	outputDir string
	format    string
	write     bool
	cfg       configFlags
}

func (a *app) newReportCommand() *cobra.Command {
	o := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate existing error summaries without running the pipeline",
		Long: `Report reads the error summary of every configured replicate and family
from the output directory and prints the comparison table. Nothing is
simulated or fitted; a missing summary is an incomplete aggregation.`,
		Args: cobra.NoArgs,
		RunE: a.body(func(cmd *cobra.Command) error {
			return a.report(cmd.Context(), cmd.Flags(), o)
		}),
	}
	fs := cmd.Flags()
	fs.StringVar(&o.workDir, "workdir", "", "absolute working directory (required)")
	fs.StringVar(&o.outputDir, "output-dir", pipeline.DefaultOutputDir, "output directory under --workdir")
	fs.StringVar(&o.format, "format", reportFormatTerminal, "output format (terminal|markdown|html)")
	fs.BoolVar(&o.write, "write", false, "also rewrite report.md and report.html in the output directory")
	o.cfg.register(fs)
	return cmd
}

func (a *app) report(ctx context.Context, fs *pflag.FlagSet, o *reportOptions) error {
	workDir, err := requireWorkDir(o.workDir)
	if err != nil {
		return err
	}
	format := strings.ToLower(strings.TrimSpace(o.format))
	switch format {
	case reportFormatTerminal, reportFormatMarkdown, reportFormatHTML:
	default:
		return invalidInvocationf("invalid --format %q (expected terminal|markdown|html)", o.format)
	}
	outputDir, err := pipeline.CleanOutputDir(o.outputDir)
	if err != nil {
		return err
	}
	cfg, err := o.cfg.load(fs, workDir)
	if err != nil {
		return err
	}

	layout := dataio.NewLayout(filepath.Join(workDir, filepath.FromSlash(outputDir)))
	exp := aggregate.Expectation{Replicates: cfg.Replicates, Families: cfg.Families}
	summaries, err := aggregate.LoadSummaries(ctx, layout, exp, cfg.Jobs)
	if err != nil {
		return err
	}
	report, err := aggregate.Aggregate(summaries, exp)
	if err != nil {
		return err
	}
	a.result = &pipeline.Result{Report: report, Phase: pipeline.PhaseAggregated}
	a.logger.Info("report aggregated",
		zap.String("output_dir", layout.Dir),
		zap.Int("summaries", len(summaries)))

	if o.write {
		if err := aggregate.WriteReport(layout, report); err != nil {
			return err
		}
		a.result.Phase = pipeline.PhaseReported
	}

	var out string
	switch format {
	case reportFormatMarkdown:
		out = aggregate.RenderMarkdown(report)
	case reportFormatHTML:
		b, err := aggregate.RenderHTML(report)
		if err != nil {
			return err
		}
		out = string(b)
	default:
		out = aggregate.RenderTerminal(report) + "\n"
	}
	if _, err := io.WriteString(a.stdout, out); err != nil {
		return fmt.Errorf("printing report: %w", err)
	}
	return nil
}
