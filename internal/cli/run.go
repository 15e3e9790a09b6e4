// Package cli is the regsim command line: argument parsing, logger setup and
// the mapping from run outcomes to exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"regsim/internal/pipeline"
)

// CLIResult is the outcome of one invocation. Result is set by commands that
// produce a report, including runs that failed part way.
type CLIResult struct {
	ExitCode int
	Result   *pipeline.Result
}

// Run parses args, executes the selected command and returns its semantic
// exit code. Output goes to the process stdout and stderr.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithIO(ctx, args, os.Stdout, os.Stderr)
}

// RunWithIO is Run with explicit output streams. Reports and documents are
// written to stdout; logs go to stderr.
func RunWithIO(ctx context.Context, args []string, stdout, stderr io.Writer) (res CLIResult, err error) {
	a := &app{stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic", zap.Any("value", r), zap.Stack("stack"))
			res = CLIResult{ExitCode: ExitInternalError}
			err = fmt.Errorf("panic: %v", r)
		}
		_ = a.logger.Sync()
	}()

	if args == nil {
		// Cobra falls back to os.Args on a nil slice.
		args = []string{}
	}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err = root.ExecuteContext(ctx)
	if err != nil && !a.started {
		// Cobra reports unknown commands and flags and argument count
		// violations as plain errors before any command body runs.
		var invErr *InvocationError
		if !errors.As(err, &invErr) {
			err = invalidInvocationf("%v", err)
		}
	}
	return CLIResult{ExitCode: ExitCode(err), Result: a.result}, err
}

// app is the state shared by the commands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	logLevel  string
	logFormat string
	logger    *zap.Logger

	// started is set once a command body runs; errors before that point
	// are invocation errors.
	started bool
	result  *pipeline.Result
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "regsim",
		Short: "Compare penalized regression methods on simulated data",
		Long: `regsim simulates replicate datasets from a known linear model, fits
lasso (L1) and ridge (L2) regressions with cross-validated penalties, scores
every fit against the truth and reports the average errors per method.

Every path is resolved under the explicit --workdir; the process working
directory is never consulted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(a.logLevel, a.logFormat, a.stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return invalidInvocationf("missing command (expected run, report, plan or config)")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", logFormatConsole, "log encoding (console|json)")

	root.AddCommand(
		a.newRunCommand(),
		a.newReportCommand(),
		a.newPlanCommand(),
		a.newConfigCommand(),
	)
	return root
}

// body marks the start of a command body and returns its runner.
func (a *app) body(fn func(cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a.started = true
		return fn(cmd)
	}
}
