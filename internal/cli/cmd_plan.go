package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"regsim/internal/config"
	"regsim/internal/pipeline"
)

// docOptions configures the commands that only print documents.
type docOptions struct {
	workDir   string
	outputDir string
	cfg       configFlags
}

func (o *docOptions) register(fs *pflag.FlagSet, withOutputDir bool) {
	fs.StringVar(&o.workDir, "workdir", "", "absolute working directory; needed only for a relative --config")
	if withOutputDir {
		fs.StringVar(&o.outputDir, "output-dir", pipeline.DefaultOutputDir, "output directory under --workdir")
	}
	o.cfg.register(fs)
}

func (o *docOptions) load(fs *pflag.FlagSet) (config.Config, error) {
	workDir := ""
	if fs.Changed("workdir") {
		wd, err := requireWorkDir(o.workDir)
		if err != nil {
			return config.Config{}, err
		}
		workDir = wd
	}
	return o.cfg.load(fs, workDir)
}

func (a *app) newPlanCommand() *cobra.Command {
	o := &docOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the step graph as YAML",
		Long: `Plan prints every step the run command would execute with its kind,
parameters, inputs, outputs and dependencies, ordered by depth and name.
The graph hash changes whenever any step definition changes.`,
		Args: cobra.NoArgs,
		RunE: a.body(func(cmd *cobra.Command) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			out, err := pipeline.CleanOutputDir(o.outputDir)
			if err != nil {
				return err
			}
			g, err := pipeline.BuildGraph(cfg, out)
			if err != nil {
				return err
			}
			b, err := pipeline.Describe(g).YAML()
			if err != nil {
				return err
			}
			if _, err := a.stdout.Write(b); err != nil {
				return fmt.Errorf("printing plan: %w", err)
			}
			return nil
		}),
	}
	o.register(cmd.Flags(), true)
	return cmd
}

func (a *app) newConfigCommand() *cobra.Command {
	o := &docOptions{}
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: a.body(func(cmd *cobra.Command) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			b, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if _, err := a.stdout.Write(b); err != nil {
				return fmt.Errorf("printing config: %w", err)
			}
			return nil
		}),
	}
	o.register(cmd.Flags(), false)
	return cmd
}
