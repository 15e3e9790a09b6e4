package cli

import (
	"github.com/spf13/pflag"

	"regsim/internal/config"
	"regsim/internal/model"
)

// configFlags exposes every configuration option on the command line. Only
// flags the user actually set override the file or the defaults.
type configFlags struct {
	path string

	coefficients   []float64
	trainSize      int
	testSize       int
	noiseSD        float64
	replicates     int
	folds          int
	families       []string
	lambdaCount    int
	lambdaMinRatio float64
	maxIterations  int
	tolerance      float64
	jobs           int
}

func (c *configFlags) register(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringVar(&c.path, "config", "", "YAML configuration file (relative paths resolve under --workdir)")
	fs.Float64SliceVar(&c.coefficients, "coefficients", d.Coefficients, "true coefficient vector")
	fs.IntVar(&c.trainSize, "train-size", d.TrainSize, "training rows per replicate")
	fs.IntVar(&c.testSize, "test-size", d.TestSize, "test rows per replicate")
	fs.Float64Var(&c.noiseSD, "noise-sd", d.NoiseSD, "standard deviation of the response noise")
	fs.IntVar(&c.replicates, "replicates", d.Replicates, "number of simulated datasets")
	fs.IntVar(&c.folds, "folds", d.Folds, "cross-validation folds")
	fs.StringSliceVar(&c.families, "families", familyStrings(d.Families), "model families to fit (l1, l2)")
	fs.IntVar(&c.lambdaCount, "lambda-count", d.LambdaCount, "length of the penalty grid")
	fs.Float64Var(&c.lambdaMinRatio, "lambda-min-ratio", d.LambdaMinRatio, "smallest penalty as a fraction of the largest")
	fs.IntVar(&c.maxIterations, "max-iterations", d.MaxIterations, "coordinate descent iteration limit")
	fs.Float64Var(&c.tolerance, "tolerance", d.Tolerance, "coordinate descent convergence tolerance")
	fs.IntVar(&c.jobs, "jobs", d.Jobs, "maximum concurrent steps (0 = one per CPU)")
}

// load builds the effective configuration: defaults, then --config, then
// explicitly set flags. The result is validated.
func (c *configFlags) load(fs *pflag.FlagSet, workDir string) (config.Config, error) {
	cfg := config.Default()
	if fs.Changed("config") {
		p, err := resolveUnderWorkDir(workDir, "config", c.path)
		if err != nil {
			return config.Config{}, err
		}
		cfg, err = config.Load(p)
		if err != nil {
			return config.Config{}, err
		}
	}

	if fs.Changed("coefficients") {
		cfg.Coefficients = append([]float64(nil), c.coefficients...)
	}
	if fs.Changed("train-size") {
		cfg.TrainSize = c.trainSize
	}
	if fs.Changed("test-size") {
		cfg.TestSize = c.testSize
	}
	if fs.Changed("noise-sd") {
		cfg.NoiseSD = c.noiseSD
	}
	if fs.Changed("replicates") {
		cfg.Replicates = c.replicates
	}
	if fs.Changed("folds") {
		cfg.Folds = c.folds
	}
	if fs.Changed("families") {
		families := make([]model.Family, 0, len(c.families))
		for _, s := range c.families {
			f, err := model.ParseFamily(s)
			if err != nil {
				return config.Config{}, err
			}
			families = append(families, f)
		}
		cfg.Families = families
	}
	if fs.Changed("lambda-count") {
		cfg.LambdaCount = c.lambdaCount
	}
	if fs.Changed("lambda-min-ratio") {
		cfg.LambdaMinRatio = c.lambdaMinRatio
	}
	if fs.Changed("max-iterations") {
		cfg.MaxIterations = c.maxIterations
	}
	if fs.Changed("tolerance") {
		cfg.Tolerance = c.tolerance
	}
	if fs.Changed("jobs") {
		cfg.Jobs = c.jobs
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func familyStrings(families []model.Family) []string {
	out := make([]string, len(families))
	for i, f := range families {
		out[i] = string(f)
	}
	return out
}
