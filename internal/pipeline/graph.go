package pipeline

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"regsim/internal/config"
	"regsim/internal/core"
	"regsim/internal/dag"
	"regsim/internal/dataio"
	"regsim/internal/model"
)

// Step kinds.
const (
	KindSimulate = "simulate"
	KindFit      = "fit"
	KindEvaluate = "evaluate"
	KindReport   = "report"
)

// ReportStep is the name of the single aggregation step.
const ReportStep = "report"

// Parameter names carried by the tasks.
const (
	paramOutputDir      = "output_dir"
	paramReplicate      = "replicate"
	paramFamily         = "family"
	paramCoefficients   = "coefficients"
	paramTrainSize      = "train_size"
	paramTestSize       = "test_size"
	paramNoiseSD        = "noise_sd"
	paramFolds          = "folds"
	paramLambdaCount    = "lambda_count"
	paramLambdaMinRatio = "lambda_min_ratio"
	paramMaxIterations  = "max_iterations"
	paramTolerance      = "tolerance"
	paramReplicates     = "replicates"
	paramFamilies       = "families"
)

func SimulateStep(r model.ReplicateID) string { return fmt.Sprintf("simulate_%d", r) }

func FitStep(r model.ReplicateID, f model.Family) string { return fmt.Sprintf("fit_%d_%s", r, f) }

func EvaluateStep(r model.ReplicateID, f model.Family) string {
	return fmt.Sprintf("evaluate_%d_%s", r, f)
}

// Plan is the declarative step graph of one configuration.
type Plan struct {
	Tasks []core.Task
	Edges []dag.Edge
}

// BuildPlan declares every step of cfg. outputDir is the slash-separated
// output directory relative to the working directory.
func BuildPlan(cfg config.Config, outputDir string) Plan {
	rel := func(name string) string { return path.Join(outputDir, name) }
	coefs := config.FormatFloats(cfg.Coefficients)
	fam := make([]string, len(cfg.Families))
	for i, f := range cfg.Families {
		fam[i] = string(f)
	}

	var p Plan
	report := core.Task{
		Name: ReportStep,
		Kind: KindReport,
		Params: map[string]string{
			paramOutputDir:  outputDir,
			paramReplicates: strconv.Itoa(cfg.Replicates),
			paramFamilies:   strings.Join(fam, ","),
		},
		Outputs: []string{rel(dataio.ReportMarkdownName), rel(dataio.ReportHTMLName)},
	}

	for i := 1; i <= cfg.Replicates; i++ {
		r := model.ReplicateID(i)
		train, test := rel(dataio.TrainName(r)), rel(dataio.TestName(r))
		sim := SimulateStep(r)
		p.Tasks = append(p.Tasks, core.Task{
			Name: sim,
			Kind: KindSimulate,
			Params: map[string]string{
				paramOutputDir:    outputDir,
				paramReplicate:    r.String(),
				paramCoefficients: coefs,
				paramTrainSize:    strconv.Itoa(cfg.TrainSize),
				paramTestSize:     strconv.Itoa(cfg.TestSize),
				paramNoiseSD:      formatFloat(cfg.NoiseSD),
			},
			Outputs: []string{train, test},
		})

		for _, f := range cfg.Families {
			predicted, coef := rel(dataio.PredictedName(r, f)), rel(dataio.CoefName(r, f))
			summary := rel(dataio.SummaryName(r, f))
			fitName, evalName := FitStep(r, f), EvaluateStep(r, f)

			p.Tasks = append(p.Tasks,
				core.Task{
					Name:   fitName,
					Kind:   KindFit,
					Inputs: []string{train, test},
					Params: map[string]string{
						paramOutputDir:      outputDir,
						paramReplicate:      r.String(),
						paramFamily:         string(f),
						paramFolds:          strconv.Itoa(cfg.Folds),
						paramLambdaCount:    strconv.Itoa(cfg.LambdaCount),
						paramLambdaMinRatio: formatFloat(cfg.LambdaMinRatio),
						paramMaxIterations:  strconv.Itoa(cfg.MaxIterations),
						paramTolerance:      formatFloat(cfg.Tolerance),
					},
					Outputs: []string{predicted, coef},
				},
				core.Task{
					Name:   evalName,
					Kind:   KindEvaluate,
					Inputs: []string{train, test, predicted, coef},
					Params: map[string]string{
						paramOutputDir:    outputDir,
						paramReplicate:    r.String(),
						paramFamily:       string(f),
						paramCoefficients: coefs,
					},
					Outputs: []string{summary},
				},
			)
			p.Edges = append(p.Edges,
				dag.Edge{From: sim, To: fitName},
				dag.Edge{From: sim, To: evalName},
				dag.Edge{From: fitName, To: evalName},
				dag.Edge{From: evalName, To: ReportStep},
			)
			report.Inputs = append(report.Inputs, summary)
		}
	}
	p.Tasks = append(p.Tasks, report)
	return p
}

// BuildGraph declares and validates the step graph of cfg.
func BuildGraph(cfg config.Config, outputDir string) (*dag.TaskGraph, error) {
	p := BuildPlan(cfg, outputDir)
	g, err := dag.NewTaskGraph(p.Tasks, p.Edges)
	if err != nil {
		return nil, fmt.Errorf("building step graph: %w", err)
	}
	return g, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
