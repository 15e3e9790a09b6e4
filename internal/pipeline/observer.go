package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"regsim/internal/core"
	"regsim/internal/dag"
	"regsim/internal/metrics"
	"regsim/internal/runstate"
)

// observer feeds terminal steps into the phase tracker, the metrics, the
// run records and the log.
type observer struct {
	tracker  *PhaseTracker
	metrics  *metrics.Metrics
	recorder *runstate.Recorder
	runID    string
	logger   *zap.Logger
}

var _ dag.Observer = (*observer)(nil)

func (o *observer) OnTaskTerminal(task core.Task, state dag.TaskState, res *dag.NodeResult) error {
	outcome, status := outcomeOf(state)
	o.metrics.ObserveStep(task.Kind, outcome, res.Duration())

	fields := []zap.Field{zap.String("step", task.Name), zap.String("outcome", outcome)}
	switch state {
	case dag.TaskFailed:
		o.logger.Error("step failed", append(fields, zap.Error(res.Err))...)
	case dag.TaskSkipped:
		o.logger.Warn("step skipped", fields...)
	default:
		o.logger.Debug("step finished", append(fields, zap.Duration("duration", res.Duration()))...)
	}

	if o.recorder != nil {
		if err := o.recorder.RecordStep(o.runID, stepRecord(task, status, res)); err != nil {
			return fmt.Errorf("recording step: %w", err)
		}
	}

	if !state.Succeeded() {
		return nil
	}
	return o.advance(task)
}

func (o *observer) advance(task core.Task) error {
	p := paramsOf(&task)
	switch task.Kind {
	case KindSimulate:
		r := p.replicate()
		if err := p.err(); err != nil {
			return err
		}
		return o.tracker.Simulated(r)
	case KindFit:
		r, f := p.replicate(), p.family()
		if err := p.err(); err != nil {
			return err
		}
		if err := o.tracker.Fitted(r, f); err != nil {
			return err
		}
		o.logger.Debug("replicate progressed", zap.Int("replicate", int(r)), zap.Stringer("stage", o.tracker.Stage(r)))
		return nil
	case KindEvaluate:
		r, f := p.replicate(), p.family()
		if err := p.err(); err != nil {
			return err
		}
		done, err := o.tracker.Evaluated(r, f)
		if err != nil {
			return err
		}
		o.logger.Debug("replicate progressed", zap.Int("replicate", int(r)), zap.Stringer("stage", o.tracker.Stage(r)))
		if done {
			o.logger.Info("all replicates complete", zap.Stringer("phase", PhaseAllReplicatesComplete))
		}
		return nil
	case KindReport:
		for _, next := range []Phase{PhaseAggregated, PhaseReported} {
			if err := o.tracker.Advance(next); err != nil {
				return err
			}
			o.logger.Info("phase reached", zap.Stringer("phase", next))
		}
		return nil
	default:
		return fmt.Errorf("unknown step kind %q", task.Kind)
	}
}

func outcomeOf(state dag.TaskState) (string, runstate.StepStatus) {
	switch state {
	case dag.TaskCompleted:
		return metrics.OutcomeExecuted, runstate.StepCompleted
	case dag.TaskCached:
		return metrics.OutcomeCached, runstate.StepCached
	case dag.TaskFailed:
		return metrics.OutcomeFailed, runstate.StepFailed
	default:
		return metrics.OutcomeSkipped, runstate.StepSkipped
	}
}

func stepRecord(task core.Task, status runstate.StepStatus, res *dag.NodeResult) runstate.StepRecord {
	rec := runstate.StepRecord{
		Step:    task.Name,
		Kind:    task.Kind,
		Status:  status,
		Outputs: []string{},
	}
	if res == nil {
		return rec
	}
	started, finished := res.Started.UTC(), res.Finished.UTC()
	rec.Signature = res.Hash.String()
	rec.FromCache = res.FromCache
	rec.Started = &started
	rec.Finished = &finished
	if len(res.Artifacts) > 0 {
		rec.Outputs = append(rec.Outputs, res.Artifacts...)
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	} else if status == runstate.StepFailed {
		rec.Error = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	return rec
}
