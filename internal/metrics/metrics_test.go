package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsim/internal/model"
)

func TestObserveStep_CountsByKindAndOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStep("fit", OutcomeExecuted, 20*time.Millisecond)
	m.ObserveStep("fit", OutcomeExecuted, 10*time.Millisecond)
	m.ObserveStep("fit", OutcomeCached, time.Millisecond)
	m.ObserveStep("evaluate", OutcomeSkipped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("fit", OutcomeExecuted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("fit", OutcomeCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("evaluate", OutcomeSkipped)))
	// Skipped steps have no duration sample.
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))
}

func TestObserveReport_SetsGauges(t *testing.T) {
	m := New(nil)
	m.ObserveReport(model.ComparisonReport{
		Replicates: 5,
		Complete:   true,
		Rows: []model.ReportRow{
			{Family: model.FamilyL1, AvgCoefficientError: 0.25, AvgPredictionError: 9.5, Replicates: 5},
			{Family: model.FamilyL2, AvgCoefficientError: 0.5, AvgPredictionError: 10, Replicates: 5},
		},
	})

	assert.Equal(t, 0.25, testutil.ToFloat64(m.modelError.WithLabelValues("l1", "estimation")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.modelError.WithLabelValues("l2", "prediction")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.replicates))
}

func TestWriteFile_TextFormat(t *testing.T) {
	m := New(nil)
	m.ObserveStep("simulate", OutcomeExecuted, time.Millisecond)

	path := filepath.Join(t.TempDir(), "regsim.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `regsim_steps_total{kind="simulate",outcome="executed"} 1`)
	assert.Contains(t, string(data), "# TYPE regsim_step_duration_seconds histogram")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("fit", OutcomeFailed, time.Second)
	m.ObserveReport(model.ComparisonReport{})
	assert.Error(t, m.WriteFile(filepath.Join(t.TempDir(), "x.prom")))
}
