package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsim/internal/model"
)

var bothFamilies = []model.Family{model.FamilyL1, model.FamilyL2}

func TestPhaseTracker_BarrierOpensOnLastEvaluation(t *testing.T) {
	tr := NewPhaseTracker(2, bothFamilies)
	for r := model.ReplicateID(1); r <= 2; r++ {
		require.NoError(t, tr.Simulated(r))
		for _, f := range bothFamilies {
			require.NoError(t, tr.Fitted(r, f))
		}
	}
	assert.Equal(t, StageFitted, tr.Stage(1))

	steps := []model.Key{{Replicate: 1, Family: "l1"}, {Replicate: 2, Family: "l2"}, {Replicate: 1, Family: "l2"}}
	for _, k := range steps {
		done, err := tr.Evaluated(k.Replicate, k.Family)
		require.NoError(t, err)
		assert.False(t, done, "barrier opened early at %s", k)
		assert.Equal(t, PhaseInitial, tr.Phase())
	}
	assert.Equal(t, StageEvaluated, tr.Stage(1))
	assert.Equal(t, StageFitted, tr.Stage(2))

	done, err := tr.Evaluated(2, model.FamilyL1)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, PhaseAllReplicatesComplete, tr.Phase())
}

func TestPhaseTracker_ForwardOnly(t *testing.T) {
	tr := NewPhaseTracker(1, []model.Family{model.FamilyL1})

	require.Error(t, tr.Advance(PhaseAllReplicatesComplete), "barrier not met")
	require.Error(t, tr.Advance(PhaseReported), "skipping phases")

	require.NoError(t, tr.Simulated(1))
	require.NoError(t, tr.Fitted(1, model.FamilyL1))
	_, err := tr.Evaluated(1, model.FamilyL1)
	require.NoError(t, err)

	require.Error(t, tr.Advance(PhaseInitial), "moving backwards")
	require.NoError(t, tr.Advance(PhaseAggregated))
	require.NoError(t, tr.Advance(PhaseReported))
	require.Error(t, tr.Advance(PhaseReported+1), "past terminal")
	assert.Equal(t, "Reported", tr.Phase().String())
}

func TestPhaseTracker_RejectsOutOfOrderAndDuplicates(t *testing.T) {
	tr := NewPhaseTracker(1, []model.Family{model.FamilyL1})

	require.Error(t, tr.Fitted(1, model.FamilyL1), "fit before simulate")
	require.Error(t, tr.Simulated(2), "replicate out of range")
	require.NoError(t, tr.Simulated(1))
	require.Error(t, tr.Fitted(1, model.FamilyL2), "family outside the run")
	_, err := tr.Evaluated(1, model.FamilyL1)
	require.Error(t, err, "evaluate before fit")

	require.NoError(t, tr.Fitted(1, model.FamilyL1))
	_, err = tr.Evaluated(1, model.FamilyL1)
	require.NoError(t, err)
	_, err = tr.Evaluated(1, model.FamilyL1)
	require.Error(t, err, "duplicate evaluation")
}

func TestPhaseTracker_StagePending(t *testing.T) {
	tr := NewPhaseTracker(3, bothFamilies)
	assert.Equal(t, StagePending, tr.Stage(3))
	require.NoError(t, tr.Simulated(3))
	assert.Equal(t, StageSimulated, tr.Stage(3))
	require.NoError(t, tr.Fitted(3, model.FamilyL2))
	assert.Equal(t, StageSimulated, tr.Stage(3))
}
