package evaluate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsim/internal/model"
)

func fixture() (model.FitResult, model.Dataset, []float64) {
	ds := model.Dataset{
		Replicate: 1,
		Train:     []model.Row{{X: []float64{0, 0}, Y: 0}},
		Test: []model.Row{
			{X: []float64{1, 0}, Y: 1},
			{X: []float64{0, 1}, Y: 2},
			{X: []float64{1, 1}, Y: 3},
		},
	}
	fit := model.FitResult{
		Replicate:    1,
		Family:       model.FamilyL1,
		Predictions:  []float64{1, 1, 5},
		Coefficients: []float64{1, 3},
	}
	return fit, ds, []float64{1, 2}
}

func TestMeanSquaredError(t *testing.T) {
	assert.Equal(t, 0.0, mse(nil, nil))
	assert.InDelta(t, 2.5, mse([]float64{1, 2}, []float64{0, 4}), 1e-12)
}

func TestEvaluate_ComputesBothErrors(t *testing.T) {
	fit, ds, truth := fixture()
	s, err := Evaluate(fit, ds, truth)
	require.NoError(t, err)

	// Prediction residuals (0, -1, 2); coefficient residuals (0, 1).
	assert.InDelta(t, 5.0/3.0, s.PredictionError, 1e-12)
	assert.InDelta(t, 0.5, s.CoefficientError, 1e-12)
	assert.Equal(t, model.Key{Replicate: 1, Family: model.FamilyL1}, s.Key())
}

func TestEvaluate_Idempotent(t *testing.T) {
	fit, ds, truth := fixture()
	a, err := Evaluate(fit, ds, truth)
	require.NoError(t, err)
	b, err := Evaluate(fit, ds, truth)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEvaluate_CrossReplicateIsJoinError(t *testing.T) {
	fit, ds, truth := fixture()
	fit.Replicate = 2
	_, err := Evaluate(fit, ds, truth)

	var je *model.JoinError
	require.True(t, errors.As(err, &je))
	assert.Equal(t, model.ReplicateID(2), je.Replicate)
}

func TestEvaluate_LengthMismatchesAreConfigurationErrors(t *testing.T) {
	fit, ds, truth := fixture()
	fit.Predictions = fit.Predictions[:2]
	_, err := Evaluate(fit, ds, truth)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	fit, ds, truth = fixture()
	_, err = Evaluate(fit, ds, append(truth, 0))
	assert.ErrorIs(t, err, model.ErrConfiguration)

	fit, ds, truth = fixture()
	fit.Coefficients = append(fit.Coefficients, 7)
	assert.NotPanics(t, func() {
		_, err = Evaluate(fit, ds, truth[:1])
	})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestJoin_PairsByReplicateAndOrders(t *testing.T) {
	fit1, ds1, truth := fixture()
	ds2 := ds1
	ds2.Replicate = 2
	fit2 := fit1
	fit2.Replicate = 2
	fit2.Family = model.FamilyL2
	fit2b := fit1
	fit2b.Replicate = 2

	got, err := Join([]model.FitResult{fit2, fit1, fit2b}, []model.Dataset{ds2, ds1}, truth)
	require.NoError(t, err)
	require.Len(t, got, 3)

	keys := []model.Key{got[0].Key(), got[1].Key(), got[2].Key()}
	assert.Equal(t, []model.Key{
		{Replicate: 1, Family: model.FamilyL1},
		{Replicate: 2, Family: model.FamilyL1},
		{Replicate: 2, Family: model.FamilyL2},
	}, keys)
}

func TestJoin_FitForNonexistentReplicateIsJoinError(t *testing.T) {
	fit, ds, truth := fixture()
	orphan := fit
	orphan.Replicate = 99

	_, err := Join([]model.FitResult{fit, orphan}, []model.Dataset{ds}, truth)
	assert.ErrorIs(t, err, model.ErrJoin)
}
