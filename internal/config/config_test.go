package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsim/internal/model"
)

func TestDefault_IsValidReferenceScenario(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Features())
	assert.Equal(t, 10, cfg.Expected())
}

func TestDecode_OverridesOnlyGivenKeys(t *testing.T) {
	cfg, err := Decode(strings.NewReader("replicates: 1\nfamilies: [l2]\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Replicates)
	assert.Equal(t, []model.Family{model.FamilyL2}, cfg.Families)
	assert.Equal(t, Default().Coefficients, cfg.Coefficients)
	assert.Equal(t, 40, cfg.TrainSize)
}

func TestDecode_EmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("replicate: 3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestValidate_ReportsYAMLFieldNames(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty coefficients", func(c *Config) { c.Coefficients = nil }, "coefficients"},
		{"zero train size", func(c *Config) { c.TrainSize = 0 }, "train_size"},
		{"negative test size", func(c *Config) { c.TestSize = -1 }, "test_size"},
		{"negative noise", func(c *Config) { c.NoiseSD = -0.5 }, "noise_sd"},
		{"one fold", func(c *Config) { c.Folds = 1 }, "folds"},
		{"unknown family", func(c *Config) { c.Families = []model.Family{"elasticnet"} }, "families[0]"},
		{"duplicate family", func(c *Config) { c.Families = []model.Family{model.FamilyL1, model.FamilyL1} }, "families"},
		{"zero replicates", func(c *Config) { c.Replicates = 0 }, "replicates"},
		{"ratio of one", func(c *Config) { c.LambdaMinRatio = 1 }, "lambda_min_ratio"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ce *model.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestLoad_MissingFileIsConfigurationError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestMarshal_RoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Coefficients = []float64{0.1, -2.5e-3, 7}
	cfg.Jobs = 3

	b, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "regsim.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFormatParseFloats_RoundTrip(t *testing.T) {
	in := []float64{3, 1.5, 0, -0.1, 1e-12}
	out, err := ParseFloats(FormatFloats(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseFloats("1,x")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
