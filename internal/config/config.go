// Package config holds the run-wide parameter store.
//
// A Config is built once per run (defaults, then an optional YAML file, then
// explicit CLI overrides), validated, and then shared read-only by every step.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"regsim/internal/model"
)

// Config is the full set of named, overridable run parameters.
type Config struct {
	// Coefficients is the true coefficient vector. Its length fixes the feature count.
	Coefficients []float64 `yaml:"coefficients" validate:"required,min=1,dive,finite"`

	TrainSize int     `yaml:"train_size" validate:"gt=0"`
	TestSize  int     `yaml:"test_size" validate:"gt=0"`
	NoiseSD   float64 `yaml:"noise_sd" validate:"finite,gte=0"`

	Replicates int `yaml:"replicates" validate:"gt=0"`

	// Folds is the k of k-fold cross-validation. Fewer training rows than
	// folds is a fit-time failure, not a configuration failure.
	Folds int `yaml:"folds" validate:"gte=2"`

	Families []model.Family `yaml:"families" validate:"required,min=1,unique,dive,oneof=l1 l2"`

	LambdaCount    int     `yaml:"lambda_count" validate:"gte=2"`
	LambdaMinRatio float64 `yaml:"lambda_min_ratio" validate:"gt=0,lt=1"`
	MaxIterations  int     `yaml:"max_iterations" validate:"gt=0"`
	Tolerance      float64 `yaml:"tolerance" validate:"gt=0"`

	// Jobs bounds step parallelism. Zero means one worker per CPU.
	Jobs int `yaml:"jobs" validate:"gte=0"`
}

// Default returns the reference scenario: eight features with three nonzero
// effects, five replicates of 40 training and 200 test rows.
func Default() Config {
	return Config{
		Coefficients:   []float64{3, 1.5, 0, 0, 2, 0, 0, 0},
		TrainSize:      40,
		TestSize:       200,
		NoiseSD:        3,
		Replicates:     5,
		Folds:          5,
		Families:       []model.Family{model.FamilyL1, model.FamilyL2},
		LambdaCount:    100,
		LambdaMinRatio: 1e-4,
		MaxIterations:  10000,
		Tolerance:      1e-7,
		Jobs:           0,
	}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("finite", validateFinite)
}

func validateFinite(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every field and returns a *model.ConfigurationError naming
// the first offending field, with all violations joined in its cause.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &model.ConfigurationError{Reason: "validation failed", Err: err}
	}
	details := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Errorf("%s: %s", fieldPath(fe), describe(fe)))
	}
	return &model.ConfigurationError{
		Field:  fieldPath(verrs[0]),
		Reason: describe(verrs[0]),
		Err:    errors.Join(details...),
	}
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "unique":
		return "must not contain duplicates"
	case "min":
		return fmt.Sprintf("must have at least %s element(s)", fe.Param())
	default:
		return fmt.Sprintf("must satisfy %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())
	}
}

// Load reads a YAML file on top of Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, &model.ConfigurationError{Field: "config", Reason: "cannot open config file", Err: err}
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses YAML on top of Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &model.ConfigurationError{Field: "config", Reason: "invalid YAML", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Features is the number of simulated features.
func (c Config) Features() int { return len(c.Coefficients) }

// Expected is the completion-barrier count: one summary per replicate and family.
func (c Config) Expected() int { return c.Replicates * len(c.Families) }

// FormatFloats renders values as a comma-separated list that round-trips exactly.
func FormatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseFloats is the inverse of FormatFloats.
func ParseFloats(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &model.ConfigurationError{Field: "coefficients", Reason: fmt.Sprintf("invalid number %q", p), Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}
