package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"regsim/internal/model"
)

const (
	ExitSuccess           = 0
	ExitPipelineFailure   = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError is a command line the process refuses to act on.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by Run to the process exit status.
//
//   - nil: ExitSuccess
//   - *InvocationError: its own code
//   - configuration errors, including a step rejecting its parameters: ExitConfigError
//   - a failed step or a fit, join or aggregation failure: ExitPipelineFailure
//   - anything else: ExitInternalError
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if errors.Is(err, model.ErrConfiguration) {
		return ExitConfigError
	}
	var stepErr *model.StepError
	if errors.As(err, &stepErr) ||
		errors.Is(err, model.ErrFit) ||
		errors.Is(err, model.ErrJoin) ||
		errors.Is(err, model.ErrIncomplete) {
		return ExitPipelineFailure
	}
	return ExitInternalError
}

// requireWorkDir canonicalizes --workdir. It must be explicit and absolute so
// that no result depends on the process working directory.
func requireWorkDir(workDir string) (string, error) {
	if strings.TrimSpace(workDir) == "" {
		return "", invalidInvocationf("--workdir is required")
	}
	clean := filepath.Clean(workDir)
	if !filepath.IsAbs(clean) {
		return "", invalidInvocationf("--workdir must be an absolute path (got %q)", workDir)
	}
	return clean, nil
}

// resolveUnderWorkDir resolves a relative path against workDir. Absolute
// paths are kept as given.
func resolveUnderWorkDir(workDir, flagName, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("--%s must not be empty", flagName)
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("--%s must not be '.'", flagName)
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	if workDir == "" {
		return "", invalidInvocationf("relative --%s %q requires --workdir", flagName, p)
	}
	return filepath.Join(workDir, clean), nil
}

// overlaps reports whether a and b are the same path or one contains the other.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

func within(parent, p string) bool {
	rel, err := filepath.Rel(parent, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// guardOutputDir rejects an output directory that would take anything the run
// must keep down with it when it is cleared. reserved maps a flag or role to
// its resolved path.
func guardOutputDir(outputDir string, reserved map[string]string) error {
	names := make([]string, 0, len(reserved))
	for name := range reserved {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if p := reserved[name]; p != "" && overlaps(outputDir, p) {
			return invalidInvocationf("--output-dir %s overlaps %s %s", outputDir, name, p)
		}
	}
	return nil
}
