package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"regsim/internal/config"
	"regsim/internal/core"
	"regsim/internal/dataio"
	"regsim/internal/model"
)

// params reads typed values from a task's parameters. The first problem is
// kept and reported by err as a *model.ConfigurationError.
type params struct {
	task  *core.Task
	first error
}

func paramsOf(t *core.Task) *params { return &params{task: t} }

func (p *params) fail(name, reason string, cause error) {
	if p.first == nil {
		p.first = &model.ConfigurationError{
			Field:  name,
			Reason: fmt.Sprintf("step %s: %s", p.task.Name, reason),
			Err:    cause,
		}
	}
}

func (p *params) str(name string) string {
	v, ok := p.task.Param(name)
	if !ok {
		p.fail(name, "missing parameter", nil)
	}
	return v
}

func (p *params) int(name string) int {
	s := p.str(name)
	if p.first != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(name, fmt.Sprintf("invalid integer %q", s), err)
	}
	return v
}

func (p *params) float(name string) float64 {
	s := p.str(name)
	if p.first != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(name, fmt.Sprintf("invalid number %q", s), err)
	}
	return v
}

func (p *params) floats(name string) []float64 {
	s := p.str(name)
	if p.first != nil {
		return nil
	}
	v, err := config.ParseFloats(s)
	if err != nil {
		p.fail(name, "invalid number list", err)
	}
	return v
}

func (p *params) replicate() model.ReplicateID {
	return model.ReplicateID(p.int(paramReplicate))
}

func (p *params) family() model.Family {
	s := p.str(paramFamily)
	if p.first != nil {
		return ""
	}
	f, err := model.ParseFamily(s)
	if err != nil {
		p.fail(paramFamily, fmt.Sprintf("invalid family %q", s), err)
	}
	return f
}

func (p *params) families() []model.Family {
	s := p.str(paramFamilies)
	if p.first != nil {
		return nil
	}
	var out []model.Family
	for _, part := range strings.Split(s, ",") {
		f, err := model.ParseFamily(strings.TrimSpace(part))
		if err != nil {
			p.fail(paramFamilies, fmt.Sprintf("invalid family %q", part), err)
			return nil
		}
		out = append(out, f)
	}
	return out
}

// layout resolves the output directory parameter against workDir.
func (p *params) layout(workDir string) dataio.Layout {
	dir := p.str(paramOutputDir)
	return dataio.NewLayout(filepath.Join(workDir, filepath.FromSlash(dir)))
}

func (p *params) err() error { return p.first }
