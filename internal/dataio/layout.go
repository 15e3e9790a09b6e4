// Package dataio persists pipeline entities under the file naming contract:
//
//	data_<r>.train.csv / data_<r>.test.csv      Dataset
//	data_<r>.<family>.predicted.csv             FitResult predictions
//	data_<r>.<family>.coef.csv                  FitResult coefficients
//	data_<r>.<family>.mse.csv                   ErrorSummary (prediction, coefficient)
//	report.md / report.html                     ComparisonReport
//
// All writes are atomic (temp file + rename) so a failed step never leaves a
// partially written entity behind.
package dataio

import (
	"fmt"
	"path/filepath"

	"regsim/internal/model"
)

// Layout resolves entity file names under a root directory.
type Layout struct {
	Dir string
}

func NewLayout(dir string) Layout { return Layout{Dir: dir} }

func (l Layout) path(name string) string { return filepath.Join(l.Dir, name) }

func TrainName(r model.ReplicateID) string { return fmt.Sprintf("data_%d.train.csv", r) }
func TestName(r model.ReplicateID) string  { return fmt.Sprintf("data_%d.test.csv", r) }

func PredictedName(r model.ReplicateID, f model.Family) string {
	return fmt.Sprintf("data_%d.%s.predicted.csv", r, f)
}

func CoefName(r model.ReplicateID, f model.Family) string {
	return fmt.Sprintf("data_%d.%s.coef.csv", r, f)
}

func SummaryName(r model.ReplicateID, f model.Family) string {
	return fmt.Sprintf("data_%d.%s.mse.csv", r, f)
}

const (
	ReportMarkdownName = "report.md"
	ReportHTMLName     = "report.html"
)

func (l Layout) TrainPath(r model.ReplicateID) string { return l.path(TrainName(r)) }
func (l Layout) TestPath(r model.ReplicateID) string  { return l.path(TestName(r)) }

func (l Layout) PredictedPath(r model.ReplicateID, f model.Family) string {
	return l.path(PredictedName(r, f))
}

func (l Layout) CoefPath(r model.ReplicateID, f model.Family) string {
	return l.path(CoefName(r, f))
}

func (l Layout) SummaryPath(r model.ReplicateID, f model.Family) string {
	return l.path(SummaryName(r, f))
}

func (l Layout) ReportMarkdownPath() string { return l.path(ReportMarkdownName) }
func (l Layout) ReportHTMLPath() string     { return l.path(ReportHTMLName) }
