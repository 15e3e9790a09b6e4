package aggregate

import (
	"context"
	"errors"
	"io/fs"
	"runtime"

	"golang.org/x/sync/errgroup"

	"regsim/internal/dataio"
	"regsim/internal/model"
)

// LoadSummaries reads every expected summary file concurrently, bounded by
// limit goroutines (zero means one per CPU). Absent files are collected and
// reported together as *model.IncompleteAggregationError.
func LoadSummaries(ctx context.Context, layout dataio.Layout, exp Expectation, limit int) ([]model.ErrorSummary, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	keys := exp.Keys()
	out := make([]model.ErrorSummary, len(keys))
	present := make([]bool, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := dataio.ReadSummary(layout, k.Replicate, k.Family)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			out[i] = s
			present[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var missing []string
	for i, k := range keys {
		if !present[i] {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		return nil, &model.IncompleteAggregationError{Expected: len(keys), Got: len(keys) - len(missing), Missing: missing}
	}
	return out, nil
}
