// Package gate guards the destructive half of the pipeline: the full
// replacement of the matches snapshot. A truncated or malformed report must
// never silently erase good data, so the gate refuses any replacement that
// would shrink the dataset unless explicitly overridden.
package gate

import (
	"context"
	"log/slog"

	"github.com/courtdata/results-ingest/model"
)

// Store is the slice of the league store the gate needs.
type Store interface {
	CountMatches(ctx context.Context) (int, error)
	ReplaceMatches(ctx context.Context, matches []model.Match) error
}

type Gate struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Reconcile compares the candidate count against the live row count and, if
// the replacement would not shrink the dataset (or force is set), swaps the
// snapshot. It reports whether the store was mutated and the row count it
// found beforehand. A false return with a nil error is a business outcome,
// not a failure: the shrink guard held.
func (g *Gate) Reconcile(ctx context.Context, candidates []model.Match, force bool) (replaced bool, priorCount int, err error) {
	priorCount, err = g.store.CountMatches(ctx)
	if err != nil {
		return false, 0, err
	}

	if !force && len(candidates) < priorCount {
		if g.logger != nil {
			g.logger.Warn("refusing to shrink dataset", "current", priorCount, "candidates", len(candidates))
		}
		return false, priorCount, nil
	}

	if err := g.store.ReplaceMatches(ctx, candidates); err != nil {
		return false, priorCount, err
	}

	if g.logger != nil {
		g.logger.Info("matches replaced", "previous", priorCount, "inserted", len(candidates), "forced", force)
	}
	return true, priorCount, nil
}
