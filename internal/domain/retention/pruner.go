// Package retention bounds the number of stored reports per user. A Trigger
// prunes one user after each new report; a Sweeper periodically prunes all
// users to catch triggers that were dropped or failed for good.
package retention

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultReportsToKeep is the per-user report bound.
const DefaultReportsToKeep = 50

// Store is the slice of the profile repository the pruner needs.
type Store interface {
	PruneReports(ctx context.Context, userID string, keep int) (int, error)
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Pruner deletes every report beyond the newest keep for a user.
type Pruner struct {
	store  Store
	keep   int
	logger zerolog.Logger
}

// NewPruner creates a Pruner that keeps the newest keep reports per user.
// A non-positive keep falls back to DefaultReportsToKeep.
func NewPruner(store Store, keep int, logger zerolog.Logger) *Pruner {
	if keep <= 0 {
		keep = DefaultReportsToKeep
	}
	return &Pruner{
		store:  store,
		keep:   keep,
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// Keep returns the configured bound.
func (p *Pruner) Keep() int { return p.keep }

// Prune re-reads the user's live report set and deletes the excess in one
// atomic step. Running it again after success is a no-op.
func (p *Pruner) Prune(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("prune: user id is required")
	}
	deleted, err := p.store.PruneReports(ctx, userID, p.keep)
	if err != nil {
		return 0, fmt.Errorf("prune reports for %s: %w", userID, err)
	}
	if deleted > 0 {
		p.logger.Info().Str("user_id", userID).Int("deleted", deleted).Int("kept", p.keep).Msg("old reports pruned")
	}
	return deleted, nil
}

// SweepResult summarises one pass over all users.
type SweepResult struct {
	Users   int `json:"users"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// PruneAll prunes every user that owns reports. A failure for one user is
// logged and counted; the pass continues with the next user.
func (p *Pruner) PruneAll(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ids, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Users++
		n, err := p.Prune(ctx, id)
		if err != nil {
			res.Failed++
			p.logger.Error().Err(err).Str("user_id", id).Msg("sweep prune failed")
			continue
		}
		res.Deleted += n
	}
	return res, nil
}
