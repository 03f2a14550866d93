package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/lot-auctions/internal/model"
)

// Lister lists auctions the clock still has to drive.
type Lister interface {
	ListNonTerminal(ctx context.Context) ([]model.Auction, error)
}

// Bootstrap schedules one task per SCHEDULED or ACTIVE auction in storage.
// It must run before the server accepts bid or cancel requests. Returns the
// number of auctions scheduled.
func Bootstrap(ctx context.Context, lister Lister, sched *Scheduler, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pending, err := lister.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal auctions: %w", err)
	}

	for _, a := range pending {
		sched.Schedule(a.ID)
		logger.Debug("recovered auction clock",
			"auction_id", a.ID,
			"state", a.State,
			"start_time", a.StartTime,
			"end_time", a.EndTime,
		)
	}

	logger.Info("auction clocks recovered", "count", len(pending))
	return len(pending), nil
}
