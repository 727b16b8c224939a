// README: Commit stage — applies plans through the store's conditional
// updates, one independent transaction per plan.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"ridepool/internal/observability"
	"ridepool/internal/types"
)

// Committer persists one plan atomically: claim the passenger(s), claim the
// driver, create the assignment record(s). Implementations return
// ErrRaceCondition (possibly wrapped) when any conditional update affects
// zero rows, after rolling the plan's transaction back.
type Committer interface {
	Commit(ctx context.Context, plan AssignmentPlan) (CommitResult, error)
}

// CommitResult reports what a successful commit created. TripID is set when
// the plan carried a merged rider.
type CommitResult struct {
	AssignmentIDs []types.ID
	TripID        *types.ID
}

// commitAll pushes every plan through the committer. Plans are independent:
// one conflicting plan never blocks the rest of the batch. Returns the
// results of the plans that stuck.
func commitAll(ctx context.Context, c Committer, plans []*AssignmentPlan, log *slog.Logger) []CommitResult {
	results := make([]CommitResult, 0, len(plans))
	for _, plan := range plans {
		res, err := c.Commit(ctx, *plan)
		switch {
		case err == nil:
			plan.Status = PlanCommitted
			results = append(results, res)
		case errors.Is(err, ErrRaceCondition):
			observability.CommitConflicts.Inc()
			log.Warn("plan lost to concurrent claim",
				"driver", plan.DriverID, "rider", plan.Rider.ID)
		default:
			log.Error("plan commit failed",
				"driver", plan.DriverID, "rider", plan.Rider.ID, "err", err)
		}
	}
	return results
}
