// README: Error taxonomy for the dispatch engine. Nothing here is fatal to
// the host process; every failure degrades to "this pair could not be
// scheduled this cycle".
package dispatch

import (
	"errors"
	"fmt"

	"ridepool/internal/types"
)

var (
	// ErrOracleUnavailable marks a failed route lookup. The affected pair is
	// treated as infeasible and the cycle continues.
	ErrOracleUnavailable = errors.New("route oracle unavailable")
	// ErrInfeasible means the driver cannot reach the pickup inside the
	// buffered window.
	ErrInfeasible = errors.New("pairing infeasible")
	// ErrIdleExceeded is a feasibility rejection distinct from plain
	// infeasibility: the driver could make it, but only by idling past the
	// relaxed ceiling.
	ErrIdleExceeded = errors.New("idle ceiling exceeded")
	// ErrWindowMissing marks a passenger without a pickup window; such
	// passengers are excluded up front and reported, never silently dropped.
	ErrWindowMissing = errors.New("pickup window missing")
	// ErrRaceCondition means a conditional update affected zero rows: a
	// concurrent process claimed the passenger or driver first.
	ErrRaceCondition = errors.New("concurrent claim lost")
)

// Unassigned-reason strings surfaced in cycle reports.
const (
	ReasonMissingWindow    = "missing window"
	ReasonNoFeasibleDriver = "no feasible driver"
)

// RouteSequenceError reports a parsed route whose stop order is impossible
// for some passenger (dropoff at or before pickup, or out-of-order stops).
// The parser never silently rewrites timestamps; callers decide whether to
// retry with a minimum-ride floor.
type RouteSequenceError struct {
	PassengerID types.ID
	Reason      string
}

func (e *RouteSequenceError) Error() string {
	if e.PassengerID == "" {
		return fmt.Sprintf("route sequence error: %s", e.Reason)
	}
	return fmt.Sprintf("route sequence error for passenger %s: %s", e.PassengerID, e.Reason)
}
