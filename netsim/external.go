package netsim

import (
	"context"
	"time"
)

// TimeSource is the simulated time source and scheduler this package relies
// on but does not implement. It provides monotonic "now", one-shot timers,
// and an awaitable sleep.
type TimeSource interface {
	// Now returns the current simulated time.
	Now() time.Time
	// AfterFunc schedules f to run at Now()+d. The returned Timer can cancel
	// the callback if it has not fired yet.
	AfterFunc(d time.Duration, f func()) Timer
	// Sleep blocks until d has elapsed in simulated time or ctx is done,
	// whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Timer cancels a scheduled TimeSource callback.
type Timer interface {
	// Stop prevents the timer from firing, if it hasn't already. It
	// reports whether the stop was effective.
	Stop() bool
}

// RandSource is the seeded pseudo-random source this package relies on but
// does not implement. It supplies the uniform draws the fault model and
// suspension-point jitter need.
type RandSource interface {
	// Float64 returns a uniform value in [0, 1), used for Bernoulli fault
	// draws.
	Float64() float64
	// DurationRange returns a uniform duration in [lo, hi).
	DurationRange(lo, hi time.Duration) time.Duration
	// Jitter returns a small uniform delay (0..5µs) used at the facade's
	// suspension points to model non-zero scheduling cost.
	Jitter() time.Duration
}

// NodeContext answers "which node am I running as", for collaborators (the
// syscall shim) that don't carry a NodeID explicitly through every call.
type NodeContext interface {
	CurrentNode() (NodeID, bool)
}
