// Package scheduler is the auction clock.
//
// One goroutine runs per non-terminal auction. It computes the exact wait to
// the next decision point (start_time while SCHEDULED, end_time while
// ACTIVE), sleeps on a timer for that long, and wakes early when the auction
// is signalled through Wake. Every wake re-reads the auction, so extensions
// applied by accepted bids and out-of-band cancellations are picked up on
// the next iteration. There is no polling interval.
//
// State writes go through a Driver whose transitions are conditional on the
// current declared state; a task that loses a race with cancellation simply
// observes the terminal state on its next load and exits.
package scheduler
