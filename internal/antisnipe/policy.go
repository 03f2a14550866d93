// Package antisnipe decides whether a bid arriving close to the deadline
// extends an auction's closing time.
package antisnipe

import (
	"time"

	"github.com/rickgao/lot-auctions/internal/model"
)

// Reason explains the outcome of an evaluation.
type Reason string

const (
	ReasonDisabled         Reason = "disabled"
	ReasonOutsideThreshold Reason = "outside_threshold"
	ReasonLimitReached     Reason = "limit_reached"
	ReasonExtended         Reason = "extended"
)

// Decision is the result of evaluating the policy for one accepted bid.
type Decision struct {
	Extend     bool
	Reason     Reason
	Remaining  time.Duration // Time left before the bid was applied
	NewEnd     time.Time     // Equal to the old end when Extend is false
	Extensions int           // Extensions applied after this decision
}

// Evaluate applies the anti-sniping rule to an auction ending at end that has
// already been extended applied times, for a bid accepted at now.
func Evaluate(cfg model.AntiSnipingConfig, end time.Time, applied int, now time.Time) Decision {
	d := Decision{
		Reason:     ReasonExtended,
		Remaining:  end.Sub(now),
		NewEnd:     end,
		Extensions: applied,
	}

	if !cfg.Enabled {
		d.Reason = ReasonDisabled
		return d
	}
	if d.Remaining >= cfg.Threshold() {
		d.Reason = ReasonOutsideThreshold
		return d
	}
	if cfg.MaxExtensions > 0 && applied >= cfg.MaxExtensions {
		d.Reason = ReasonLimitReached
		return d
	}

	d.Extend = true
	d.NewEnd = end.Add(cfg.Extension())
	d.Extensions = applied + 1
	return d
}
