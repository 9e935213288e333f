package pool

import (
	"fmt"
	"math"
)

const (
	secondsPerDay int64 = 24 * 60 * 60

	// DefaultSettlementWindow separates an epoch's stake cutoff from the
	// instant its reward may be deposited.
	DefaultSettlementWindow = 7 * secondsPerDay // 7 days
	// DefaultMinConfigGap is the minimum distance between the current reward
	// due time and the stake cutoff of a newly configured epoch.
	DefaultMinConfigGap = 8 * secondsPerDay // 8 days
	// DefaultMinNotice is the minimum lead time, measured from now, for a
	// rescheduled pending cutoff.
	DefaultMinNotice = 1 * secondsPerDay // 1 day
)

// Params controls the date constraints enforced by the epoch lifecycle. All
// values are expressed in seconds.
type Params struct {
	SettlementWindow int64
	MinConfigGap     int64
	MinNotice        int64
}

// DefaultParams returns the reference pool parameters.
func DefaultParams() Params {
	return Params{
		SettlementWindow: DefaultSettlementWindow,
		MinConfigGap:     DefaultMinConfigGap,
		MinNotice:        DefaultMinNotice,
	}
}

// Validate ensures the supplied parameters fall within safe operating ranges.
func (p Params) Validate() error {
	if p.SettlementWindow <= 0 {
		return fmt.Errorf("settlement window must be positive")
	}
	if p.MinConfigGap <= 0 {
		return fmt.Errorf("min config gap must be positive")
	}
	if p.MinNotice <= 0 {
		return fmt.Errorf("min notice must be positive")
	}
	if p.SettlementWindow > math.MaxInt64-p.MinConfigGap {
		return fmt.Errorf("settlement window plus min config gap overflows")
	}
	return nil
}

// MaxStakeCutoff is the latest cutoff whose reward due time, and the earliest
// cutoff of the epoch after it, still fit in an int64.
func (p Params) MaxStakeCutoff() int64 {
	return math.MaxInt64 - p.SettlementWindow - p.MinConfigGap
}

func (p Params) checkCutoff(cutoff int64) error {
	if cutoff < 0 || cutoff > p.MaxStakeCutoff() {
		return ErrCutoffOutOfRange
	}
	return nil
}
