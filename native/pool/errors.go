package pool

import "errors"

var (
	ErrInvalidAmount        = errors.New("pool: amount must be greater than zero")
	ErrCutoffTooSoon        = errors.New("pool: stake cutoff too soon")
	ErrCutoffOutOfRange     = errors.New("pool: stake cutoff out of range")
	ErrNoPendingEpoch       = errors.New("pool: next epoch not configured")
	ErrTooSoon              = errors.New("pool: too soon to deposit rewards")
	ErrWrongAmount          = errors.New("pool: incorrect amount of rewards sent")
	ErrMustUnstakeFirst     = errors.New("pool: unstake first to claim pending rewards")
	ErrRewardsNotYetSettled = errors.New("pool: pending rewards not yet paid, use emergency exit to forfeit them")
	ErrNothingStaked        = errors.New("pool: nothing staked")
	ErrUnauthorized         = errors.New("pool: caller lacks required role")

	ErrNotInitialised     = errors.New("pool: ledger not initialised")
	ErrAlreadyInitialised = errors.New("pool: ledger already initialised")
	ErrEpochNotFound      = errors.New("pool: epoch not found")
	ErrUnknownRole        = errors.New("pool: unknown role")
	ErrRolesImmutable     = errors.New("pool: role registry not configured")
	errNilStore           = errors.New("pool engine: store not configured")
	errCorruptLedger      = errors.New("pool engine: current epoch record missing")
)

// IsRejection reports whether err is one of the caller-facing precondition
// failures rather than an infrastructure fault.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrCutoffTooSoon, ErrCutoffOutOfRange, ErrNoPendingEpoch, ErrTooSoon,
		ErrWrongAmount, ErrMustUnstakeFirst, ErrRewardsNotYetSettled,
		ErrNothingStaked, ErrUnauthorized, ErrNotInitialised,
		ErrAlreadyInitialised, ErrEpochNotFound, ErrUnknownRole, ErrRolesImmutable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
