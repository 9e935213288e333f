package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Epoch is one reward cycle. Once finalised the record is immutable and its
// QualifyingStake is the frozen distribution denominator.
type Epoch struct {
	ID              uint64
	RewardAmount    *big.Int
	StakeCutoff     int64
	RewardDue       int64
	QualifyingStake *big.Int
	Finalized       bool
	FinalizedAt     int64

	// Refunded marks an epoch whose deposit was returned because nothing
	// qualified for it.
	Refunded bool
}

// Clone returns a deep copy of the epoch record.
func (e *Epoch) Clone() *Epoch {
	if e == nil {
		return nil
	}
	clone := *e
	clone.RewardAmount = copyBigInt(e.RewardAmount)
	clone.QualifyingStake = copyBigInt(e.QualifyingStake)
	return &clone
}

// Account is the stake position of a single participant.
type Account struct {
	Address     common.Address
	Staked      *big.Int
	LastStakeAt int64

	// EntryEpoch is the first epoch the current stake qualifies for. Every
	// epoch below it has already been settled for this account.
	EntryEpoch uint64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Staked = copyBigInt(a.Staked)
	return &clone
}

// LastSettledEpoch reports the highest epoch already credited to the
// account. The boolean is false when no epoch has been settled yet.
func (a *Account) LastSettledEpoch() (uint64, bool) {
	if a == nil || a.EntryEpoch == 0 {
		return 0, false
	}
	return a.EntryEpoch - 1, true
}

// HasStake reports whether the account currently locks a positive amount.
func (a *Account) HasStake() bool {
	return a != nil && a.Staked != nil && a.Staked.Sign() > 0
}

func newAccount(addr common.Address) *Account {
	return &Account{Address: addr, Staked: big.NewInt(0)}
}

// NextEpoch is the staged configuration slot attached to the current epoch.
// It is either NoNextEpoch or StagedEpoch.
type NextEpoch interface {
	nextEpoch()
}

// NoNextEpoch marks an empty staging slot.
type NoNextEpoch struct{}

func (NoNextEpoch) nextEpoch() {}

// StagedEpoch holds an administrator-staged configuration that the next
// reward deposit promotes to the current epoch.
type StagedEpoch struct {
	RewardAmount *big.Int
	StakeCutoff  int64
}

func (StagedEpoch) nextEpoch() {}

// Staged extracts the staged configuration from the slot.
func Staged(next NextEpoch) (StagedEpoch, bool) {
	switch v := next.(type) {
	case StagedEpoch:
		return StagedEpoch{RewardAmount: copyBigInt(v.RewardAmount), StakeCutoff: v.StakeCutoff}, true
	case *StagedEpoch:
		if v == nil {
			return StagedEpoch{}, false
		}
		return StagedEpoch{RewardAmount: copyBigInt(v.RewardAmount), StakeCutoff: v.StakeCutoff}, true
	default:
		return StagedEpoch{}, false
	}
}

// Ledger is the singleton bookkeeping record of the pool.
type Ledger struct {
	CurrentEpoch uint64
	Next         NextEpoch

	// TotalStaked is the sum of every account's Staked amount.
	TotalStaked *big.Int

	// RewardPool holds deposited rewards not yet paid out, including dust
	// and forfeited amounts.
	RewardPool *big.Int
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := &Ledger{
		CurrentEpoch: l.CurrentEpoch,
		Next:         NoNextEpoch{},
		TotalStaked:  copyBigInt(l.TotalStaked),
		RewardPool:   copyBigInt(l.RewardPool),
	}
	if staged, ok := Staged(l.Next); ok {
		clone.Next = staged
	}
	return clone
}

// Held returns the total balance custodied by the pool.
func (l *Ledger) Held() *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Add(copyBigInt(l.TotalStaked), copyBigInt(l.RewardPool))
}

// GenesisConfig describes epoch 0.
type GenesisConfig struct {
	RewardAmount *big.Int
	StakeCutoff  int64
}

// StakeReceipt describes an accepted stake.
type StakeReceipt struct {
	Account   common.Address
	Amount    *big.Int
	Staked    *big.Int
	Epoch     uint64
	Qualified bool
}

// UnstakeReceipt describes a withdrawal. Payout is the amount owed to the
// caller and equals Principal plus Rewards.
type UnstakeReceipt struct {
	Account   common.Address
	Principal *big.Int
	Rewards   *big.Int
	Payout    *big.Int

	// Forfeited is set when an emergency exit dropped the caller from an
	// epoch whose reward was already due.
	Forfeited      bool
	SettledThrough uint64
	HasSettled     bool
}

// DepositReceipt describes an accepted reward deposit.
type DepositReceipt struct {
	Epoch     uint64
	Amount    *big.Int
	Retained  *big.Int
	Refunded  *big.Int
	NextEpoch uint64
}

// LedgerSummary is a read-only snapshot of the pool balances.
type LedgerSummary struct {
	CurrentEpoch uint64
	TotalStaked  *big.Int
	RewardPool   *big.Int
	Held         *big.Int
	HasPending   bool
}

func copyBigInt(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}

func isPositive(value *big.Int) bool {
	return value != nil && value.Sign() > 0
}

// saturatingSub returns a-b floored at zero.
func saturatingSub(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(copyBigInt(a), copyBigInt(b))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
