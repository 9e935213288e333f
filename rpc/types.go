package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/native/pool"
)

// Amounts travel as base-10 strings so 256-bit values survive JSON clients
// that decode numbers as floats.

// EpochResult is the wire form of an epoch record.
type EpochResult struct {
	ID              uint64 `json:"id"`
	RewardAmount    string `json:"rewardAmount"`
	StakeCutoff     int64  `json:"stakeCutoff"`
	RewardDue       int64  `json:"rewardDue"`
	QualifyingStake string `json:"qualifyingStake"`
	Finalized       bool   `json:"finalized"`
	FinalizedAt     int64  `json:"finalizedAt,omitempty"`
	Refunded        bool   `json:"refunded"`
}

// ToEpoch converts the wire form back into a pool epoch.
func (r EpochResult) ToEpoch() (*pool.Epoch, error) {
	reward, ok := new(big.Int).SetString(r.RewardAmount, 10)
	if !ok {
		return nil, fmt.Errorf("epoch %d: invalid reward amount %q", r.ID, r.RewardAmount)
	}
	qualifying, ok := new(big.Int).SetString(r.QualifyingStake, 10)
	if !ok {
		return nil, fmt.Errorf("epoch %d: invalid qualifying stake %q", r.ID, r.QualifyingStake)
	}
	return &pool.Epoch{
		ID:              r.ID,
		RewardAmount:    reward,
		StakeCutoff:     r.StakeCutoff,
		RewardDue:       r.RewardDue,
		QualifyingStake: qualifying,
		Finalized:       r.Finalized,
		FinalizedAt:     r.FinalizedAt,
		Refunded:        r.Refunded,
	}, nil
}

// AccountResult is the wire form of an account.
type AccountResult struct {
	Address          string  `json:"address"`
	Staked           string  `json:"staked"`
	LastStakeAt      int64   `json:"lastStakeAt,omitempty"`
	EntryEpoch       uint64  `json:"entryEpoch"`
	LastSettledEpoch *uint64 `json:"lastSettledEpoch,omitempty"`
}

// PendingEpochResult describes the staged next epoch, if any.
type PendingEpochResult struct {
	Configured   bool   `json:"configured"`
	RewardAmount string `json:"rewardAmount,omitempty"`
	StakeCutoff  int64  `json:"stakeCutoff,omitempty"`
}

// LedgerResult is the wire form of the ledger snapshot.
type LedgerResult struct {
	CurrentEpoch uint64 `json:"currentEpoch"`
	TotalStaked  string `json:"totalStaked"`
	RewardPool   string `json:"rewardPool"`
	Held         string `json:"held"`
	HasPending   bool   `json:"hasPending"`
}

// StakeResult reports a stake.
type StakeResult struct {
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Staked    string `json:"staked"`
	Epoch     uint64 `json:"epoch"`
	Qualified bool   `json:"qualified"`
}

// UnstakeResult reports a withdrawal. The payout is transferred by the
// caller's settlement layer.
type UnstakeResult struct {
	Account        string  `json:"account"`
	Principal      string  `json:"principal"`
	Rewards        string  `json:"rewards"`
	Payout         string  `json:"payout"`
	Forfeited      bool    `json:"forfeited"`
	SettledThrough *uint64 `json:"settledThrough,omitempty"`
}

// DepositResult reports a reward deposit.
type DepositResult struct {
	Epoch     uint64 `json:"epoch"`
	Amount    string `json:"amount"`
	Retained  string `json:"retained"`
	Refunded  string `json:"refunded"`
	NextEpoch uint64 `json:"nextEpoch"`
}

// RoleResult reports a role change.
type RoleResult struct {
	Role    string `json:"role"`
	Member  string `json:"member"`
	Granted bool   `json:"granted"`
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func epochResult(epoch *pool.Epoch) EpochResult {
	return EpochResult{
		ID:              epoch.ID,
		RewardAmount:    amountString(epoch.RewardAmount),
		StakeCutoff:     epoch.StakeCutoff,
		RewardDue:       epoch.RewardDue,
		QualifyingStake: amountString(epoch.QualifyingStake),
		Finalized:       epoch.Finalized,
		FinalizedAt:     epoch.FinalizedAt,
		Refunded:        epoch.Refunded,
	}
}

func accountResult(account *pool.Account) AccountResult {
	out := AccountResult{
		Address:     account.Address.Hex(),
		Staked:      amountString(account.Staked),
		LastStakeAt: account.LastStakeAt,
		EntryEpoch:  account.EntryEpoch,
	}
	if last, ok := account.LastSettledEpoch(); ok {
		out.LastSettledEpoch = &last
	}
	return out
}

func pendingEpochResult(next pool.NextEpoch) PendingEpochResult {
	staged, ok := pool.Staged(next)
	if !ok {
		return PendingEpochResult{}
	}
	return PendingEpochResult{
		Configured:   true,
		RewardAmount: amountString(staged.RewardAmount),
		StakeCutoff:  staged.StakeCutoff,
	}
}

func ledgerResult(summary pool.LedgerSummary) LedgerResult {
	return LedgerResult{
		CurrentEpoch: summary.CurrentEpoch,
		TotalStaked:  amountString(summary.TotalStaked),
		RewardPool:   amountString(summary.RewardPool),
		Held:         amountString(summary.Held),
		HasPending:   summary.HasPending,
	}
}

func stakeResult(r *pool.StakeReceipt) StakeResult {
	return StakeResult{
		Account:   r.Account.Hex(),
		Amount:    amountString(r.Amount),
		Staked:    amountString(r.Staked),
		Epoch:     r.Epoch,
		Qualified: r.Qualified,
	}
}

func unstakeResult(r *pool.UnstakeReceipt) UnstakeResult {
	out := UnstakeResult{
		Account:   r.Account.Hex(),
		Principal: amountString(r.Principal),
		Rewards:   amountString(r.Rewards),
		Payout:    amountString(r.Payout),
		Forfeited: r.Forfeited,
	}
	if r.HasSettled {
		through := r.SettledThrough
		out.SettledThrough = &through
	}
	return out
}

func depositResult(r *pool.DepositReceipt) DepositResult {
	return DepositResult{
		Epoch:     r.Epoch,
		Amount:    amountString(r.Amount),
		Retained:  amountString(r.Retained),
		Refunded:  amountString(r.Refunded),
		NextEpoch: r.NextEpoch,
	}
}

func roleResult(role string, member common.Address, granted bool) RoleResult {
	return RoleResult{Role: strings.TrimSpace(role), Member: member.Hex(), Granted: granted}
}
