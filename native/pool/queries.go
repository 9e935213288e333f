package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxEpochPage bounds the number of records returned by Epochs.
const MaxEpochPage = 500

func (e *Engine) view() (*txn, *Ledger, *Epoch, error) {
	tx, err := e.begin()
	if err != nil {
		return nil, nil, nil, err
	}
	ledger, current, err := (&lifecycle{tx: tx, params: e.params}).current()
	if err != nil {
		return nil, nil, nil, err
	}
	return tx, ledger, current, nil
}

// CurrentEpochID returns the identifier of the unfinalised epoch.
func (e *Engine) CurrentEpochID() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ledger, _, err := e.view()
	if err != nil {
		return 0, err
	}
	return ledger.CurrentEpoch, nil
}

// GetEpoch returns a copy of the epoch record.
func (e *Engine) GetEpoch(id uint64) (*Epoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return nil, err
	}
	epoch, err := tx.epoch(id)
	if err != nil {
		return nil, err
	}
	return epoch.Clone(), nil
}

// GetAccount returns the stake position of addr. Unknown addresses yield a
// zero account.
func (e *Engine) GetAccount(addr common.Address) (*Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return nil, err
	}
	account, err := tx.account(addr)
	if err != nil {
		return nil, err
	}
	return account.Clone(), nil
}

// GetPendingRewards returns the rewards addr could claim right now.
func (e *Engine) GetPendingRewards(addr common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ledger, _, err := e.view()
	if err != nil {
		return nil, err
	}
	account, err := tx.account(addr)
	if err != nil {
		return nil, err
	}
	return pendingRewards(tx, account, ledger.CurrentEpoch)
}

// GetCurrentRewardDate returns the instant the current reward becomes due.
func (e *Engine) GetCurrentRewardDate() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _, current, err := e.view()
	if err != nil {
		return 0, err
	}
	return current.RewardDue, nil
}

// GetCurrentStakeLimitDate returns the stake cutoff of the current epoch.
func (e *Engine) GetCurrentStakeLimitDate() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _, current, err := e.view()
	if err != nil {
		return 0, err
	}
	return current.StakeCutoff, nil
}

// GetCurrentPromisedRewards returns the reward promised for the current epoch.
func (e *Engine) GetCurrentPromisedRewards() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _, current, err := e.view()
	if err != nil {
		return nil, err
	}
	return copyBigInt(current.RewardAmount), nil
}

// GetPendingEpoch returns the staged next-epoch slot.
func (e *Engine) GetPendingEpoch() (NextEpoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ledger, _, err := e.view()
	if err != nil {
		return nil, err
	}
	if staged, ok := Staged(ledger.Next); ok {
		return staged, nil
	}
	return NoNextEpoch{}, nil
}

// Ledger returns a snapshot of the pool balances.
func (e *Engine) Ledger() (LedgerSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ledger, _, err := e.view()
	if err != nil {
		return LedgerSummary{}, err
	}
	return summarize(ledger), nil
}

// Epochs returns up to limit epoch records starting at from, including the
// current epoch. A zero limit selects MaxEpochPage.
func (e *Engine) Epochs(from uint64, limit int) ([]*Epoch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ledger, _, err := e.view()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxEpochPage {
		limit = MaxEpochPage
	}
	out := make([]*Epoch, 0)
	for id := from; id <= ledger.CurrentEpoch && len(out) < limit; id++ {
		epoch, err := tx.epoch(id)
		if err != nil {
			return nil, err
		}
		out = append(out, epoch.Clone())
	}
	return out, nil
}

// HasRole reports whether addr holds role according to the configured
// authority.
func (e *Engine) HasRole(role string, addr common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authority != nil && e.authority.HasRole(role, addr.Bytes())
}
