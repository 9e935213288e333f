package pool

import "math/big"

// lifecycle owns the current epoch and the staged next-epoch slot for the
// duration of one operation.
type lifecycle struct {
	tx     *txn
	params Params
}

func (l *lifecycle) current() (*Ledger, *Epoch, error) {
	ledger, err := l.tx.ledger()
	if err != nil {
		return nil, nil, err
	}
	epoch, err := l.tx.epoch(ledger.CurrentEpoch)
	if err != nil {
		if err == ErrEpochNotFound {
			return nil, nil, errCorruptLedger
		}
		return nil, nil, err
	}
	return ledger, epoch, nil
}

// configure stages the next epoch, replacing any prior staged configuration.
func (l *lifecycle) configure(amount *big.Int, cutoff int64) (uint64, StagedEpoch, error) {
	if !isPositive(amount) {
		return 0, StagedEpoch{}, ErrInvalidAmount
	}
	ledger, current, err := l.current()
	if err != nil {
		return 0, StagedEpoch{}, err
	}
	if err := l.params.checkCutoff(cutoff); err != nil {
		return 0, StagedEpoch{}, err
	}
	if cutoff < current.RewardDue+l.params.MinConfigGap {
		return 0, StagedEpoch{}, ErrCutoffTooSoon
	}
	staged := StagedEpoch{RewardAmount: copyBigInt(amount), StakeCutoff: cutoff}
	ledger.Next = staged
	l.tx.putLedger(ledger)
	return current.ID + 1, staged, nil
}

func (l *lifecycle) adjustAmount(amount *big.Int) (uint64, StagedEpoch, error) {
	ledger, err := l.tx.ledger()
	if err != nil {
		return 0, StagedEpoch{}, err
	}
	staged, ok := Staged(ledger.Next)
	if !ok {
		return 0, StagedEpoch{}, ErrNoPendingEpoch
	}
	if !isPositive(amount) {
		return 0, StagedEpoch{}, ErrInvalidAmount
	}
	staged.RewardAmount = copyBigInt(amount)
	ledger.Next = staged
	l.tx.putLedger(ledger)
	return ledger.CurrentEpoch + 1, staged, nil
}

func (l *lifecycle) adjustCutoff(cutoff, now int64) (uint64, StagedEpoch, error) {
	ledger, err := l.tx.ledger()
	if err != nil {
		return 0, StagedEpoch{}, err
	}
	staged, ok := Staged(ledger.Next)
	if !ok {
		return 0, StagedEpoch{}, ErrNoPendingEpoch
	}
	if err := l.params.checkCutoff(cutoff); err != nil {
		return 0, StagedEpoch{}, err
	}
	if cutoff < now+l.params.MinNotice {
		return 0, StagedEpoch{}, ErrCutoffTooSoon
	}
	staged.StakeCutoff = cutoff
	ledger.Next = staged
	l.tx.putLedger(ledger)
	return ledger.CurrentEpoch + 1, staged, nil
}

// finalizeAndAdvance freezes the current epoch and promotes the staged
// configuration. The caller has already validated the deposit.
func (l *lifecycle) finalizeAndAdvance(now int64, refunded bool) (*Epoch, *Epoch, error) {
	ledger, current, err := l.current()
	if err != nil {
		return nil, nil, err
	}
	staged, ok := Staged(ledger.Next)
	if !ok {
		return nil, nil, ErrNoPendingEpoch
	}
	// Params may have widened since the cutoff was staged.
	if err := l.params.checkCutoff(staged.StakeCutoff); err != nil {
		return nil, nil, err
	}
	current.Finalized = true
	current.FinalizedAt = now
	current.Refunded = refunded
	current.QualifyingStake = copyBigInt(current.QualifyingStake)

	next := &Epoch{
		ID:              current.ID + 1,
		RewardAmount:    copyBigInt(staged.RewardAmount),
		StakeCutoff:     staged.StakeCutoff,
		RewardDue:       staged.StakeCutoff + l.params.SettlementWindow,
		QualifyingStake: copyBigInt(ledger.TotalStaked),
	}
	ledger.CurrentEpoch = next.ID
	ledger.Next = NoNextEpoch{}

	l.tx.putEpoch(current)
	l.tx.putEpoch(next)
	l.tx.putLedger(ledger)
	return current, next, nil
}
