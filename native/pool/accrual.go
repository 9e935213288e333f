package pool

import "math/big"

// pendingRewards sums the proportional share owed to the account for every
// finalised epoch in [EntryEpoch, current). Epochs with no qualifying stake
// contribute nothing. Truncation dust stays in the reward pool.
func pendingRewards(tx *txn, account *Account, current uint64) (*big.Int, error) {
	total := big.NewInt(0)
	if !account.HasStake() {
		return total, nil
	}
	for id := account.EntryEpoch; id < current; id++ {
		epoch, err := tx.epoch(id)
		if err != nil {
			return nil, err
		}
		total.Add(total, epochShare(account.Staked, epoch))
	}
	return total, nil
}

// epochShare returns floor(stake * reward / qualifying) for a finalised epoch.
func epochShare(stake *big.Int, epoch *Epoch) *big.Int {
	if epoch == nil || !epoch.Finalized || epoch.Refunded || !isPositive(epoch.QualifyingStake) || !isPositive(stake) {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(stake, copyBigInt(epoch.RewardAmount))
	return share.Quo(share, epoch.QualifyingStake)
}
