package pool

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func (h *harness) pending(addr common.Address) *big.Int {
	h.t.Helper()
	owed, err := h.engine.GetPendingRewards(addr)
	require.NoError(h.t, err)
	return owed
}

func TestProportionalSplitTruncates(t *testing.T) {
	h := newHarness(t)
	h.stake(aliceAddr, ether(1))
	h.stake(bobAddr, ether(2))
	h.advance(ether(1))

	require.Zero(t, h.epoch(0).QualifyingStake.Cmp(ether(3)))

	third, _ := new(big.Int).SetString("333333333333333333", 10)
	twoThirds, _ := new(big.Int).SetString("666666666666666666", 10)
	require.Zero(t, h.pending(aliceAddr).Cmp(third))
	require.Zero(t, h.pending(bobAddr).Cmp(twoThirds))

	alice, err := h.engine.Unstake(aliceAddr)
	require.NoError(t, err)
	require.Zero(t, alice.Payout.Cmp(new(big.Int).Add(ether(1), third)))
	bob, err := h.engine.Unstake(bobAddr)
	require.NoError(t, err)
	require.Zero(t, bob.Payout.Cmp(new(big.Int).Add(ether(2), twoThirds)))

	// One wei of truncation dust stays unattributed.
	summary := h.ledger()
	require.Zero(t, summary.TotalStaked.Sign())
	require.Zero(t, summary.RewardPool.Cmp(big.NewInt(1)))
}

func TestRewardsAccrueAcrossEpochs(t *testing.T) {
	h := newHarness(t)
	h.stake(aliceAddr, ether(1))
	h.now = h.epoch(0).StakeCutoff + 1
	late := h.stake(bobAddr, ether(3))
	require.Equal(t, uint64(1), late.Epoch)

	previous := h.pending(aliceAddr)
	require.Zero(t, previous.Sign())

	h.advance(ether(2))
	afterFirst := h.pending(aliceAddr)
	require.Zero(t, afterFirst.Cmp(ether(1)))
	require.Zero(t, h.pending(bobAddr).Sign(), "bob did not qualify for epoch 0")
	require.Zero(t, h.epoch(1).QualifyingStake.Cmp(ether(4)))

	h.advance(ether(1))
	afterSecond := h.pending(aliceAddr)
	require.True(t, afterSecond.Cmp(afterFirst) >= 0, "pending rewards must not decrease")
	half := new(big.Int).Div(ether(1), big.NewInt(2))
	require.Zero(t, afterSecond.Cmp(new(big.Int).Add(ether(1), half)))
	require.Zero(t, h.pending(bobAddr).Cmp(new(big.Int).Mul(half, big.NewInt(3))))

	receipt, err := h.engine.Unstake(aliceAddr)
	require.NoError(t, err)
	require.True(t, receipt.HasSettled)
	require.Equal(t, uint64(1), receipt.SettledThrough)
	require.Zero(t, h.pending(aliceAddr).Sign(), "pending rewards must be zero after unstake")

	account, err := h.engine.GetAccount(aliceAddr)
	require.NoError(t, err)
	last, ok := account.LastSettledEpoch()
	require.True(t, ok)
	require.Equal(t, uint64(1), last)
	require.Zero(t, account.Staked.Sign())
}

func TestEmergencyUnstakeKeepsFinalizedRewards(t *testing.T) {
	h := newHarness(t)
	h.stake(aliceAddr, ether(1))
	h.advance(ether(5))

	h.now = h.epoch(1).RewardDue
	_, err := h.engine.Unstake(aliceAddr)
	require.True(t, errors.Is(err, ErrRewardsNotYetSettled), "got %v", err)

	receipt, err := h.engine.EmergencyUnstake(aliceAddr)
	require.NoError(t, err)
	require.True(t, receipt.Forfeited)
	require.Zero(t, receipt.Principal.Cmp(ether(1)))
	require.Zero(t, receipt.Rewards.Cmp(ether(1)))
	require.Zero(t, h.epoch(1).QualifyingStake.Sign())

	// Nobody qualifies for epoch 1 any more, so its deposit is refunded.
	deposit := h.advance(ether(1))
	require.Zero(t, deposit.Refunded.Cmp(ether(5)))
	require.Zero(t, h.ledger().Held.Sign())
}

func TestRefundedEpochContributesNothing(t *testing.T) {
	h := newHarness(t)
	h.now = h.epoch(0).StakeCutoff + 1
	h.stake(aliceAddr, ether(1))
	h.advance(ether(1))
	require.True(t, h.epoch(0).Refunded)
	require.Zero(t, h.pending(aliceAddr).Sign())

	share := epochShare(ether(1), &Epoch{Finalized: true, RewardAmount: ether(1), QualifyingStake: big.NewInt(0)})
	require.Zero(t, share.Sign())
	share = epochShare(ether(1), &Epoch{Finalized: false, RewardAmount: ether(1), QualifyingStake: ether(1)})
	require.Zero(t, share.Sign(), "unfinalised epochs pay nothing")
}

func TestPendingRewardsIsPure(t *testing.T) {
	h := newHarness(t)
	h.stake(aliceAddr, ether(2))
	h.advance(ether(1))
	first := h.pending(aliceAddr)
	second := h.pending(aliceAddr)
	require.Zero(t, first.Cmp(second))
	account, err := h.engine.GetAccount(aliceAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(0), account.EntryEpoch)
}

// TestLedgerConservation drives a seeded random interleaving of operations
// and checks that principal and reward balances stay consistent.
func TestLedgerConservation(t *testing.T) {
	h := newHarnessWithReward(t, big.NewInt(1_000_003))
	rng := rand.New(rand.NewSource(7))
	actors := []common.Address{aliceAddr, bobAddr, carolAddr}

	in := big.NewInt(0)
	out := big.NewInt(0)

	check := func(step int) {
		summary := h.ledger()
		require.Zero(t, h.store.StakeSum().Cmp(summary.TotalStaked), "step %d: stake sum diverged", step)
		require.True(t, summary.RewardPool.Sign() >= 0, "step %d: negative reward pool", step)
		expected := new(big.Int).Sub(in, out)
		require.Zero(t, summary.Held.Cmp(expected), "step %d: held %s expected %s", step, summary.Held, expected)
	}

	for step := 0; step < 400; step++ {
		actor := actors[rng.Intn(len(actors))]
		switch rng.Intn(6) {
		case 0, 1:
			amount := big.NewInt(int64(rng.Intn(5000) + 1))
			if _, err := h.engine.Stake(actor, amount); err != nil {
				require.True(t, IsRejection(err), "step %d: %v", step, err)
			} else {
				in.Add(in, amount)
			}
		case 2:
			receipt, err := h.engine.Unstake(actor)
			if err != nil {
				require.True(t, IsRejection(err), "step %d: %v", step, err)
			} else {
				out.Add(out, receipt.Payout)
			}
		case 3:
			receipt, err := h.engine.EmergencyUnstake(actor)
			if err != nil {
				require.True(t, IsRejection(err), "step %d: %v", step, err)
			} else {
				out.Add(out, receipt.Payout)
			}
		case 4:
			h.now += int64(rng.Intn(4)) * day
		case 5:
			current := h.epoch(h.ledger().CurrentEpoch)
			if h.now < current.RewardDue {
				continue
			}
			params := h.engine.Params()
			_, err := h.engine.ConfigureNextEpoch(adminAddr, big.NewInt(int64(rng.Intn(1_000_000)+1)), h.now+params.MinConfigGap)
			require.NoError(t, err)
			receipt, err := h.engine.DepositEpochReward(depositorAddr, current.RewardAmount)
			require.NoError(t, err)
			in.Add(in, receipt.Retained)
		}
		check(step)
	}
}
