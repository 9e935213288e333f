package pool

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/core/types"
)

const (
	EventTypeStaked                = "pool.staked"
	EventTypeUnstaked              = "pool.unstaked"
	EventTypeEmergencyUnstaked     = "pool.emergencyUnstaked"
	EventTypeNextEpochConfigured   = "pool.nextEpochConfigured"
	EventTypeNextEpochAmountAdjust = "pool.nextEpochAmountAdjusted"
	EventTypeNextEpochCutoffAdjust = "pool.nextEpochCutoffAdjusted"
	EventTypeRewardDeposited       = "pool.rewardDeposited"
	EventTypeRewardRefunded        = "pool.rewardRefunded"
	EventTypeEpochFinalized        = "pool.epochFinalized"
	EventTypeRoleGranted           = "pool.roleGranted"
	EventTypeRoleRevoked           = "pool.roleRevoked"
)

type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e poolEvent) Event() *types.Event { return e.evt }

func newEvent(eventType string, attrs map[string]string) poolEvent {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return poolEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func newStakedEvent(r *StakeReceipt, now int64) poolEvent {
	return newEvent(EventTypeStaked, map[string]string{
		"account":   r.Account.Hex(),
		"amount":    formatAmount(r.Amount),
		"staked":    formatAmount(r.Staked),
		"epoch":     strconv.FormatUint(r.Epoch, 10),
		"qualified": strconv.FormatBool(r.Qualified),
		"timestamp": strconv.FormatInt(now, 10),
	})
}

func newUnstakedEvent(r *UnstakeReceipt, emergency bool, now int64) poolEvent {
	eventType := EventTypeUnstaked
	if emergency {
		eventType = EventTypeEmergencyUnstaked
	}
	attrs := map[string]string{
		"account":   r.Account.Hex(),
		"principal": formatAmount(r.Principal),
		"rewards":   formatAmount(r.Rewards),
		"payout":    formatAmount(r.Payout),
		"forfeited": strconv.FormatBool(r.Forfeited),
		"timestamp": strconv.FormatInt(now, 10),
	}
	if r.HasSettled {
		attrs["settledThrough"] = strconv.FormatUint(r.SettledThrough, 10)
	}
	return newEvent(eventType, attrs)
}

func newNextEpochEvent(eventType string, caller common.Address, epoch uint64, staged StagedEpoch) poolEvent {
	return newEvent(eventType, map[string]string{
		"caller":       caller.Hex(),
		"epoch":        strconv.FormatUint(epoch, 10),
		"rewardAmount": formatAmount(staged.RewardAmount),
		"stakeCutoff":  strconv.FormatInt(staged.StakeCutoff, 10),
	})
}

func newDepositEvent(caller common.Address, r *DepositReceipt) poolEvent {
	eventType := EventTypeRewardDeposited
	if r.Refunded.Sign() > 0 {
		eventType = EventTypeRewardRefunded
	}
	return newEvent(eventType, map[string]string{
		"depositor": caller.Hex(),
		"epoch":     strconv.FormatUint(r.Epoch, 10),
		"amount":    formatAmount(r.Amount),
		"retained":  formatAmount(r.Retained),
		"refunded":  formatAmount(r.Refunded),
	})
}

func newEpochFinalizedEvent(finalized, next *Epoch) poolEvent {
	return newEvent(EventTypeEpochFinalized, map[string]string{
		"epoch":               strconv.FormatUint(finalized.ID, 10),
		"rewardAmount":        formatAmount(finalized.RewardAmount),
		"qualifyingStake":     formatAmount(finalized.QualifyingStake),
		"refunded":            strconv.FormatBool(finalized.Refunded),
		"finalizedAt":         strconv.FormatInt(finalized.FinalizedAt, 10),
		"nextEpoch":           strconv.FormatUint(next.ID, 10),
		"nextRewardAmount":    formatAmount(next.RewardAmount),
		"nextStakeCutoff":     strconv.FormatInt(next.StakeCutoff, 10),
		"nextRewardDue":       strconv.FormatInt(next.RewardDue, 10),
		"nextQualifyingStake": formatAmount(next.QualifyingStake),
	})
}

func newRoleEvent(eventType, role string, caller, member common.Address) poolEvent {
	return newEvent(eventType, map[string]string{
		"role":   role,
		"caller": caller.Hex(),
		"member": member.Hex(),
	})
}

func formatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
