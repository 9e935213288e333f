package rpc

import (
	"ethpool/native/pool"
)

type method struct {
	write     bool
	minParams int
	maxParams int
	fn        func(*call) (interface{}, error)
}

func (s *Server) poolMethods() map[string]method {
	return map[string]method{
		"pool_stake":               {write: true, minParams: 1, maxParams: 1, fn: s.stake},
		"pool_unstake":             {write: true, fn: s.unstake},
		"pool_emergencyUnstake":    {write: true, fn: s.emergencyUnstake},
		"pool_configureNextEpoch":  {write: true, minParams: 2, maxParams: 2, fn: s.configureNextEpoch},
		"pool_adjustPendingAmount": {write: true, minParams: 1, maxParams: 1, fn: s.adjustPendingAmount},
		"pool_adjustPendingCutoff": {write: true, minParams: 1, maxParams: 1, fn: s.adjustPendingCutoff},
		"pool_depositEpochReward":  {write: true, minParams: 1, maxParams: 1, fn: s.depositEpochReward},
		"pool_grantRole":           {write: true, minParams: 2, maxParams: 2, fn: s.grantRole},
		"pool_revokeRole":          {write: true, minParams: 2, maxParams: 2, fn: s.revokeRole},

		"pool_currentEpochId":            {fn: s.currentEpochID},
		"pool_getEpoch":                  {minParams: 1, maxParams: 1, fn: s.getEpoch},
		"pool_getAccount":                {minParams: 1, maxParams: 1, fn: s.getAccount},
		"pool_getPendingRewards":         {minParams: 1, maxParams: 1, fn: s.getPendingRewards},
		"pool_getCurrentRewardDate":      {fn: s.getCurrentRewardDate},
		"pool_getCurrentStakeLimitDate":  {fn: s.getCurrentStakeLimitDate},
		"pool_getCurrentPromisedRewards": {fn: s.getCurrentPromisedRewards},
		"pool_getPendingEpoch":           {fn: s.getPendingEpoch},
		"pool_getLedger":                 {fn: s.getLedger},
		"pool_getEpochs":                 {maxParams: 2, fn: s.getEpochs},
		"pool_hasRole":                   {minParams: 2, maxParams: 2, fn: s.hasRole},
		"pool_getEvents":                 {maxParams: 1, fn: s.getEvents},
	}
}

func (s *Server) stake(c *call) (interface{}, error) {
	amount, err := c.amount(0)
	if err != nil {
		return nil, err
	}
	receipt, err := s.engine.Stake(c.caller, amount)
	if err != nil {
		return nil, err
	}
	return stakeResult(receipt), nil
}

func (s *Server) unstake(c *call) (interface{}, error) {
	receipt, err := s.engine.Unstake(c.caller)
	if err != nil {
		return nil, err
	}
	return unstakeResult(receipt), nil
}

func (s *Server) emergencyUnstake(c *call) (interface{}, error) {
	receipt, err := s.engine.EmergencyUnstake(c.caller)
	if err != nil {
		return nil, err
	}
	return unstakeResult(receipt), nil
}

func (s *Server) configureNextEpoch(c *call) (interface{}, error) {
	amount, err := c.amount(0)
	if err != nil {
		return nil, err
	}
	cutoff, err := c.unix(1, "cutoff")
	if err != nil {
		return nil, err
	}
	staged, err := s.engine.ConfigureNextEpoch(c.caller, amount, cutoff)
	if err != nil {
		return nil, err
	}
	return pendingEpochResult(staged), nil
}

func (s *Server) adjustPendingAmount(c *call) (interface{}, error) {
	amount, err := c.amount(0)
	if err != nil {
		return nil, err
	}
	staged, err := s.engine.AdjustPendingAmount(c.caller, amount)
	if err != nil {
		return nil, err
	}
	return pendingEpochResult(staged), nil
}

func (s *Server) adjustPendingCutoff(c *call) (interface{}, error) {
	cutoff, err := c.unix(0, "cutoff")
	if err != nil {
		return nil, err
	}
	staged, err := s.engine.AdjustPendingCutoff(c.caller, cutoff)
	if err != nil {
		return nil, err
	}
	return pendingEpochResult(staged), nil
}

func (s *Server) depositEpochReward(c *call) (interface{}, error) {
	amount, err := c.amount(0)
	if err != nil {
		return nil, err
	}
	receipt, err := s.engine.DepositEpochReward(c.caller, amount)
	if err != nil {
		return nil, err
	}
	return depositResult(receipt), nil
}

func (s *Server) grantRole(c *call) (interface{}, error) {
	role, err := c.role(0)
	if err != nil {
		return nil, err
	}
	member, err := c.address(1, "member")
	if err != nil {
		return nil, err
	}
	if err := s.engine.GrantRole(c.caller, role, member); err != nil {
		return nil, err
	}
	return roleResult(role, member, true), nil
}

func (s *Server) revokeRole(c *call) (interface{}, error) {
	role, err := c.role(0)
	if err != nil {
		return nil, err
	}
	member, err := c.address(1, "member")
	if err != nil {
		return nil, err
	}
	if err := s.engine.RevokeRole(c.caller, role, member); err != nil {
		return nil, err
	}
	return roleResult(role, member, false), nil
}

func (s *Server) currentEpochID(*call) (interface{}, error) {
	return s.engine.CurrentEpochID()
}

func (s *Server) getEpoch(c *call) (interface{}, error) {
	id, err := c.uint(0, "epoch id")
	if err != nil {
		return nil, err
	}
	epoch, err := s.engine.GetEpoch(id)
	if err != nil {
		return nil, err
	}
	return epochResult(epoch), nil
}

func (s *Server) getAccount(c *call) (interface{}, error) {
	addr, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}
	account, err := s.engine.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return accountResult(account), nil
}

func (s *Server) getPendingRewards(c *call) (interface{}, error) {
	addr, err := c.address(0, "address")
	if err != nil {
		return nil, err
	}
	owed, err := s.engine.GetPendingRewards(addr)
	if err != nil {
		return nil, err
	}
	return amountString(owed), nil
}

func (s *Server) getCurrentRewardDate(*call) (interface{}, error) {
	return s.engine.GetCurrentRewardDate()
}

func (s *Server) getCurrentStakeLimitDate(*call) (interface{}, error) {
	return s.engine.GetCurrentStakeLimitDate()
}

func (s *Server) getCurrentPromisedRewards(*call) (interface{}, error) {
	amount, err := s.engine.GetCurrentPromisedRewards()
	if err != nil {
		return nil, err
	}
	return amountString(amount), nil
}

func (s *Server) getPendingEpoch(*call) (interface{}, error) {
	next, err := s.engine.GetPendingEpoch()
	if err != nil {
		return nil, err
	}
	return pendingEpochResult(next), nil
}

func (s *Server) getLedger(*call) (interface{}, error) {
	summary, err := s.engine.Ledger()
	if err != nil {
		return nil, err
	}
	return ledgerResult(summary), nil
}

func (s *Server) getEpochs(c *call) (interface{}, error) {
	var from uint64
	limit := pool.MaxEpochPage
	if c.has(0) {
		value, err := c.uint(0, "from")
		if err != nil {
			return nil, err
		}
		from = value
	}
	if c.has(1) {
		value, err := c.uint(1, "limit")
		if err != nil {
			return nil, err
		}
		if value == 0 || value > uint64(pool.MaxEpochPage) {
			return nil, invalidParams("limit out of range", value)
		}
		limit = int(value)
	}
	epochs, err := s.engine.Epochs(from, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EpochResult, 0, len(epochs))
	for _, epoch := range epochs {
		out = append(out, epochResult(epoch))
	}
	return out, nil
}

func (s *Server) hasRole(c *call) (interface{}, error) {
	role, err := c.role(0)
	if err != nil {
		return nil, err
	}
	addr, err := c.address(1, "address")
	if err != nil {
		return nil, err
	}
	return s.engine.HasRole(role, addr), nil
}
