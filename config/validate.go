package config

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ethpool/native/pool"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		return fmt.Errorf("rpc: listen address required")
	}
	if len(strings.TrimSpace(c.RPC.JWTSecret)) < 16 {
		return fmt.Errorf("rpc: jwt secret must be at least 16 characters")
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if _, err := c.GenesisReward(); err != nil {
		return err
	}
	params := c.PoolParams()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if cutoff := c.Pool.GenesisStakeCutoff; cutoff < 0 || cutoff > params.MaxStakeCutoff() {
		return fmt.Errorf("pool: genesis stake cutoff %d out of range", cutoff)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0, 1], got %v", r)
	}
	if _, err := c.RoleMembers(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.EventLog.Driver)) {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("event_log: unsupported driver %q", c.EventLog.Driver)
	}
	if c.EventLog.Driver == "postgres" && strings.TrimSpace(c.EventLog.DSN) == "" {
		return fmt.Errorf("event_log: postgres requires a dsn")
	}
	for i, hook := range c.Webhooks {
		parsed, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("webhooks[%d]: invalid url %q", i, hook.URL)
		}
		if strings.TrimSpace(hook.Secret) == "" {
			return fmt.Errorf("webhooks[%d]: secret required", i)
		}
		if hook.MaxAttempts < 1 {
			return fmt.Errorf("webhooks[%d]: max_attempts must be positive", i)
		}
	}
	return nil
}

// GenesisReward parses the configured epoch 0 reward.
func (c *Config) GenesisReward() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(c.Pool.GenesisRewardWei), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("pool: genesis reward must be a positive integer, got %q", c.Pool.GenesisRewardWei)
	}
	return amount, nil
}

// PoolParams converts the configured durations to pool parameters.
func (c *Config) PoolParams() pool.Params {
	return pool.Params{
		SettlementWindow: int64(c.Pool.SettlementWindow.Seconds()),
		MinConfigGap:     int64(c.Pool.MinConfigGap.Seconds()),
		MinNotice:        int64(c.Pool.MinNotice.Seconds()),
	}
}

// RoleMembers parses the seeded role membership keyed by pool role.
func (c *Config) RoleMembers() (map[string][]common.Address, error) {
	out := map[string][]common.Address{}
	for role, entries := range map[string][]string{
		pool.RoleAdministrator: c.Roles.Administrators,
		pool.RoleDepositor:     c.Roles.Depositors,
	} {
		for _, entry := range entries {
			trimmed := strings.TrimSpace(entry)
			if !common.IsHexAddress(trimmed) {
				return nil, fmt.Errorf("roles: invalid address %q for %s", entry, role)
			}
			out[role] = append(out[role], common.HexToAddress(trimmed))
		}
	}
	return out, nil
}
