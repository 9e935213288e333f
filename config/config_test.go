package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ethpool/native/pool"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if len(cfg.RPC.JWTSecret) != 64 {
		t.Fatalf("expected generated jwt secret, got %q", cfg.RPC.JWTSecret)
	}
	if cfg.PoolParams() != pool.DefaultParams() {
		t.Fatalf("default durations must match pool defaults, got %+v", cfg.PoolParams())
	}

	reloaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if reloaded.RPC.JWTSecret != cfg.RPC.JWTSecret {
		t.Fatalf("jwt secret not persisted")
	}
	if reloaded.Pool.SettlementWindow.Duration != 7*24*time.Hour {
		t.Fatalf("unexpected settlement window %s", reloaded.Pool.SettlementWindow)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	contents := `DataDir = "/var/lib/ethpool"
Environment = "staging"

[RPC]
ListenAddress = ":9000"
JWTSecret = "0123456789abcdef0123"
RateLimitPerSecond = 5.0

[Pool]
GenesisRewardWei = "2500"
GenesisStakeCutoff = 1700000000
SettlementWindow = "1h"
MinConfigGap = "2h"
MinNotice = "30m"

[Roles]
Administrators = ["0x00000000000000000000000000000000000000a1"]
Depositors = ["0x00000000000000000000000000000000000000d1"]

[[Webhooks]]
URL = "https://hooks.example.com/pool"
Secret = "s3cret"
Events = ["pool.epochFinalized"]
`
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RPC.ListenAddress != ":9000" || cfg.Environment != "staging" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ExportDir != filepath.Join("/var/lib/ethpool", "exports") {
		t.Fatalf("unexpected export dir %q", cfg.ExportDir)
	}
	params := cfg.PoolParams()
	if params.SettlementWindow != 3600 || params.MinConfigGap != 7200 || params.MinNotice != 1800 {
		t.Fatalf("unexpected params %+v", params)
	}
	reward, err := cfg.GenesisReward()
	if err != nil || reward.Int64() != 2500 {
		t.Fatalf("unexpected genesis reward %v err=%v", reward, err)
	}
	members, err := cfg.RoleMembers()
	if err != nil {
		t.Fatalf("role members: %v", err)
	}
	if len(members[pool.RoleAdministrator]) != 1 || len(members[pool.RoleDepositor]) != 1 {
		t.Fatalf("unexpected members %v", members)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].MaxAttempts != 5 || cfg.Webhooks[0].Timeout.Duration != 5*time.Second {
		t.Fatalf("unexpected webhook defaults %+v", cfg.Webhooks)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte("Bogus = 1\n[RPC]\nJWTSecret = \"0123456789abcdef0123\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "ethpool.yaml")
	contents := `data_dir: /tmp/pool
rpc:
  listen: ":7000"
  jwt_secret: "yaml-secret-0123456789"
  read_timeout: 3s
pool:
  genesis_reward_wei: "10"
  min_notice: 2h
event_log:
  driver: sqlite
  dsn: /tmp/pool/events.db
`
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.RPC.ListenAddress != ":7000" || cfg.RPC.ReadTimeout.Duration != 3*time.Second {
		t.Fatalf("unexpected rpc config %+v", cfg.RPC)
	}
	if cfg.Pool.MinNotice.Duration != 2*time.Hour {
		t.Fatalf("unexpected min notice %s", cfg.Pool.MinNotice)
	}
	if cfg.EventLog.Driver != "sqlite" {
		t.Fatalf("unexpected event log %+v", cfg.EventLog)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	if _, err := Load(cfgPath); err != nil {
		t.Fatalf("create default: %v", err)
	}
	t.Setenv("ETHPOOL_RPC_LISTEN_ADDRESS", ":1234")
	t.Setenv("ETHPOOL_DATA_DIR", "/srv/pool")
	t.Setenv("ETHPOOL_POOL_MIN_NOTICE", "90m")
	t.Setenv("ETHPOOL_ROLES_DEPOSITORS", "0x00000000000000000000000000000000000000d1,0x00000000000000000000000000000000000000d2")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load with env: %v", err)
	}
	if cfg.RPC.ListenAddress != ":1234" || cfg.DataDir != "/srv/pool" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Pool.MinNotice.Duration != 90*time.Minute {
		t.Fatalf("unexpected min notice %s", cfg.Pool.MinNotice)
	}
	if len(cfg.Roles.Depositors) != 2 {
		t.Fatalf("unexpected depositors %v", cfg.Roles.Depositors)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.RPC.JWTSecret = "0123456789abcdef"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}

	cases := map[string]func(*Config){
		"short secret":     func(c *Config) { c.RPC.JWTSecret = "short" },
		"zero reward":      func(c *Config) { c.Pool.GenesisRewardWei = "0" },
		"garbage reward":   func(c *Config) { c.Pool.GenesisRewardWei = "lots" },
		"negative window":  func(c *Config) { c.Pool.SettlementWindow.Duration = -time.Hour },
		"negative cutoff":  func(c *Config) { c.Pool.GenesisStakeCutoff = -1 },
		"far cutoff":       func(c *Config) { c.Pool.GenesisStakeCutoff = math.MaxInt64 },
		"bad role address": func(c *Config) { c.Roles.Administrators = []string{"alice"} },
		"bad driver":       func(c *Config) { c.EventLog.Driver = "mysql" },
		"sample ratio":     func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"postgres no dsn":  func(c *Config) { c.EventLog.Driver = "postgres" },
		"webhook url":      func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "nope", Secret: "x", MaxAttempts: 1}} },
		"webhook secret":   func(c *Config) { c.Webhooks = []WebhookConfig{{URL: "https://a.example", MaxAttempts: 1}} },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
