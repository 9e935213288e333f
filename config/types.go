package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as a human readable
// string in TOML, YAML and environment overrides.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML and envconfig.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// RPCConfig controls the JSON-RPC listener.
type RPCConfig struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen" split_words:"true"`
	// JWTSecret signs caller tokens (HS256). The token subject is the
	// caller's hex address.
	JWTSecret          string   `toml:"JWTSecret" yaml:"jwt_secret" split_words:"true"`
	JWTIssuer          string   `toml:"JWTIssuer" yaml:"jwt_issuer" split_words:"true"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second" split_words:"true"`
	RateLimitBurst     int      `toml:"RateLimitBurst" yaml:"rate_limit_burst" split_words:"true"`
	ReadTimeout        Duration `toml:"ReadTimeout" yaml:"read_timeout" split_words:"true"`
	WriteTimeout       Duration `toml:"WriteTimeout" yaml:"write_timeout" split_words:"true"`
	AllowedOrigins     []string `toml:"AllowedOrigins" yaml:"allowed_origins" split_words:"true"`
}

// PoolConfig describes the genesis epoch and the date constraints of the
// epoch lifecycle.
type PoolConfig struct {
	// GenesisRewardWei is the reward promised for epoch 0 in base units.
	GenesisRewardWei string `toml:"GenesisRewardWei" yaml:"genesis_reward_wei" split_words:"true"`
	// GenesisStakeCutoff is the unix cutoff of epoch 0. Zero means
	// GenesisLead after the first start.
	GenesisStakeCutoff int64    `toml:"GenesisStakeCutoff" yaml:"genesis_stake_cutoff" split_words:"true"`
	GenesisLead        Duration `toml:"GenesisLead" yaml:"genesis_lead" split_words:"true"`
	SettlementWindow   Duration `toml:"SettlementWindow" yaml:"settlement_window" split_words:"true"`
	MinConfigGap       Duration `toml:"MinConfigGap" yaml:"min_config_gap" split_words:"true"`
	MinNotice          Duration `toml:"MinNotice" yaml:"min_notice" split_words:"true"`
}

// RolesConfig seeds role membership on startup. Entries are hex addresses.
type RolesConfig struct {
	Administrators []string `toml:"Administrators" yaml:"administrators" split_words:"true"`
	Depositors     []string `toml:"Depositors" yaml:"depositors" split_words:"true"`
}

// LoggingConfig controls the structured logger and its optional file sink.
type LoggingConfig struct {
	Level      string `toml:"Level" yaml:"level" split_words:"true"`
	File       string `toml:"File" yaml:"file" split_words:"true"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days" split_words:"true"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint   string `toml:"Endpoint" yaml:"endpoint" split_words:"true"`
	Insecure   bool   `toml:"Insecure" yaml:"insecure" split_words:"true"`
	Headers    string `toml:"Headers" yaml:"headers" split_words:"true"`
	Traces     bool   `toml:"Traces" yaml:"traces" split_words:"true"`
	Metrics    bool   `toml:"Metrics" yaml:"metrics" split_words:"true"`
	InstanceID string `toml:"InstanceID" yaml:"instance_id" split_words:"true"`
	// SampleRatio of zero records every trace.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sample_ratio" split_words:"true"`
}

// EventLogConfig selects the SQL event index. An empty driver disables it.
type EventLogConfig struct {
	Driver string `toml:"Driver" yaml:"driver" split_words:"true"`
	DSN    string `toml:"DSN" yaml:"dsn" split_words:"true"`
}

// WebhookConfig registers an HMAC signed webhook destination.
type WebhookConfig struct {
	URL         string   `toml:"URL" yaml:"url"`
	Secret      string   `toml:"Secret" yaml:"secret"`
	Events      []string `toml:"Events" yaml:"events"`
	MaxAttempts int      `toml:"MaxAttempts" yaml:"max_attempts"`
	Timeout     Duration `toml:"Timeout" yaml:"timeout"`
}
