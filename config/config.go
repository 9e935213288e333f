package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment overrides, e.g.
// ETHPOOL_RPC_LISTEN_ADDRESS or ETHPOOL_DATA_DIR.
const EnvPrefix = "ethpool"

type Config struct {
	DataDir     string          `toml:"DataDir" yaml:"data_dir" split_words:"true"`
	Environment string          `toml:"Environment" yaml:"environment" split_words:"true"`
	ExportDir   string          `toml:"ExportDir" yaml:"export_dir" split_words:"true"`
	RPC         RPCConfig       `toml:"RPC" yaml:"rpc" split_words:"true"`
	Pool        PoolConfig      `toml:"Pool" yaml:"pool" split_words:"true"`
	Roles       RolesConfig     `toml:"Roles" yaml:"roles" split_words:"true"`
	Logging     LoggingConfig   `toml:"Logging" yaml:"logging" split_words:"true"`
	Telemetry   TelemetryConfig `toml:"Telemetry" yaml:"telemetry" split_words:"true"`
	EventLog    EventLogConfig  `toml:"EventLog" yaml:"event_log" split_words:"true"`
	Webhooks    []WebhookConfig `toml:"Webhooks" yaml:"webhooks" ignored:"true"`
}

// Load loads the configuration from the given path. TOML files that do not
// exist yet are created with defaults; YAML files must exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if _, err := os.Stat(path); os.IsNotExist(err) {
			created, err := createDefault(path)
			if err != nil {
				return nil, err
			}
			cfg = created
		} else {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
			}
		}
	}

	applyDefaults(cfg)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ethpool-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if strings.TrimSpace(cfg.ExportDir) == "" {
		cfg.ExportDir = filepath.Join(cfg.DataDir, "exports")
	}
	if cfg.RPC.ListenAddress == "" {
		cfg.RPC.ListenAddress = ":8545"
	}
	if cfg.RPC.JWTIssuer == "" {
		cfg.RPC.JWTIssuer = "ethpool"
	}
	if cfg.RPC.RateLimitPerSecond == 0 {
		cfg.RPC.RateLimitPerSecond = 20
	}
	if cfg.RPC.RateLimitBurst == 0 {
		cfg.RPC.RateLimitBurst = 40
	}
	if cfg.RPC.ReadTimeout.Duration == 0 {
		cfg.RPC.ReadTimeout.Duration = 10 * time.Second
	}
	if cfg.RPC.WriteTimeout.Duration == 0 {
		cfg.RPC.WriteTimeout.Duration = 15 * time.Second
	}
	if cfg.Pool.GenesisRewardWei == "" {
		cfg.Pool.GenesisRewardWei = "1000000000000000000"
	}
	if cfg.Pool.GenesisLead.Duration == 0 {
		cfg.Pool.GenesisLead.Duration = 48 * time.Hour
	}
	if cfg.Pool.SettlementWindow.Duration == 0 {
		cfg.Pool.SettlementWindow.Duration = 7 * 24 * time.Hour
	}
	if cfg.Pool.MinConfigGap.Duration == 0 {
		cfg.Pool.MinConfigGap.Duration = 8 * 24 * time.Hour
	}
	if cfg.Pool.MinNotice.Duration == 0 {
		cfg.Pool.MinNotice.Duration = 24 * time.Hour
	}
	if cfg.Roles.Administrators == nil {
		cfg.Roles.Administrators = []string{}
	}
	if cfg.Roles.Depositors == nil {
		cfg.Roles.Depositors = []string{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
	for i := range cfg.Webhooks {
		if cfg.Webhooks[i].MaxAttempts == 0 {
			cfg.Webhooks[i].MaxAttempts = 5
		}
		if cfg.Webhooks[i].Timeout.Duration == 0 {
			cfg.Webhooks[i].Timeout.Duration = 5 * time.Second
		}
	}
}

// createDefault creates and saves a default configuration file with a fresh
// JWT signing secret.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	cfg := Default()
	cfg.RPC.JWTSecret = hex.EncodeToString(secret)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
