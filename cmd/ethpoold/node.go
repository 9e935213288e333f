package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ethpool/config"
	"ethpool/core/events"
	"ethpool/core/state"
	"ethpool/integrations/eventlog"
	"ethpool/integrations/webhooks"
	"ethpool/native/pool"
	"ethpool/observability/logging"
	"ethpool/observability/metrics"
	"ethpool/rpc"
	"ethpool/storage"
)

const stateDirName = "state"

// node owns every long lived component of the daemon.
type node struct {
	db         storage.Database
	manager    *state.Manager
	engine     *pool.Engine
	server     *rpc.Server
	eventLog   *eventlog.Log
	dispatches []*webhooks.Dispatcher
	logger     *slog.Logger
}

// openNode assembles the ledger, its sinks and the RPC server from cfg.
// db may be nil, in which case LevelDB is opened under cfg.DataDir.
func openNode(cfg *config.Config, db storage.Database, logger *slog.Logger, now func() time.Time) (n *node, err error) {
	if now == nil {
		now = time.Now
	}
	n = &node{logger: logger}
	defer func() {
		if err != nil {
			n.Close()
			n = nil
		}
	}()

	if db == nil {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return n, fmt.Errorf("create data dir: %w", err)
		}
		level, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, stateDirName))
		if err != nil {
			return n, fmt.Errorf("open state database: %w", err)
		}
		db = level
	}
	n.db = db
	n.manager = state.NewManager(db)
	if err := n.manager.EnsureSchemaVersion(); err != nil {
		return n, err
	}

	n.engine = pool.NewEngine(state.NewPoolStore(n.manager))
	n.engine.SetAuthority(n.manager)
	n.engine.SetRoleRegistry(n.manager)
	n.engine.SetLogger(logger)
	n.engine.SetNowFunc(func() int64 { return now().Unix() })
	if err := n.engine.SetParams(cfg.PoolParams()); err != nil {
		return n, fmt.Errorf("pool params: %w", err)
	}
	observer := metrics.Pool()
	for _, op := range poolOperations {
		observer.InitOperation(op)
	}
	n.engine.SetObserver(observer)

	if err := n.seedRoles(cfg); err != nil {
		return n, err
	}
	if err := n.initGenesis(cfg, now); err != nil {
		return n, err
	}

	n.server, err = rpc.NewServer(n.engine, rpc.Config{
		JWTSecret:          cfg.RPC.JWTSecret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		ReadTimeout:        cfg.RPC.ReadTimeout.Duration,
		WriteTimeout:       cfg.RPC.WriteTimeout.Duration,
		AllowedOrigins:     cfg.RPC.AllowedOrigins,
	}, logger)
	if err != nil {
		return n, fmt.Errorf("rpc server: %w", err)
	}

	emitters := events.MultiEmitter{n.server.Events()}
	if driver := strings.TrimSpace(cfg.EventLog.Driver); driver != "" {
		dsn := strings.TrimSpace(cfg.EventLog.DSN)
		if dsn == "" && strings.EqualFold(driver, eventlog.DriverSQLite) {
			dsn = filepath.Join(cfg.DataDir, "events.db")
		}
		n.eventLog, err = eventlog.Open(driver, dsn, logger)
		if err != nil {
			return n, fmt.Errorf("event log: %w", err)
		}
		n.server.SetEventSource(n.eventLog)
		emitters = append(emitters, n.eventLog)
		logger.Info("event log opened",
			slog.String("driver", driver),
			logging.MaskDSN("dsn", dsn))
	}
	for i, hook := range cfg.Webhooks {
		dispatcher, err := webhooks.NewDispatcher(hook.URL, []byte(hook.Secret),
			webhooks.WithTimeout(hook.Timeout.Duration),
			webhooks.WithRetryPolicy(hook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger.With("webhook", i)),
		)
		if err != nil {
			return n, fmt.Errorf("webhooks[%d]: %w", i, err)
		}
		n.dispatches = append(n.dispatches, dispatcher)
		logger.Info("webhook registered",
			logging.MaskDSN("url", hook.URL),
			logging.MaskField("secret", hook.Secret),
			slog.Any("events", hook.Events))
		emitters = append(emitters, webhooks.NewEmitter(dispatcher, hook.Events, logger))
	}
	n.engine.SetEmitter(emitters)
	return n, nil
}

var poolOperations = []string{
	"init", "stake", "unstake", "emergencyUnstake", "configureNextEpoch",
	"adjustPendingAmount", "adjustPendingCutoff", "depositEpochReward",
	"grantRole", "revokeRole",
}

// seedRoles adds the configured members. Existing grants are kept so roles
// managed over RPC survive restarts.
func (n *node) seedRoles(cfg *config.Config) error {
	members, err := cfg.RoleMembers()
	if err != nil {
		return err
	}
	for role, addrs := range members {
		for _, addr := range addrs {
			if err := n.manager.SetRole(role, addr.Bytes()); err != nil {
				return fmt.Errorf("seed role %s: %w", role, err)
			}
		}
	}
	return nil
}

func (n *node) initGenesis(cfg *config.Config, now func() time.Time) error {
	if _, err := n.engine.CurrentEpochID(); err == nil {
		return nil
	} else if !errors.Is(err, pool.ErrNotInitialised) {
		return fmt.Errorf("load ledger: %w", err)
	}
	reward, err := cfg.GenesisReward()
	if err != nil {
		return err
	}
	cutoff := cfg.Pool.GenesisStakeCutoff
	if cutoff == 0 {
		cutoff = now().Add(cfg.Pool.GenesisLead.Duration).Unix()
	}
	err = n.engine.Init(pool.GenesisConfig{RewardAmount: reward, StakeCutoff: cutoff})
	if err != nil && !errors.Is(err, pool.ErrAlreadyInitialised) {
		return fmt.Errorf("init ledger: %w", err)
	}
	n.logger.Info("ledger initialised", "reward", reward.String(), "stake_cutoff", cutoff)
	return nil
}

// Serve blocks until ctx is cancelled or the listener fails.
func (n *node) Serve(ctx context.Context, listen string) error {
	listener, err := listenTCP(listen)
	if err != nil {
		return err
	}
	return n.server.Serve(ctx, listener)
}

// Close releases sinks before the database so no event is lost mid-write.
func (n *node) Close() {
	if n == nil {
		return
	}
	for _, d := range n.dispatches {
		d.Close()
	}
	if n.eventLog != nil {
		if err := n.eventLog.Close(); err != nil {
			n.logger.Warn("close event log", "error", err)
		}
	}
	if n.db != nil {
		n.db.Close()
	}
}
