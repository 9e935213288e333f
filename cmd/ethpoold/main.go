package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"ethpool/config"
	"ethpool/observability/logging"
	telemetry "ethpool/observability/otel"
)

const serviceName = "ethpoold"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("set GOMAXPROCS", "error", err)
	}

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := telemetry.Init(ctx, telemetryConfig(cfg))
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	n, err := openNode(cfg, nil, logger, nil)
	if err != nil {
		return err
	}
	defer n.Close()

	logger.Info("starting pool ledger",
		slog.String("data_dir", cfg.DataDir),
		slog.String("environment", cfg.Environment))
	if err := n.Serve(ctx, cfg.RPC.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// telemetryConfig stamps the ledger's date rules and sinks on the resource so
// dashboards can tell differently configured pools apart.
func telemetryConfig(cfg *config.Config) telemetry.Config {
	params := cfg.PoolParams()
	ledger := map[string]string{
		"settlement_window": strconv.FormatInt(params.SettlementWindow, 10),
		"min_config_gap":    strconv.FormatInt(params.MinConfigGap, 10),
		"min_notice":        strconv.FormatInt(params.MinNotice, 10),
		"webhooks":          strconv.Itoa(len(cfg.Webhooks)),
	}
	if driver := strings.TrimSpace(cfg.EventLog.Driver); driver != "" {
		ledger["event_log"] = strings.ToLower(driver)
	}
	return telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		InstanceID:  cfg.Telemetry.InstanceID,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Ledger:      ledger,
	}
}

func listenTCP(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return listener, nil
}
