package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ethpool/rpc"
)

const (
	endpointEnv = "ETHPOOL_RPC_URL"
	tokenEnv    = "ETHPOOL_TOKEN"
	secretEnv   = "ETHPOOL_RPC_JWT_SECRET"

	defaultEndpoint = "http://localhost:8545/rpc"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	endpoint string
	token    string
	timeout  time.Duration

	// httpClient overrides the transport in tests.
	httpClient *http.Client
}

func main() {
	if err := newRootCommand(&options{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "ethpool-cli",
		Short:         "Operate an ethpool staking ledger over JSON-RPC",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "rpc", envOr(endpointEnv, defaultEndpoint), "JSON-RPC endpoint")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "bearer token for write methods")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-call timeout")

	root.AddCommand(
		newEpochCommand(opts),
		newAccountCommand(opts),
		newRewardsCommand(opts),
		newLedgerCommand(opts),
		newEventsCommand(opts),
		newStakeCommand(opts),
		newUnstakeCommand(opts, "unstake", "pool_unstake", "Withdraw principal and settled rewards"),
		newUnstakeCommand(opts, "emergency-unstake", "pool_emergencyUnstake", "Withdraw principal and forfeit unsettled rewards"),
		newNextEpochCommand(opts),
		newDepositCommand(opts),
		newRoleCommand(opts),
		newTokenCommand(),
		newExportCommand(opts),
	)
	return root
}

func (o *options) client() *rpc.Client {
	client := rpc.NewClient(o.endpoint, o.token)
	if o.httpClient != nil {
		client.WithHTTPClient(o.httpClient)
	}
	return client
}

// call runs one RPC and prints the result as indented JSON.
func (o *options) call(cmd *cobra.Command, method string, params ...interface{}) error {
	var result json.RawMessage
	if err := o.invoke(cmd.Context(), method, &result, params...); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func (o *options) invoke(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.client().Call(ctx, method, out, params...)
}

func (o *options) requireToken() error {
	if strings.TrimSpace(o.token) == "" {
		return fmt.Errorf("write methods need a token; pass --token or set %s", tokenEnv)
	}
	return nil
}

func printJSON(w io.Writer, value interface{}) error {
	if raw, ok := value.(json.RawMessage); ok {
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		value = decoded
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// parseInstant accepts unix seconds or an RFC3339 timestamp.
func parseInstant(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return unix, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid instant %q: use unix seconds or RFC3339", raw)
	}
	return ts.Unix(), nil
}
