package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"ethpool/cmd/internal/secret"
	"ethpool/rpc"
)

func newTokenCommand() *cobra.Command {
	var (
		address string
		issuer  string
		ttl     time.Duration
		value   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an address",
		Long: "Mint an HS256 token whose subject is the caller address. The signing secret\n" +
			"is read from --secret, then " + secretEnv + ", then an interactive prompt.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid --address %q", address)
			}
			key, err := secret.NewSource(value, secretEnv, "jwt secret").Get()
			if err != nil {
				return err
			}
			token, err := rpc.IssueToken(key, issuer, common.HexToAddress(address), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "caller address (token subject)")
	cmd.Flags().StringVar(&issuer, "issuer", "ethpool", "token issuer; must match the daemon")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&value, "secret", "", "signing secret (prefer "+secretEnv+")")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
