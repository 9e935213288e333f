package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ethpool/native/pool"
)

// writeCommand builds a token-gated command that forwards its args.
func writeCommand(opts *options, use, short string, args cobra.PositionalArgs, method string, params func([]string) ([]interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(c *cobra.Command, argv []string) error {
			if err := opts.requireToken(); err != nil {
				return err
			}
			values, err := params(argv)
			if err != nil {
				return err
			}
			return opts.call(c, method, values...)
		},
	}
}

func passArgs(args []string) ([]interface{}, error) {
	out := make([]interface{}, len(args))
	for i, arg := range args {
		out[i] = arg
	}
	return out, nil
}

func newStakeCommand(opts *options) *cobra.Command {
	return writeCommand(opts, "stake <amount>", "Stake an amount (decimal or 0x hex base units)",
		cobra.ExactArgs(1), "pool_stake", passArgs)
}

func newUnstakeCommand(opts *options, use, method, short string) *cobra.Command {
	return writeCommand(opts, use, short, cobra.NoArgs, method, passArgs)
}

func newDepositCommand(opts *options) *cobra.Command {
	return writeCommand(opts, "deposit <amount>", "Deposit the reward for the current epoch",
		cobra.ExactArgs(1), "pool_depositEpochReward", passArgs)
}

func newNextEpochCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "next", Short: "Stage the next epoch"}
	cmd.AddCommand(
		writeCommand(opts, "configure <amount> <cutoff>", "Configure the next epoch's reward and cutoff",
			cobra.ExactArgs(2), "pool_configureNextEpoch", func(args []string) ([]interface{}, error) {
				cutoff, err := parseInstant(args[1])
				if err != nil {
					return nil, err
				}
				return []interface{}{args[0], cutoff}, nil
			}),
		writeCommand(opts, "amount <amount>", "Adjust the staged reward amount",
			cobra.ExactArgs(1), "pool_adjustPendingAmount", passArgs),
		writeCommand(opts, "cutoff <cutoff>", "Adjust the staged stake cutoff",
			cobra.ExactArgs(1), "pool_adjustPendingCutoff", func(args []string) ([]interface{}, error) {
				cutoff, err := parseInstant(args[0])
				if err != nil {
					return nil, err
				}
				return []interface{}{cutoff}, nil
			}),
	)
	return cmd
}

func newRoleCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "role", Short: "Manage administrator and depositor roles"}
	roleArgs := func(args []string) ([]interface{}, error) {
		if !pool.KnownRole(args[0]) {
			return nil, fmt.Errorf("unknown role %q (want %s or %s)", args[0], pool.RoleAdministrator, pool.RoleDepositor)
		}
		return passArgs(args)
	}
	cmd.AddCommand(
		writeCommand(opts, "grant <role> <address>", "Grant a role", cobra.ExactArgs(2), "pool_grantRole", roleArgs),
		writeCommand(opts, "revoke <role> <address>", "Revoke a role", cobra.ExactArgs(2), "pool_revokeRole", roleArgs),
		&cobra.Command{
			Use:   "check <role> <address>",
			Short: "Report whether an address holds a role",
			Args:  cobra.ExactArgs(2),
			RunE: func(c *cobra.Command, args []string) error {
				return opts.call(c, "pool_hasRole", args[0], args[1])
			},
		},
	)
	return cmd
}
