package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"ethpool/rpc"
)

func newEpochCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "epoch", Short: "Inspect reward epochs"}

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the current epoch id",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.call(c, "pool_currentEpochId")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print one epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			return opts.call(c, "pool_getEpoch", id)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "Print the staged next epoch",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.call(c, "pool_getPendingEpoch")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dates",
		Short: "Print the current cutoff, reward date and promised reward",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			var out struct {
				StakeCutoff int64  `json:"stakeCutoff"`
				RewardDue   int64  `json:"rewardDue"`
				Promised    string `json:"promisedRewards"`
			}
			if err := opts.invoke(c.Context(), "pool_getCurrentStakeLimitDate", &out.StakeCutoff); err != nil {
				return err
			}
			if err := opts.invoke(c.Context(), "pool_getCurrentRewardDate", &out.RewardDue); err != nil {
				return err
			}
			if err := opts.invoke(c.Context(), "pool_getCurrentPromisedRewards", &out.Promised); err != nil {
				return err
			}
			return printJSON(c.OutOrStdout(), out)
		},
	})

	var from uint64
	var limit uint64
	list := &cobra.Command{
		Use:   "list",
		Short: "Page through epochs in id order",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if limit == 0 {
				return opts.call(c, "pool_getEpochs", from)
			}
			return opts.call(c, "pool_getEpochs", from, limit)
		},
	}
	list.Flags().Uint64Var(&from, "from", 0, "first epoch id")
	list.Flags().Uint64Var(&limit, "limit", 0, "page size (server maximum when zero)")
	cmd.AddCommand(list)
	return cmd
}

func newAccountCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "account <address>",
		Short: "Print an account's stake position",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return opts.call(c, "pool_getAccount", args[0])
		},
	}
}

func newRewardsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rewards <address>",
		Short: "Print rewards owed to an account across finalized epochs",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return opts.call(c, "pool_getPendingRewards", args[0])
		},
	}
}

func newLedgerCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print ledger totals",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return opts.call(c, "pool_getLedger")
		},
	}
}

func newEventsCommand(opts *options) *cobra.Command {
	var filter rpc.EventFilter
	var epoch int64
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the indexed event history",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if epoch >= 0 {
				id := uint64(epoch)
				filter.Epoch = &id
			}
			return opts.call(c, "pool_getEvents", filter)
		},
	}
	cmd.Flags().StringVar(&filter.Type, "type", "", "event type, e.g. pool.staked")
	cmd.Flags().StringVar(&filter.Account, "account", "", "hex address")
	cmd.Flags().Int64Var(&epoch, "epoch", -1, "epoch id")
	cmd.Flags().Uint64Var(&filter.After, "after", 0, "return events after this sequence")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "page size")
	return cmd
}
