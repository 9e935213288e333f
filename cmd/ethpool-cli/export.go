package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ethpool/integrations/exports"
	"ethpool/native/pool"
	"ethpool/rpc"
)

func newExportCommand(opts *options) *cobra.Command {
	var (
		format string
		dir    string
		name   string
		from   uint64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the epoch history to a CSV, JSONL or parquet file with a checksum sidecar",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			parsed, err := exports.ParseFormat(format)
			if err != nil {
				return err
			}
			epochs, err := fetchEpochs(c, opts, from)
			if err != nil {
				return err
			}
			path, checksum, err := exports.WriteFile(dir, name, parsed, epochs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.OutOrStdout(), "wrote %d epochs to %s (sha256 %s)\n", len(epochs), path, checksum)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", string(exports.FormatCSV), "csv, jsonl or parquet")
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	cmd.Flags().StringVar(&name, "name", "epochs", "file name without extension")
	cmd.Flags().Uint64Var(&from, "from", 0, "first epoch id")
	return cmd
}

func fetchEpochs(c *cobra.Command, opts *options, from uint64) ([]*pool.Epoch, error) {
	var out []*pool.Epoch
	for {
		var page []rpc.EpochResult
		if err := opts.invoke(c.Context(), "pool_getEpochs", &page, from, pool.MaxEpochPage); err != nil {
			return nil, err
		}
		for _, result := range page {
			epoch, err := result.ToEpoch()
			if err != nil {
				return nil, err
			}
			out = append(out, epoch)
		}
		if len(page) < pool.MaxEpochPage {
			return out, nil
		}
		from = page[len(page)-1].ID + 1
	}
}
