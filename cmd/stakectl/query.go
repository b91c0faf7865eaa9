package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"nhbstake/observability/logging"
	"nhbstake/services/staked/ops"
)

func newQueryCmd() *cobra.Command {
	var (
		dataDir string
		args    ops.QueryArgs
	)
	cmd := &cobra.Command{
		Use:       "query <name>",
		Short:     "Read engine state from a data directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: ops.Queries(),
		RunE: func(cmd *cobra.Command, positional []string) error {
			name := positional[0]
			if !ops.KnownQuery(name) {
				return fmt.Errorf("unknown query %q", name)
			}
			logger := logging.Setup("stakectl", "dev", logging.Options{Level: slog.LevelWarn, Output: cmd.ErrOrStderr()})
			b, err := openEngine(dataDir, 0, "", logger)
			if err != nil {
				return err
			}
			defer b.Close()
			b.engine.SetNowFunc(func() int64 { return time.Now().Unix() })

			view, err := ops.Query(b.engine, name, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data/staked", "LevelDB data directory")
	cmd.Flags().StringVar(&args.Address, "address", "", "Bech32 address argument")
	cmd.Flags().Uint64Var(&args.Period, "period", 0, "Unbonding period argument")
	cmd.Flags().StringVar(&args.Asset, "asset", "", "Reward asset argument")
	return cmd
}
