package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"nhbstake/observability/logging"
	"nhbstake/services/staked/replay"
)

func newReplayCmd() *cobra.Command {
	var (
		genesisPath string
		dataDir     string
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Apply a scripted operation sequence and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := logging.Setup("stakectl", "dev", logging.Options{Level: level, Output: cmd.ErrOrStderr()})

			script, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			b, err := openEngine(dataDir, 0, genesisPath, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			start := time.Now()
			if script.Start != 0 {
				start = time.Unix(script.Start, 0)
			}
			runner := replay.NewRunner(b.engine, start, logger)
			report, runErr := runner.Run(cmd.Context(), script)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&genesisPath, "genesis", "", "Path to the stake genesis TOML")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Replay against a LevelDB store instead of memory")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every step")
	return cmd
}
