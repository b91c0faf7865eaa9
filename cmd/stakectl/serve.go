package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"nhbstake/native/common"
	"nhbstake/observability/logging"
	stakedcfg "nhbstake/services/staked/config"
	"nhbstake/services/staked/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath  string
		genesisPath string
		listen      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stake engine over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := stakedcfg.Default()
			if configPath != "" {
				loaded, err := stakedcfg.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if genesisPath != "" {
				cfg.Genesis = genesisPath
			}
			if listen != "" {
				cfg.ListenAddress = listen
			}

			logger := logging.Setup("staked", cfg.Log.Env, logging.Options{
				Level:      cfg.Log.SlogLevel(),
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
			})

			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))

			b, err := openEngine(cfg.DataDir, cfg.CacheSize, cfg.Genesis, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			var quota common.Quota
			if b.genesis != nil {
				quota = b.genesis.RateQuota()
			}
			clock := clockwork.NewRealClock()
			b.engine.SetNowFunc(func() int64 { return clock.Now().Unix() })

			srv, err := server.New(b.engine, server.Config{
				RateLimit: server.RateLimit{
					RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
					Burst:             cfg.RateLimit.Burst,
				},
				Quota:  quota,
				Clock:  clock,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg.ListenAddress, cfg.ShutdownTimeout.Duration)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to the staked YAML config")
	cmd.Flags().StringVar(&genesisPath, "genesis", "", "Path to the stake genesis TOML")
	cmd.Flags().StringVar(&listen, "listen", "", "Override the listen address")
	return cmd
}
