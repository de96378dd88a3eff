package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"factod/internal/aggregator"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		nginxConfig string
		output      string
		interval    time.Duration
		statsPort   int
		logLevel    string
	)
	root := &cobra.Command{
		Use:           "statsagg",
		Short:         "Aggregate stats from a fleet of factod backends",
		Long:          "Reads backend addresses from nginx upstream blocks, polls each backend's /stats endpoint and writes a merged fleet document on a fixed interval.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				lvl = zerolog.InfoLevel
			}
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := aggregator.NewRunner(aggregator.Config{
				NginxConfig: nginxConfig,
				Output:      output,
				Interval:    interval,
				StatsPort:   statsPort,
			}, logger)
			logger.Info().Str("nginx_config", nginxConfig).Str("output", output).
				Dur("interval", interval).Msg("statsagg starting")
			if err := r.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	root.Flags().StringVar(&nginxConfig, "nginx-config", "/etc/nginx/sites-available/facto.conf", "nginx config with upstream blocks naming the backends")
	root.Flags().StringVar(&output, "output", "./aggregated_stats.yaml", "aggregated stats output file")
	root.Flags().DurationVar(&interval, "interval", 10*time.Second, "update interval")
	root.Flags().IntVar(&statsPort, "stats-port", 0, "override port for backend /stats queries (0 uses the upstream port)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	return root
}
