package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/solarwatch/solarwatch/pkg/backfill"
	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/observability"
	"github.com/solarwatch/solarwatch/pkg/runlock"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	backfillMetric string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Walk plant history backwards and ingest it week by week",
	Long: `Backfill walks the plant's history backwards in week-sized windows,
fetching either power samples or daily energy totals, and stops when it
reaches days with no production data. The position is checkpointed after
every persisted window, so an interrupted run resumes where it left off.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringVar(&backfillMetric, "metric", "", "ingestion stream to backfill (power or energy)")

	if err := backfillCmd.MarkFlagRequired("metric"); err != nil {
		panic(err)
	}
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	metric := store.Metric(backfillMetric)
	if !metric.Valid() {
		return fmt.Errorf("invalid metric %q: must be %q or %q", backfillMetric, store.MetricPower, store.MetricEnergy)
	}

	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return err
	}

	log := logger.WithField("metric", metric)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.StartMetricsServer(config.MetricsAddr)

	client, err := growatt.NewClient(log, &config.Growatt)
	if err != nil {
		return err
	}

	if err := client.Start(); err != nil {
		return err
	}
	defer func() {
		if err := client.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop API client")
		}
	}()

	st, err := store.New(log, &config.Store)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	// Guard the cursor stream against a second concurrent backfill when
	// Redis is configured.
	if config.Redis.URL != "" {
		redisOpt, parseErr := redis.ParseURL(config.Redis.URL)
		if parseErr != nil {
			return fmt.Errorf("invalid redis URL: %w", parseErr)
		}

		lck := runlock.New(log, redisOpt, config.Backfill.PlantID, string(metric))
		if err := lck.Acquire(ctx); err != nil {
			return err
		}
		defer lck.Release(context.Background())
	}

	svc, err := backfill.NewService(log, &config.Backfill, client, st)
	if err != nil {
		return err
	}

	return svc.Run(ctx, metric)
}
