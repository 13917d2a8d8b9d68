package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/solarwatch/solarwatch/pkg/growatt"
	"github.com/solarwatch/solarwatch/pkg/observability"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/solarwatch/solarwatch/pkg/syncday"
	"github.com/solarwatch/solarwatch/pkg/timewindow"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	syncDate     string
	syncSchedule string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var syncDayCmd = &cobra.Command{
	Use:   "sync-day",
	Short: "Pull and reconcile a single day's production data",
	Long: `Sync-day fetches one day's power samples and reported energy total,
cross-checks the integrated power against the reported figure, and
persists both. With --schedule it keeps running and repeats the sync on
the given cron expression, always targeting the current local day.`,
	RunE: runSyncDay,
}

func init() {
	rootCmd.AddCommand(syncDayCmd)
	syncDayCmd.Flags().StringVar(&syncDate, "date", "", "day to sync as YYYY-MM-DD (default: today in the plant's timezone)")
	syncDayCmd.Flags().StringVar(&syncSchedule, "schedule", "", "cron expression; when set, re-syncs the current day on this schedule")
}

func runSyncDay(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.StartMetricsServer(config.MetricsAddr)

	client, err := growatt.NewClient(logger, &config.Growatt)
	if err != nil {
		return err
	}

	if err := client.Start(); err != nil {
		return err
	}
	defer func() {
		if err := client.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop API client")
		}
	}()

	st, err := store.New(logger, &config.Store)
	if err != nil {
		return err
	}

	if err := st.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := st.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop store")
		}
	}()

	svc, err := syncday.NewService(logger, &config.Sync, client, st)
	if err != nil {
		return err
	}

	if syncSchedule != "" {
		return runScheduled(ctx, svc)
	}

	day, err := resolveSyncDate(svc, time.Now())
	if err != nil {
		return err
	}

	return svc.Run(ctx, day)
}

// resolveSyncDate picks the target day: the --date flag when given,
// otherwise the current day in the plant's zone.
func resolveSyncDate(svc *syncday.Service, now time.Time) (timewindow.Day, error) {
	if syncDate == "" {
		return timewindow.DayOf(now, svc.Zone()), nil
	}

	day, err := timewindow.ParseDay(syncDate)
	if err != nil {
		return timewindow.Day{}, fmt.Errorf("invalid --date: %w", err)
	}

	return day, nil
}

// runScheduled re-runs the sync for the current local day on a cron
// schedule until interrupted. Store failures on one tick are logged and
// do not stop the schedule.
func runScheduled(ctx context.Context, svc *syncday.Service) error {
	c := cron.New(cron.WithLocation(svc.Zone()))

	_, err := c.AddFunc(syncSchedule, func() {
		day := timewindow.DayOf(time.Now(), svc.Zone())
		if err := svc.Run(ctx, day); err != nil {
			logger.WithError(err).WithField("date", day.String()).Error("Scheduled sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid --schedule: %w", err)
	}

	logger.WithField("schedule", syncSchedule).Info("Starting scheduled sync")
	c.Start()

	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	return nil
}
