package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/solarwatch/solarwatch/pkg/api"
	"github.com/solarwatch/solarwatch/pkg/observability"
	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API over ingested data",
	Long:  `Serve exposes the persisted power samples and daily energy totals over HTTP for dashboards and ad-hoc queries.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if err := config.Store.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.StartMetricsServer(config.MetricsAddr)

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

	// The serve command implies the API even when the config leaves it off.
	config.API.Enabled = true

	svc := api.NewService(&config.API, st, logger)
	if err := svc.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	return svc.Stop()
}
