package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/solarwatch/solarwatch/pkg/store"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database tables",
	Long:  `Setup creates the power, energy, and cursor tables if they do not exist. It is safe to re-run.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
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

	if err := st.Setup(ctx); err != nil {
		return err
	}

	logger.Info("Database setup complete")

	return nil
}
