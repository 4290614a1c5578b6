package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/systmms/gcpkit/cmd/gcpkit/commands"
	"github.com/systmms/gcpkit/internal/config"
	gkerrors "github.com/systmms/gcpkit/internal/errors"
	"github.com/systmms/gcpkit/internal/logging"
	"github.com/systmms/gcpkit/internal/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	memguard.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", gkerrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}
	app := commands.NewApp(cfg)
	metrics.InitMetrics()

	rootCmd := &cobra.Command{
		Use:   "gcpkit",
		Short: "Google Cloud Secret Manager and Drive helper",
		Long: `gcpkit reads, publishes and rotates Secret Manager versions and moves
files around Google Drive, using Application Default Credentials.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Shutdown()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().StringVar(&app.Project, "project", "", "Google Cloud project id (overrides config and environment)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewSecretsCommand(app),
		commands.NewDriveCommand(app),
		commands.NewMetadataCommand(app),
		commands.NewCompletionCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer app.Shutdown()

	return rootCmd.ExecuteContext(ctx)
}
