package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
	"github.com/oshokin/dyst/internal/config"
	"github.com/oshokin/dyst/internal/logger"
	"github.com/oshokin/dyst/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string
	// quiet disables download progress bars.
	quiet bool

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "dyst",
		Short: "Install and update executables from GitHub releases",
		Long: `dyst installs command-line tools straight from GitHub releases.

It picks the release asset matching this machine, unpacks it into the package
store and links every executable it finds into the binaries directory.
Installed packages can be updated, locked, renamed and removed.`,
		SilenceUsage: true,
	}
)

// Execute runs the dyst CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// runWithApp opens the application for one command and closes it afterwards.
// Interrupts cancel the context so installations roll back cleanly.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, application *app.App) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	options := &app.Options{
		ConfigPath: configPath,
		LogLevel:   logLevel,
	}

	if !quiet {
		options.Progress = cmd.ErrOrStderr()
	}

	application, err := app.Open(ctx, options)
	if err != nil {
		return err
	}

	defer func() {
		_ = application.Close()
	}()

	return fn(ctx, application)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not draw download progress")
}
