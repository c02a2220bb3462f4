package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/config"
)

// errConfigExists is returned by config init when the file is already there.
var errConfigExists = errors.New("configuration file already exists")

var (
	// overwriteConfig lets config init replace an existing file.
	overwriteConfig bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Long: `Write the default settings to the configuration file selected with --config.

Environment overrides (DYST_PACKAGE_STORE, DYST_BINARIES_PATH, GITHUB_TOKEN)
are not written to the file; they keep applying on every run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.OutOrStdout(), configPath, overwriteConfig)
		},
	}
)

// initConfig saves the default configuration to path.
func initConfig(w io.Writer, path string, overwrite bool) error {
	if !overwrite {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%w: %s, pass --force to overwrite it", errConfigExists, path)
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("inspect configuration file: %w", err)
		}
	}

	if err := config.Save(path, config.Default()); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Wrote configuration to %s\n", path)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	configInitCmd.Flags().BoolVarP(&overwriteConfig, "force", "f", false, "overwrite an existing configuration file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
