package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
)

var selfUpdateCmd = &cobra.Command{
	Use:   "self-update",
	Short: "Replace dyst with its newest release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
			result, err := application.SelfUpdate(ctx)
			if err != nil {
				return err
			}

			if !result.Updated {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dyst %s is up to date\n", result.From)
				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated dyst from %s to %s\n", result.From, result.To)

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(selfUpdateCmd)
}
