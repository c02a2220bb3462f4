package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
)

var removeCmd = &cobra.Command{
	Use:     "remove author/name [author/name...]",
	Aliases: []string{"uninstall", "rm"},
	Short:   "Remove installed packages and their executables",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := parseRepositories(args)
		if err != nil {
			return err
		}

		return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
			for _, repo := range repos {
				if err := application.Engine.Uninstall(ctx, repo); err != nil {
					return err
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", repo)
			}

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(removeCmd)
}
