package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
)

var searchCmd = &cobra.Command{
	Use:   "search query...",
	Short: "Search GitHub repositories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
			results, err := application.GitHub.Search(ctx, query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, repo := range results {
				_, _ = fmt.Fprintf(out, "%s (%d stars)\n", repo.FullName, repo.Stars)

				if repo.Description != "" {
					_, _ = fmt.Fprintf(out, "    %s\n", repo.Description)
				}
			}

			return nil
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(searchCmd)
}
