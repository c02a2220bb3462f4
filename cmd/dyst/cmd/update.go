package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
	"github.com/oshokin/dyst/internal/service/engine"
)

var updateCmd = &cobra.Command{
	Use:     "update [author/name...]",
	Aliases: []string{"upgrade"},
	Short:   "Update installed packages to their newest releases",
	Long: `Reinstall every package whose newest eligible release differs from the
installed one. Locked packages are skipped. Repositories given as arguments
restrict the update to those packages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repos, err := parseRepositories(args)
		if err != nil {
			return err
		}

		return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
			report, err := application.Engine.Update(ctx, repos)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}

			return err
		})
	},
}

func printReport(w io.Writer, report *engine.UpdateReport) {
	for _, result := range report.Results {
		switch result.Outcome {
		case engine.OutcomeUpdated:
			_, _ = fmt.Fprintf(w, "Updated '%s' from '%s' to '%s'\n", result.Repository, result.From, result.To)
		case engine.OutcomeUpToDate:
			_, _ = fmt.Fprintf(w, "'%s' is up to date\n", result.Repository)
		case engine.OutcomeSkippedLocked:
			_, _ = fmt.Fprintf(w, "'%s' is locked and was not updated\n", result.Repository)
		case engine.OutcomeFailed:
			_, _ = fmt.Fprintf(w, "'%s' failed to update: %v\n", result.Repository, result.Err)
		}
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(updateCmd)
}
