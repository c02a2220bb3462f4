package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
	"github.com/oshokin/dyst/internal/domain/packages"
)

var (
	// disallowPrereleases reverts allow-prereleases.
	disallowPrereleases bool

	lockCmd = &cobra.Command{
		Use:   "lock author/name",
		Short: "Exclude a package from updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, args[0], func(ctx context.Context, application *app.App, repo packages.Repository) error {
				return application.Engine.Lock(ctx, repo)
			})
		},
	}

	unlockCmd = &cobra.Command{
		Use:   "unlock author/name",
		Short: "Make a locked package eligible for updates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, args[0], func(ctx context.Context, application *app.App, repo packages.Repository) error {
				return application.Engine.Unlock(ctx, repo)
			})
		},
	}

	allowPrereleasesCmd = &cobra.Command{
		Use:   "allow-prereleases author/name",
		Short: "Let updates of a package pick pre-releases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPackage(cmd, args[0], func(ctx context.Context, application *app.App, repo packages.Repository) error {
				return application.Engine.AllowPrereleases(ctx, repo, !disallowPrereleases)
			})
		},
	}

	renameCmd = &cobra.Command{
		Use:   "rename author/name old/new",
		Short: "Publish an executable of a package under another name",
		Example: `  dyst rename BurntSushi/ripgrep rg/ripgrep
  dyst rename BurntSushi/ripgrep none`,
		Args: cobra.ExactArgs(2), //nolint:mnd // Repository and mapping.
		RunE: func(cmd *cobra.Command, args []string) error {
			var rename *packages.Rename

			if !strings.EqualFold(args[1], "none") {
				parsed, err := packages.ParseRename(args[1])
				if err != nil {
					return err
				}

				rename = parsed
			}

			return withPackage(cmd, args[0], func(ctx context.Context, application *app.App, repo packages.Repository) error {
				names, err := application.Engine.Rename(ctx, repo, rename)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", strings.Join(names, ", "))

				return nil
			})
		},
	}
)

func withPackage(
	cmd *cobra.Command,
	arg string,
	fn func(ctx context.Context, application *app.App, repo packages.Repository) error,
) error {
	repo, err := packages.ParseRepository(arg)
	if err != nil {
		return err
	}

	return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
		return fn(ctx, application, repo)
	})
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	allowPrereleasesCmd.Flags().BoolVar(&disallowPrereleases, "disallow", false, "stop picking pre-releases")

	rootCmd.AddCommand(lockCmd, unlockCmd, allowPrereleasesCmd, renameCmd)
}
