package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
	"github.com/oshokin/dyst/internal/domain/packages"
)

var (
	// installFlags are the preferences of the install command.
	installFlags struct {
		tag         string
		prereleases bool
		filter      string
		rename      string
		lock        bool
		assets      bool
	}

	installCmd = &cobra.Command{
		Use:   "install author/name [author/name...]",
		Short: "Install packages from their GitHub releases",
		Long: `Install the newest stable release of every given repository.

The asset is chosen by matching the operating system and architecture of this
machine against the asset names, unless --filter supplies a regular expression.
The expression is matched against lower-cased asset names.
A failed installation leaves nothing behind.`,
		Example: `  dyst install sharkdp/bat
  dyst install -t v14.1.0 BurntSushi/ripgrep
  dyst install -f 'musl.*tar.gz' -r rg/ripgrep BurntSushi/ripgrep
  dyst install -a -p neovim/neovim`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := parseRepositories(args)
			if err != nil {
				return err
			}

			prefs, err := installPreferences()
			if err != nil {
				return err
			}

			return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
				for _, repo := range repos {
					if installFlags.assets {
						if err := printAssets(ctx, cmd, application, repo, prefs); err != nil {
							return err
						}

						continue
					}

					record, err := application.Engine.Install(ctx, repo, prefs)
					if err != nil {
						return err
					}

					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s\n", repo, record.Tag)
				}

				return nil
			})
		},
	}
)

// printAssets lists the assets of the release that would be installed.
func printAssets(
	ctx context.Context,
	cmd *cobra.Command,
	application *app.App,
	repo packages.Repository,
	prefs *packages.Preferences,
) error {
	release, err := application.Engine.FetchRelease(ctx, repo, prefs)
	if err != nil {
		return err
	}

	for _, name := range release.AssetNames() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
	}

	return nil
}

func installPreferences() (*packages.Preferences, error) {
	prefs := &packages.Preferences{
		Tag:              installFlags.tag,
		AllowPrereleases: installFlags.prereleases,
		Lock:             installFlags.lock,
	}

	if installFlags.filter != "" {
		filter, err := regexp.Compile(installFlags.filter)
		if err != nil {
			return nil, fmt.Errorf("invalid asset filter: %w", err)
		}

		prefs.AssetFilter = filter
	}

	if installFlags.rename != "" {
		rename, err := packages.ParseRename(installFlags.rename)
		if err != nil {
			return nil, err
		}

		prefs.Rename = rename
	}

	return prefs, nil
}

func parseRepositories(args []string) ([]packages.Repository, error) {
	repos := make([]packages.Repository, 0, len(args))

	for _, arg := range args {
		repo, err := packages.ParseRepository(arg)
		if err != nil {
			return nil, err
		}

		repos = append(repos, repo)
	}

	return repos, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := installCmd.Flags()
	flags.StringVarP(&installFlags.tag, "tag", "t", "", "install this exact release tag")
	flags.BoolVarP(&installFlags.prereleases, "prereleases", "p", false, "allow pre-releases")
	flags.StringVarP(&installFlags.filter, "filter", "f", "", "regular expression selecting the release asset")
	flags.StringVarP(&installFlags.rename, "rename", "r", "", "publish executable old as new, given as old/new")
	flags.BoolVarP(&installFlags.lock, "lock", "l", false, "exclude the package from updates")
	flags.BoolVarP(&installFlags.assets, "assets", "a", false, "list the assets of the selected release instead of installing")

	rootCmd.AddCommand(installCmd)
}
