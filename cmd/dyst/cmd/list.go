package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oshokin/dyst/internal/app"
	"github.com/oshokin/dyst/internal/domain/packages"
)

var (
	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
				installed, err := application.Engine.ListInstalled(ctx)
				if err != nil {
					return err
				}

				return printPackages(cmd, installed)
			})
		},
	}

	listExecsCmd = &cobra.Command{
		Use:   "list-execs author/name",
		Short: "List the executables a package published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := packages.ParseRepository(args[0])
			if err != nil {
				return err
			}

			return runWithApp(cmd, func(ctx context.Context, application *app.App) error {
				names, err := application.Engine.ListExecutables(ctx, repo)
				if err != nil {
					return err
				}

				for _, name := range names {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
				}

				return nil
			})
		},
	}
)

func printPackages(cmd *cobra.Command, installed []*packages.InstalledPackage) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "REPOSITORY\tTAG\tFLAGS\tFILTER\tRENAME")

	for _, p := range installed {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Repository, p.Tag, packageFlags(p), p.FilterText(), p.Rename.String())
	}

	return w.Flush()
}

func packageFlags(p *packages.InstalledPackage) string {
	var flags []string

	if p.Locked {
		flags = append(flags, "locked")
	}

	if p.AllowPrereleases {
		flags = append(flags, "prereleases")
	}

	if len(flags) == 0 {
		return "-"
	}

	return strings.Join(flags, ",")
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(listCmd, listExecsCmd)
}
