package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/manifest"
)

// errStaleManifest is returned by generate --check when the manifest
// needs regenerating.
var errStaleManifest = errors.New("manifest is out of date")

func newGenerateCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "generate [package.json]",
		Short: "Regenerate the contribution sections of the package manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "package.json"
			if len(args) == 1 {
				path = args[0]
			}

			reg := feature.Default()
			if err := reg.Validate(); err != nil {
				return err
			}
			gen := manifest.New(reg, manifest.DefaultOptions())

			out := cmd.OutOrStdout()
			if check {
				ok, err := gen.Check(path)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: %w", path, errStaleManifest)
				}
				fmt.Fprintf(out, "%s is up to date\n", path)
				return nil
			}

			sum, err := gen.UpdatePackageManifest(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "updated %s: %d commands, %d keybindings, %d title menus, %d context menus, %d settings, %d defaults\n",
				path, sum.Commands, sum.Keybindings, sum.TitleMenus, sum.ContextMenus, sum.Properties, sum.Defaults)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Report whether the manifest is up to date without writing")
	return cmd
}
