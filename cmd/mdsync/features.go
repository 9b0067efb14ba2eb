package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dshills/mdsync/internal/feature"
)

func newFeaturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Inspect the feature table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [query]",
		Short: "List features by category, or fuzzy-match them by id and title",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := feature.Default()
			if len(args) == 1 {
				return printMatches(cmd.OutOrStdout(), reg, args[0])
			}
			return printGroups(cmd.OutOrStdout(), reg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the feature table for missing fields and duplicates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := feature.Default()
			if err := reg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d features ok\n", reg.Len())
			return nil
		},
	})
	return cmd
}

func printGroups(w io.Writer, reg *feature.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, g := range reg.GroupedByCategory() {
		fmt.Fprintf(tw, "%s\n", g.Category.Meta().Name)
		for _, f := range g.Features {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.ID, f.Title, f.Keybinding)
		}
	}
	return tw.Flush()
}

// featureSource adapts the registry to fuzzy.Source, matching on
// "id title".
type featureSource []feature.Feature

func (s featureSource) String(i int) string { return s[i].ID + " " + s[i].Title }
func (s featureSource) Len() int            { return len(s) }

func printMatches(w io.Writer, reg *feature.Registry, query string) error {
	src := featureSource(reg.Features())
	matches := fuzzy.FindFrom(query, src)
	if len(matches) == 0 {
		fmt.Fprintf(w, "no features match %q\n", query)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range matches {
		f := src[m.Index]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Title, f.Category.Meta().Name)
	}
	return tw.Flush()
}
