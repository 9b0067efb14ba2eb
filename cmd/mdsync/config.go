package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/manifest"
)

// errUnknownSetting is returned by config get for a path with no value.
var errUnknownSetting = errors.New("unknown setting")

func newConfigCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show effective settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the effective value of a setting and where it came from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), g)
			if err != nil {
				return err
			}
			v, ok := cfg.Get(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errUnknownSetting)
			}
			src, _ := cfg.SourceOf(args[0])
			return printSetting(cmd.OutOrStdout(), args[0], v, src)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every effective setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Context(), g)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, key := range cfg.Keys() {
				v, _ := cfg.Get(key)
				src, _ := cfg.SourceOf(key)
				if err := printSetting(tw, key, v, src); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	})
	return cmd
}

func loadConfig(ctx context.Context, g *globalOptions) (*config.Config, error) {
	userFile := g.configPath
	if userFile == "" {
		userFile = config.DefaultUserFile()
	}
	gen := manifest.New(feature.Default(), manifest.DefaultOptions())
	cfg := config.New(gen,
		config.WithUserFile(userFile),
		config.WithLogger(logging.Null()),
	)
	if err := cfg.Load(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printSetting(w io.Writer, key string, v any, src config.Source) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\t%s\t(%s)\n", key, data, src)
	return err
}
