// Package main is the entry point for the mdsync host.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/mdsync/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var g globalOptions

	root := &cobra.Command{
		Use:   "mdsync",
		Short: "Markdown editing host for webview editor surfaces",
		Long: `mdsync keeps markdown documents in sync with browser-based editor
surfaces, and generates the editor contribution manifest from the
feature table.`,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to settings file (default: user config dir)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); empty follows settings")
	pf.BoolVarP(&g.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(
		newGenerateCommand(),
		newFeaturesCommand(),
		newConfigCommand(&g),
		newServeCommand(&g),
	)
	return root
}

// appOptions maps the persistent flags onto application options.
func (g *globalOptions) appOptions() app.Options {
	return app.Options{
		ConfigPath: g.configPath,
		LogLevel:   g.logLevel,
		Debug:      g.debug,
	}
}
