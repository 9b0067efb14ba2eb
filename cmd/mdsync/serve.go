package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/mdsync/internal/app"
)

func newServeCommand(g *globalOptions) *cobra.Command {
	var (
		addr           string
		workspace      string
		extensionDir   string
		statePath      string
		allowAnyOrigin bool
		watchDebounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve editor surfaces over websocket until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := g.appOptions()
			opts.Addr = addr
			opts.WorkspacePath = workspace
			opts.ExtensionDir = extensionDir
			opts.StatePath = statePath
			opts.AllowAnyOrigin = allowAnyOrigin
			opts.WatchDebounce = watchDebounce
			opts.LogOutput = cmd.ErrOrStderr()

			application, err := app.New(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return application.Serve(ctx)
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", app.DefaultAddr, "Listen address")
	f.StringVarP(&workspace, "workspace", "w", "", "Workspace directory")
	f.StringVar(&extensionDir, "extension-dir", "", "Directory holding the editor surface assets")
	f.StringVar(&statePath, "state", "", "File persisting scroll positions (default: in memory)")
	f.BoolVar(&allowAnyOrigin, "allow-any-origin", false, "Accept websocket connections from any origin")
	f.DurationVar(&watchDebounce, "watch-debounce", 100*time.Millisecond, "Coalescing window for on-disk changes")
	return cmd
}
