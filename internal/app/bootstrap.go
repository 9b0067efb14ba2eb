package app

import (
	"context"
	"errors"
	"os"

	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/manifest"
	"github.com/dshills/mdsync/internal/session"
	"github.com/dshills/mdsync/internal/watcher"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

// newBootstrapper creates a new bootstrapper for the application.
func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      opts,
		initOrder: make([]string, 0, 5),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initRegistry,
		b.initConfig,
		b.initWatcher,
		b.initMemento,
		b.initController,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

// initRegistry loads the feature table.
func (b *bootstrapper) initRegistry() error {
	b.app.registry = feature.Default()
	if err := b.app.registry.Validate(); err != nil {
		return NewComponentError("features", "validate", err)
	}
	b.initOrder = append(b.initOrder, "registry")
	return nil
}

// initConfig loads settings. A broken user file is reported and the
// defaults stay in effect.
func (b *bootstrapper) initConfig() error {
	userFile := b.opts.ConfigPath
	if userFile == "" {
		userFile = config.DefaultUserFile()
	}

	gen := manifest.New(b.app.registry, manifest.DefaultOptions())
	b.app.config = config.New(gen,
		config.WithUserFile(userFile),
		config.WithLogger(b.app.logger),
	)
	b.initOrder = append(b.initOrder, "config")

	if err := b.app.config.Load(context.Background()); err != nil {
		var perr *config.ParseError
		if !errors.As(err, &perr) {
			return NewComponentError("config", "load", err)
		}
		b.app.logger.Warn("using default settings: %v", err)
	}
	b.app.levelSub = b.app.followLogLevel()
	return nil
}

// initWatcher starts the file watcher. Sessions and settings work without
// one, so failures only disable live reload.
func (b *bootstrapper) initWatcher() error {
	var opts []watcher.Option
	if b.opts.WatchDebounce > 0 {
		opts = append(opts, watcher.WithDebounceDelay(b.opts.WatchDebounce))
	}
	w, err := watcher.NewDebounced(opts...)
	if err != nil {
		b.app.logger.Warn("file watching disabled: %v", err)
		return nil
	}
	b.app.hub = watcher.NewHub(w, func(err error) {
		b.app.logComponentError("watcher", err)
	})
	b.initOrder = append(b.initOrder, "watcher")

	if _, err := os.Stat(b.app.config.UserFile()); err == nil {
		if err := b.app.config.Watch(b.app.hub); err != nil {
			b.app.logger.Warn("settings reload disabled: %v", err)
		}
	}
	return nil
}

// initMemento opens the persisted state. Without a state path, scroll
// offsets last for the life of the process.
func (b *bootstrapper) initMemento() error {
	if b.opts.StatePath == "" {
		b.app.memento = host.NewMemoryMemento()
		return nil
	}
	m, err := host.OpenMemento(b.opts.StatePath)
	if err != nil {
		return NewComponentError("state", "open", err)
	}
	b.app.memento = m
	return nil
}

// initController registers the feature commands and creates the session
// controller.
func (b *bootstrapper) initController() error {
	b.app.commands = host.NewCommands()

	env := host.Environment{ExtensionDir: b.opts.ExtensionDir}
	if b.opts.WorkspacePath != "" {
		env.WorkspaceFolders = []string{b.opts.WorkspacePath}
	}
	deps := session.Deps{
		Registry: b.app.registry,
		Config:   b.app.config,
		Commands: b.app.commands,
		Memento:  b.app.memento,
		Env:      env,
	}
	if b.app.hub != nil {
		deps.Watcher = b.app.hub
	}

	c, err := session.New(deps, session.WithLogger(b.app.logger))
	if err != nil {
		return NewComponentError("controller", "create", err)
	}
	b.app.controller = c
	b.initOrder = append(b.initOrder, "controller")
	return nil
}

// cleanup performs cleanup in reverse initialization order.
// Called when bootstrap fails partway through.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.app.closeComponent(b.initOrder[i])
	}
}

// closeComponent releases a single component.
func (app *Application) closeComponent(component string) error {
	var err error
	switch component {
	case "controller":
		if app.controller != nil {
			err = app.controller.Close()
			app.controller = nil
		}
	case "watcher":
		// The hub owns the watcher.
		if app.hub != nil {
			err = app.hub.Close()
			app.hub = nil
		}
	case "config":
		if app.levelSub != nil {
			app.levelSub.Unsubscribe()
			app.levelSub = nil
		}
		if app.config != nil {
			app.config.Close()
			app.config = nil
		}
	case "registry":
		app.registry = nil
	}
	if err != nil {
		return NewComponentError(component, "close", err)
	}
	return nil
}
