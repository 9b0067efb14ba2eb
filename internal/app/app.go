// Package app wires the mdsync components into a running host: settings,
// file watching, persisted state, the session controller, and the HTTP
// endpoint editor surfaces connect to.
package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/session"
	"github.com/dshills/mdsync/internal/watcher"
)

// Application is the central coordinator for all mdsync components.
type Application struct {
	mu sync.RWMutex

	logger   *logging.Logger
	levelSub *config.Subscription
	metrics  *Metrics

	registry   *feature.Registry
	config     *config.Config
	hub        *watcher.Hub
	memento    host.Memento
	commands   *host.Commands
	controller *session.Controller

	// baseCtx outlives individual requests; sessions run on it.
	baseCtx context.Context

	running  atomic.Bool
	shutdown atomic.Bool

	opts Options
}

// Options configures the application.
type Options struct {
	// ConfigPath is the user settings file. Empty uses the default
	// location under the user config directory.
	ConfigPath string

	// WorkspacePath is the workspace root documents and images resolve
	// against.
	WorkspacePath string

	// ExtensionDir holds the editor surface assets.
	ExtensionDir string

	// StatePath persists scroll offsets across runs. Empty keeps them in
	// memory.
	StatePath string

	// Addr is the listen address for Serve.
	Addr string

	// WatchDebounce coalesces bursts of on-disk changes. Zero uses the
	// watcher default.
	WatchDebounce time.Duration

	// AllowAnyOrigin accepts websocket connections from any origin.
	AllowAnyOrigin bool

	// Debug enables debug logging.
	Debug bool

	// LogLevel pins the logging verbosity. Empty follows the
	// logging.level setting.
	LogLevel string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// DefaultAddr is the listen address used when Options.Addr is empty.
const DefaultAddr = "127.0.0.1:7878"

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	app := &Application{
		opts:    opts,
		logger:  newLogger(opts),
		metrics: NewMetrics(),
		baseCtx: context.Background(),
	}

	if err := newBootstrapper(app, opts).bootstrap(); err != nil {
		return nil, err
	}
	app.logger.Debug("bootstrapped with %d features", app.registry.Len())
	return app, nil
}

// Config returns the settings store.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Registry returns the feature registry.
func (app *Application) Registry() *feature.Registry {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.registry
}

// Commands returns the host command registry.
func (app *Application) Commands() *host.Commands {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.commands
}

// Controller returns the session controller.
func (app *Application) Controller() *session.Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.controller
}

// Metrics returns the activity counters.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// Open loads the markdown file at path and binds it to a surface reachable
// through t.
func (app *Application) Open(path string, t channel.Transport) (*session.Session, error) {
	if app.shutdown.Load() {
		return nil, ErrNotRunning
	}
	if path == "" {
		return nil, ErrMissingPath
	}

	timer := StartTimer()
	doc, err := host.OpenFile(path)
	if err != nil {
		app.metrics.RecordResolveFailure()
		return nil, NewOperationError("open", path, err)
	}

	app.mu.RLock()
	ctx := app.baseCtx
	ctrl := app.controller
	app.mu.RUnlock()

	s, err := ctrl.Resolve(ctx, doc, t)
	if err != nil {
		app.metrics.RecordResolveFailure()
		return nil, NewOperationError("open", path, err)
	}
	app.metrics.RecordResolve(timer.Elapsed())

	go func() {
		<-s.Done()
		app.metrics.RecordSessionClosed()
	}()
	return s, nil
}

// Shutdown disposes every session and releases the components. It is
// idempotent.
func (app *Application) Shutdown() error {
	if app.shutdown.Swap(true) {
		return nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	var errs ErrorList
	for _, component := range []string{"controller", "watcher", "config", "registry"} {
		errs.Add(app.closeComponent(component))
	}
	return errs.AsError()
}

// IsShutdown reports whether Shutdown has been called.
func (app *Application) IsShutdown() bool {
	return app.shutdown.Load()
}
