// Package session implements the host side of the synchronization
// protocol.
//
// A Controller owns every open editor session. Each Session binds one host
// document to one editor surface through a channel.Channel and keeps a
// snapshot of the last content both sides agreed on; comparisons against
// the snapshot break the echo loop between host edits and surface edits.
//
// Lifecycle:
//
//	Resolving ──init──▶ Open ──▶ Active ◀──▶ Background
//	    │                 │         │            │
//	    └─────────────────┴─────────┴────────────┴──dispose──▶ Disposed
//
// At most one session is Active. It is the target of feature commands,
// tracked by an explicit Dispatcher rather than a global.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/mdsync/internal/asset"
	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/debounce"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/render"
	"github.com/dshills/mdsync/internal/statusbar"
)

// Errors returned by the controller.
var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrClosed            = errors.New("controller closed")
)

// Options holds the protocol timings.
type Options struct {
	// EchoWindow suppresses surface saves and host updates this long
	// after an explicit save.
	EchoWindow time.Duration
	// ScrollDebounce delays persisting the scroll offset.
	ScrollDebounce time.Duration
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		EchoWindow:     800 * time.Millisecond,
		ScrollDebounce: 150 * time.Millisecond,
	}
}

// Deps are the collaborators a controller works with. Registry, Config,
// Commands and Memento are required.
type Deps struct {
	Registry *feature.Registry
	Config   *config.Config
	Commands *host.Commands
	Memento  host.Memento

	Notifier  host.Notifier
	Opener    host.Opener
	Clipboard host.Clipboard
	// Watcher delivers on-disk changes of document files.
	Watcher channel.FileWatcher
	// ClipboardImage dumps clipboard images for pasteClipboardImage.
	ClipboardImage asset.Helper
	Env            host.Environment
}

// Option configures a Controller.
type Option func(*Controller)

// WithOptions sets the timings.
func WithOptions(o Options) Option {
	return func(c *Controller) {
		c.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller manages the sessions of one host.
type Controller struct {
	deps   Deps
	opts   Options
	logger *logging.Logger
	now    func() time.Time

	dispatcher *Dispatcher
	status     *statusbar.Model
	scroll     *debounce.Debouncer
	sub        *config.Subscription

	mu         sync.Mutex
	sessions   map[string]*Session
	unregister []func()
	closed     bool
}

// New creates a controller and registers the feature commands.
func New(deps Deps, opts ...Option) (*Controller, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Config == nil:
		return nil, fmt.Errorf("%w: config", ErrMissingDependency)
	case deps.Commands == nil:
		return nil, fmt.Errorf("%w: commands", ErrMissingDependency)
	case deps.Memento == nil:
		return nil, fmt.Errorf("%w: memento", ErrMissingDependency)
	}

	c := &Controller{
		deps:       deps,
		opts:       DefaultOptions(),
		logger:     logging.Null(),
		now:        time.Now,
		dispatcher: NewDispatcher(),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.deps.Notifier == nil {
		c.deps.Notifier = host.LogNotifier{Logger: c.logger}
	}
	if c.deps.Opener == nil {
		c.deps.Opener = host.SystemOpener{}
	}
	if c.deps.Clipboard == nil {
		c.deps.Clipboard = host.SystemClipboard{}
	}
	if c.deps.ClipboardImage == nil {
		c.deps.ClipboardImage = &asset.ScriptHelper{}
	}

	c.status = statusbar.New(deps.Registry, deps.Config)
	c.scroll = debounce.New(c.opts.ScrollDebounce)
	if err := c.registerCommands(); err != nil {
		c.unregisterCommands()
		return nil, err
	}
	c.sub = deps.Config.Subscribe("", c.configChanged)
	return c, nil
}

// Dispatcher returns the command target tracker.
func (c *Controller) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// StatusBar returns the status-bar model.
func (c *Controller) StatusBar() *statusbar.Model {
	return c.status
}

// Sessions returns the live sessions.
func (c *Controller) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// Session returns the session with id.
func (c *Controller) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Resolve binds doc to a surface reachable through t and starts the
// session. The session stays Resolving until the surface sends init.
func (c *Controller) Resolve(ctx context.Context, doc host.Document, t channel.Transport) (*Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	id := uuid.NewString()
	logger := c.logger.WithComponent("session").WithField("session", id[:8])
	s := &Session{
		id:       id,
		c:        c,
		doc:      doc,
		logger:   logger,
		roots:    c.resourceRoots(doc),
		state:    StateResolving,
		snapshot: normalizeNewlines(doc.Text()),
	}
	s.ch = channel.New(t,
		channel.WithLogger(logger),
		channel.WithErrorHandler(s.fail),
	)
	s.register()

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	err := s.ch.Bind(ctx, channel.BindOptions{
		Path:     doc.Path(),
		Watcher:  c.deps.Watcher,
		Document: doc,
	})
	if err != nil {
		c.remove(s)
		return nil, fmt.Errorf("bind %s: %w", doc.URI(), err)
	}
	logger.Debug("resolved %s", doc.URI())
	return s, nil
}

// resourceRoots lists the directories the surface may load files from.
func (c *Controller) resourceRoots(doc host.Document) []string {
	var roots []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		roots = append(roots, dir)
	}
	if p := doc.Path(); p != "" {
		add(filepath.Dir(p))
	}
	for _, f := range c.deps.Env.WorkspaceFolders {
		add(f)
	}
	add(c.deps.Env.ExtensionDir)
	return roots
}

// workspaceFolder returns the workspace root containing path, or the first
// root when none does.
func (c *Controller) workspaceFolder(path string) string {
	for _, f := range c.deps.Env.WorkspaceFolders {
		if rel, err := filepath.Rel(f, path); err == nil && !strings.HasPrefix(rel, "..") {
			return f
		}
	}
	if len(c.deps.Env.WorkspaceFolders) > 0 {
		return c.deps.Env.WorkspaceFolders[0]
	}
	return ""
}

// imageStore returns an asset store configured from the current settings.
func (c *Controller) imageStore(docPath string) *asset.Store {
	opts := []asset.Option{
		asset.WithTemplate(c.deps.Config.ImagePathTemplate()),
		asset.WithClock(c.now),
		asset.WithLogger(c.logger),
	}
	if c.deps.Config.WorkspaceImageBase() {
		opts = append(opts, asset.WithWorkspaceBase(c.workspaceFolder(docPath)))
	}
	return asset.NewStore(opts...)
}

// resourceURL maps a local directory to the URL the surface loads it from.
func resourceURL(dir string) string {
	if dir == "" {
		return ""
	}
	return render.DefaultResourcePrefix + strings.TrimPrefix(filepath.ToSlash(dir), "/")
}

// surfaceConfig is the settings snapshot sent to the surface.
func (c *Controller) surfaceConfig() map[string]any {
	cfg := c.deps.Config
	m := cfg.Section(cfg.Namespace())
	if m == nil {
		m = make(map[string]any)
	}
	m["platform"] = runtime.GOOS
	m["scrollBeyondLastLine"] = cfg.ScrollBeyondLastLine()
	m["contextMenuGroups"] = ContextMenuGroups(c.deps.Registry, cfg)
	return m
}

func (c *Controller) activate(s *Session) {
	if prev := c.dispatcher.activate(s); prev != nil {
		prev.setState(StateBackground)
	}
	s.setState(StateActive)
	c.status.UpdateCount(s.Snapshot())
	c.status.Show()
}

func (c *Controller) background(s *Session) {
	s.setState(StateBackground)
	if c.dispatcher.clear(s) {
		c.status.Hide()
	}
}

func (c *Controller) remove(s *Session) {
	if c.dispatcher.clear(s) {
		c.status.Hide()
	}
	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
}

// configChanged pushes settings changes to every open surface.
func (c *Controller) configChanged(change config.Change) {
	cfg := c.deps.Config
	c.status.Refresh()

	var payloads []channel.Payload
	if change.Affects(cfg.Namespace()) || change.Affects(config.KeyScrollBeyondLastLine) {
		c.syncPalette()
		payloads = append(payloads, channel.Config{Settings: c.surfaceConfig()})
	}
	if change.Affects(config.KeyTheme) {
		payloads = append(payloads, channel.Theme{Kind: cfg.Theme()})
	}
	if change.Affects(config.KeyScrollBeyondLastLine) {
		payloads = append(payloads, channel.ScrollBeyond{Enabled: cfg.ScrollBeyondLastLine()})
	}
	if len(payloads) == 0 {
		return
	}
	for _, s := range c.Sessions() {
		if !s.State().Live() {
			continue
		}
		for _, p := range payloads {
			s.emit(p)
		}
	}
}

// Close disposes every session and unregisters the feature commands.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.scroll.Flush()
	c.scroll.Stop()
	c.unregisterCommands()
	return errors.Join(errs...)
}
