package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/manifest"
	"github.com/dshills/mdsync/internal/watcher"
)

// DefaultEnvPrefix prefixes environment overrides.
const DefaultEnvPrefix = "MDSYNC_"

// FileSubscriber delivers change events for one file path.
// *watcher.Hub satisfies it.
type FileSubscriber interface {
	Subscribe(path string, fn watcher.Handler) (cancel func(), err error)
}

// Config provides layered access to the editor settings: generated
// defaults, the user's TOML settings file, environment overrides and
// in-process session values, highest priority last.
type Config struct {
	gen       *manifest.Generator
	schema    *manifest.Object[manifest.Property]
	logger    *logging.Logger
	userPath  string
	envPrefix string
	environ   func() []string

	mu       sync.RWMutex
	layers   [4]*layer
	merged   map[string]any
	defaults map[string]any // flattened
	unwatch  func()
	closed   bool

	notifier *notifier
}

// Option configures a Config instance.
type Option func(*Config)

// WithUserFile sets the TOML settings file. Empty disables it.
func WithUserFile(path string) Option {
	return func(c *Config) {
		c.userPath = path
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithEnviron replaces os.Environ as the source of environment variables.
func WithEnviron(fn func() []string) Option {
	return func(c *Config) {
		c.environ = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) {
		c.logger = l
	}
}

// DefaultUserFile returns the per-user settings file location.
func DefaultUserFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mdsync", "settings.toml")
}

// New creates a configuration whose defaults come from gen. Only the
// defaults are available until Load is called.
func New(gen *manifest.Generator, opts ...Option) *Config {
	c := &Config{
		gen:       gen,
		schema:    gen.ConfigurationSchema(),
		envPrefix: DefaultEnvPrefix,
		environ:   os.Environ,
		notifier:  newNotifier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Null()
	}
	c.logger = c.logger.WithComponent("config")

	defaults := builtinDefaults(gen.Options().Namespace)
	generated := gen.ConfigurationDefaults()
	for _, key := range generated.Keys() {
		v, _ := generated.Get(key)
		setByPath(defaults, key, normalize(v))
	}

	c.layers[SourceDefaults] = &layer{source: SourceDefaults, data: defaults}
	c.layers[SourceUser] = &layer{source: SourceUser, path: c.userPath, data: map[string]any{}}
	c.layers[SourceEnv] = &layer{source: SourceEnv, data: map[string]any{}}
	c.layers[SourceSession] = &layer{source: SourceSession, data: map[string]any{}}
	c.defaults = flatten(defaults)
	c.merged = mergeLayers(c.layers[:])
	return c
}

// Namespace returns the extension's setting section, e.g. "vsc-markdown".
func (c *Config) Namespace() string {
	return c.gen.Options().Namespace
}

// Generator returns the manifest generator the defaults come from.
func (c *Config) Generator() *manifest.Generator {
	return c.gen
}

// Key qualifies a namespace-relative setting path.
func (c *Config) Key(rel string) string {
	return c.gen.Key(rel)
}

// UserFile returns the settings file path.
func (c *Config) UserFile() string {
	return c.userPath
}

// Load reads the user settings file and the environment. It is the same
// as Reload and may be called again at any time.
func (c *Config) Load(ctx context.Context) error {
	return c.Reload(ctx)
}

// Reload re-reads the user settings file and the environment and notifies
// observers of every effective change. Values the schema rejects are
// dropped with a warning so the defaults stay in effect.
func (c *Config) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	user, err := loadTOML(c.userPath)
	if err != nil {
		return err
	}
	if user == nil {
		user = map[string]any{}
	}
	c.sanitize(user, SourceUser)

	env, unknown := newEnvLoader(c.envPrefix, c.Namespace()).load(c.environ(), c.defaults)
	for _, name := range unknown {
		c.logger.Debug("ignoring unknown environment setting %s", name)
	}
	c.sanitize(env, SourceEnv)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.layers[SourceUser].data = user
	c.layers[SourceEnv].data = env
	change := c.rebuild(SourceUser)
	c.mu.Unlock()

	if len(change.Paths) > 0 {
		c.logger.Debug("reloaded settings, %d changed", len(change.Paths))
	}
	c.notifier.notify(change)
	return nil
}

func (c *Config) sanitize(data map[string]any, src Source) {
	for path, v := range flatten(data) {
		if err := c.Validate(path, v); err != nil {
			c.logger.Warn("dropping %s setting: %v", src, err)
			deleteByPath(data, path)
		}
	}
}

// rebuild recomputes the merged view. Must be called with c.mu held.
func (c *Config) rebuild(src Source) Change {
	merged := mergeLayers(c.layers[:])
	change := Change{Paths: diffPaths(c.merged, merged), Source: src}
	c.merged = merged
	return change
}

// Set stores value in the session layer, above every other source. A nil
// value removes the session override.
func (c *Config) Set(path string, value any) error {
	if _, ok := splitPath(path); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	value = normalize(value)
	if value != nil {
		if err := c.Validate(path, value); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	session := c.layers[SourceSession].data
	if value == nil {
		deleteByPath(session, path)
	} else {
		setByPath(session, path, value)
	}
	change := c.rebuild(SourceSession)
	c.mu.Unlock()

	c.notifier.notify(change)
	return nil
}

// Get returns the effective value at path.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := getByPath(c.merged, path)
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// SourceOf returns the layer that supplies the effective value at path.
func (c *Config) SourceOf(path string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.layers) - 1; i >= 0; i-- {
		if _, ok := getByPath(c.layers[i].data, path); ok {
			return c.layers[i].source, true
		}
	}
	return 0, false
}

// Section returns a copy of the subtree at section; "" returns
// everything. A missing section yields an empty map.
func (c *Config) Section(section string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if section == "" {
		return cloneMap(c.merged)
	}
	v, ok := getByPath(c.merged, section)
	if m, isMap := v.(map[string]any); ok && isMap {
		return cloneMap(m)
	}
	return map[string]any{}
}

// Keys returns every effective leaf path, sorted.
func (c *Config) Keys() []string {
	c.mu.RLock()
	flat := flatten(c.merged)
	c.mu.RUnlock()

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetFloat returns a numeric value at the given path.
func (c *Config) GetFloat(path string) (float64, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, &TypeError{Path: path, Expected: "number", Actual: typeName(v)}
	}
}

// GetStringSlice returns a string slice at the given path.
func (c *Config) GetStringSlice(path string) ([]string, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, ErrSettingNotFound
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
		}
		out[i] = s
	}
	return out, nil
}

// Subscribe registers fn for changes affecting section; "" observes every
// change. Observers run synchronously on the goroutine that made the
// change.
func (c *Config) Subscribe(section string, fn Observer) *Subscription {
	return c.notifier.subscribe(section, fn)
}

// Watch reloads the configuration whenever the user settings file
// changes on disk. It is a no-op without a user file.
func (c *Config) Watch(files FileSubscriber) error {
	if c.userPath == "" {
		return nil
	}
	cancel, err := files.Subscribe(c.userPath, func(ev watcher.Event) {
		if !ev.Op.ContentChanged() {
			return
		}
		if err := c.Reload(context.Background()); err != nil {
			c.logger.Error("reloading %s: %v", c.userPath, err)
		}
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", c.userPath, err)
	}

	c.mu.Lock()
	prev := c.unwatch
	c.unwatch = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// Close stops watching and drops every observer.
func (c *Config) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	c.notifier.close()
}
