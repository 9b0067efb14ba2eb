package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/manifest"
	"github.com/dshills/mdsync/internal/watcher"
)

func testGenerator() *manifest.Generator {
	reg := feature.New([]feature.Feature{
		{
			ID: "insertBold", Command: "x.insertBold", Title: "Bold",
			Category: feature.CategoryFormatting, Keybinding: "ctrl+b",
			EnabledByDefault: true, ShowInStatusBar: true, ShowInWebviewContextMenu: true,
		},
		{
			ID: "insertItalic", Command: "x.insertItalic", Title: "Italic",
			Category: feature.CategoryFormatting, Keybinding: "ctrl+i",
			EnabledByDefault: true, ShowInStatusBar: true,
		},
		{
			ID: "insertH1", Command: "x.insertH1", Title: "H1",
			Category: feature.CategoryHeadings, ShowInStatusBar: true,
		},
	})
	opts := manifest.DefaultOptions()
	opts.Namespace = "x"
	return manifest.New(reg, opts)
}

func noEnv() []string { return nil }

func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	opts = append([]Option{WithEnviron(noEnv), WithUserFile("")}, opts...)
	c := New(testGenerator(), opts...)
	t.Cleanup(c.Close)
	return c
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	c := newTestConfig(t)

	assert.True(t, c.FeatureEnabled("insertBold"))
	assert.False(t, c.FeatureEnabled("insertH1"))
	assert.False(t, c.FeatureEnabled("missing"))
	assert.True(t, c.KeybindingEnabled("insertBold"))
	assert.True(t, c.CommandPalette("insertItalic"))

	assert.Equal(t, []string{"insertBold", "insertItalic"}, c.StatusBarItems())
	assert.Equal(t, []string{"insertBold"}, c.WebviewContextMenuItems())

	assert.Equal(t, ThemeDark, c.Theme())
	assert.Equal(t, "en", c.Language())
	assert.True(t, c.ScrollBeyondLastLine())
	assert.Equal(t, logging.LevelInfo, c.LogLevel())
	assert.Equal(t, DefaultImagePath, c.ImagePathTemplate())
	assert.False(t, c.WorkspaceImageBase())

	src, ok := c.SourceOf("x.features.insertBold.enabled")
	require.True(t, ok)
	assert.Equal(t, SourceDefaults, src)
}

func TestDefaultsMatchManifest(t *testing.T) {
	c := newTestConfig(t)
	gen := testGenerator()

	defaults := gen.ConfigurationDefaults()
	for _, key := range defaults.Keys() {
		want, _ := defaults.Get(key)
		got, ok := c.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, normalize(want), got, key)
	}
}

func TestSection(t *testing.T) {
	c := newTestConfig(t)

	section := c.Section("x")
	assert.Equal(t, false, section["hideToolbar"])
	features, ok := section["features"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, features, "insertBold")

	// The copy is detached.
	section["hideToolbar"] = true
	hide, err := c.GetBool("x.hideToolbar")
	require.NoError(t, err)
	assert.False(t, hide)

	assert.Empty(t, c.Section("nope"))
	assert.Contains(t, c.Keys(), "x.previewCodeHighlight.showLineNumber")
}

func TestTypedGetters(t *testing.T) {
	c := newTestConfig(t)

	_, err := c.GetString("missing")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	_, err = c.GetBool("x.pasterImgPath")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = c.GetStringSlice("x.hideToolbar")
	var te *TypeError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "[]string", te.Expected)
	assert.Equal(t, "bool", te.Actual)
}

func TestLoadUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, `
[ui]
theme = "light"

[x]
hideToolbar = true

[x.features.insertBold]
enabled = false
`)
	c := newTestConfig(t, WithUserFile(path))
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, ThemeLight, c.Theme())
	assert.False(t, c.FeatureEnabled("insertBold"))
	assert.False(t, c.KeybindingEnabled("insertBold"))

	hide, err := c.GetBool("x.hideToolbar")
	require.NoError(t, err)
	assert.True(t, hide)

	src, _ := c.SourceOf("x.features.insertBold.enabled")
	assert.Equal(t, SourceUser, src)
}

func TestLoadOrderedItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, `
[x.statusBar]
items = ["insertItalic"]
`)
	c := newTestConfig(t, WithUserFile(path))
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"insertItalic"}, c.StatusBarItems())
}

func TestLoadMissingFile(t *testing.T) {
	c := newTestConfig(t, WithUserFile(filepath.Join(t.TempDir(), "none.toml")))
	require.NoError(t, c.Load(context.Background()))
	assert.True(t, c.FeatureEnabled("insertBold"))
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, "[x\nhideToolbar = ")

	c := newTestConfig(t, WithUserFile(path))
	err := c.Load(context.Background())

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
	assert.Positive(t, perr.Line)
}

func TestLoadDropsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, `
[x]
hideToolbar = "yes please"

[x.statusBar]
items = ["insertBold", "nope"]

[x.features.insertItalic]
enabled = 3
`)
	c := newTestConfig(t, WithUserFile(path))
	require.NoError(t, c.Load(context.Background()))

	hide, err := c.GetBool("x.hideToolbar")
	require.NoError(t, err)
	assert.False(t, hide)
	assert.Equal(t, []string{"insertBold", "insertItalic"}, c.StatusBarItems())
	assert.True(t, c.FeatureEnabled("insertItalic"))
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, "[ui]\ntheme = \"dark\"\n")

	env := []string{
		"MDSYNC_THEME=light",
		"MDSYNC_X_FEATURES_INSERTBOLD_ENABLED=false",
		"MDSYNC_HIDETOOLBAR=on",
		"MDSYNC_STATUSBAR_ITEMS=insertItalic, insertBold",
		"MDSYNC_PASTERIMGPATH=assets/${now}.png",
		"MDSYNC_UNKNOWN=1",
		"OTHER_THEME=dark",
	}
	c := New(testGenerator(), WithUserFile(path), WithEnviron(func() []string { return env }))
	defer c.Close()
	require.NoError(t, c.Load(context.Background()))

	assert.Equal(t, ThemeLight, c.Theme())
	assert.False(t, c.FeatureEnabled("insertBold"))
	assert.Equal(t, []string{"insertItalic", "insertBold"}, c.StatusBarItems())
	assert.Equal(t, "assets/${now}.png", c.ImagePathTemplate())

	hide, err := c.GetBool("x.hideToolbar")
	require.NoError(t, err)
	assert.True(t, hide)

	src, _ := c.SourceOf(KeyTheme)
	assert.Equal(t, SourceEnv, src)
}

func TestParseEnvValue(t *testing.T) {
	tests := []struct {
		in   string
		like any
		want any
	}{
		{"true", nil, true},
		{"off", nil, false},
		{"42", nil, int64(42)},
		{"1.5", nil, 1.5},
		{`["a","b"]`, nil, []any{"a", "b"}},
		{"plain", nil, "plain"},
		{"true", "", "true"},
		{"a,b", []any{}, []any{"a", "b"}},
		{`["a"]`, []any{}, []any{"a"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEnvValue(tt.in, tt.like), tt.in)
	}
}

func TestSetAndNotify(t *testing.T) {
	c := newTestConfig(t)

	var all, features, editor []Change
	c.Subscribe("", func(ch Change) { all = append(all, ch) })
	c.Subscribe("x.features", func(ch Change) { features = append(features, ch) })
	sub := c.Subscribe(KeyScrollBeyondLastLine, func(ch Change) { editor = append(editor, ch) })

	require.NoError(t, c.Set("x.features.insertBold.enabled", false))
	assert.False(t, c.FeatureEnabled("insertBold"))
	require.Len(t, features, 1)
	assert.Equal(t, []string{"x.features.insertBold.enabled"}, features[0].Paths)
	assert.Equal(t, SourceSession, features[0].Source)
	assert.Empty(t, editor)

	// Setting the same value changes nothing.
	require.NoError(t, c.Set("x.features.insertBold.enabled", false))
	assert.Len(t, all, 1)

	require.NoError(t, c.Set(KeyScrollBeyondLastLine, false))
	assert.Len(t, editor, 1)
	assert.False(t, c.ScrollBeyondLastLine())

	sub.Unsubscribe()
	require.NoError(t, c.Set(KeyScrollBeyondLastLine, nil))
	assert.Len(t, editor, 1)
	assert.True(t, c.ScrollBeyondLastLine())
	assert.Len(t, all, 3)
}

func TestSetValidates(t *testing.T) {
	c := newTestConfig(t)

	err := c.Set("x.statusBar.items", []string{"insertBold", "insertBold"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	err = c.Set("x.features.insertBold.enabled", "no")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "x.features.insertBold.enabled", verr.Path)

	assert.ErrorIs(t, c.Set("a..b", 1), ErrInvalidPath)

	require.NoError(t, c.Set("x.statusBar.items", []string{"insertH1"}))
	assert.Equal(t, []string{"insertH1"}, c.StatusBarItems())

	// Foreign settings are not validated.
	require.NoError(t, c.Set("other.thing", 3))
}

func TestChangeAffects(t *testing.T) {
	ch := Change{Paths: []string{"x.features.insertBold.enabled"}}
	assert.True(t, ch.Affects(""))
	assert.True(t, ch.Affects("x"))
	assert.True(t, ch.Affects("x.features.insertBold.enabled"))
	assert.False(t, ch.Affects("x.feat"))
	assert.False(t, ch.Affects("editor"))
}

func TestReloadNotifiesDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, "[x]\nhideToolbar = true\n")

	c := newTestConfig(t, WithUserFile(path))
	require.NoError(t, c.Load(context.Background()))

	var changes []Change
	c.Subscribe("x", func(ch Change) { changes = append(changes, ch) })

	writeFile(t, path, "[x]\nhideToolbar = true\nopenOutline = false\n")
	require.NoError(t, c.Reload(context.Background()))
	require.Len(t, changes, 1)
	assert.Equal(t, []string{"x.openOutline"}, changes[0].Paths)
	assert.Equal(t, SourceUser, changes[0].Source)

	require.NoError(t, os.Remove(path))
	require.NoError(t, c.Reload(context.Background()))
	require.Len(t, changes, 2)
	assert.Equal(t, []string{"x.hideToolbar", "x.openOutline"}, changes[1].Paths)
}

func TestReloadCanceledContext(t *testing.T) {
	c := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reload(ctx), context.Canceled)
}

func TestClosed(t *testing.T) {
	c := New(testGenerator(), WithEnviron(noEnv), WithUserFile(""))
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Set("x.hideToolbar", true), ErrClosed)
	assert.ErrorIs(t, c.Reload(context.Background()), ErrClosed)
}

type fakeFiles struct {
	mu       sync.Mutex
	handlers map[string]watcher.Handler
	canceled int
}

func (f *fakeFiles) Subscribe(path string, fn watcher.Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]watcher.Handler)
	}
	f.handlers[path] = fn
	return func() {
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFiles) fire(path string, op watcher.Op) {
	f.mu.Lock()
	fn := f.handlers[path]
	f.mu.Unlock()
	fn(watcher.Event{Path: path, Op: op, Timestamp: time.Now()})
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, path, "")

	c := New(testGenerator(), WithEnviron(noEnv), WithUserFile(path))
	require.NoError(t, c.Load(context.Background()))

	files := &fakeFiles{}
	require.NoError(t, c.Watch(files))

	var changes int
	c.Subscribe("x.features", func(Change) { changes++ })

	writeFile(t, path, "[x.features.insertItalic]\nenabled = false\n")
	files.fire(path, watcher.OpChmod)
	assert.Equal(t, 0, changes)

	files.fire(path, watcher.OpWrite)
	assert.Equal(t, 1, changes)
	assert.False(t, c.FeatureEnabled("insertItalic"))

	c.Close()
	assert.Equal(t, 1, files.canceled)
}

func TestWatchWithoutUserFile(t *testing.T) {
	c := newTestConfig(t)
	files := &fakeFiles{}
	require.NoError(t, c.Watch(files))
	assert.Empty(t, files.handlers)
}
