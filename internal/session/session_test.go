package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/manifest"
	"github.com/dshills/mdsync/internal/watcher"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	syncCmd = "test.sync"
)

var epoch = time.UnixMilli(1700000000123)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeWatcher struct {
	mu       sync.Mutex
	handlers map[string]watcher.Handler
}

func (w *fakeWatcher) Subscribe(path string, fn watcher.Handler) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = make(map[string]watcher.Handler)
	}
	w.handlers[path] = fn
	return func() {
		w.mu.Lock()
		delete(w.handlers, path)
		w.mu.Unlock()
	}, nil
}

func (w *fakeWatcher) fire(path string, op watcher.Op) bool {
	w.mu.Lock()
	fn, ok := w.handlers[path]
	w.mu.Unlock()
	if ok {
		fn(watcher.Event{Path: path, Op: op, Timestamp: time.Now()})
	}
	return ok
}

type fakeHelper struct {
	reply string
	data  []byte
}

func (f *fakeHelper) SaveClipboardImage(_ context.Context, dest string) (string, error) {
	if f.data != nil {
		if err := os.WriteFile(dest, f.data, 0o644); err != nil {
			return "", err
		}
		return dest, nil
	}
	return f.reply, nil
}

// peer is the surface end of a session.
type peer struct {
	t  *testing.T
	tr channel.Transport
	in chan channel.Message
}

func newPeer(t *testing.T, tr channel.Transport) *peer {
	p := &peer{t: t, tr: tr, in: make(chan channel.Message, 64)}
	go func() {
		defer close(p.in)
		for {
			m, err := tr.Recv()
			if err != nil {
				return
			}
			p.in <- m
		}
	}()
	return p
}

func (p *peer) send(pl channel.Payload) {
	p.t.Helper()
	m, err := channel.Encode(pl)
	require.NoError(p.t, err)
	require.NoError(p.t, p.tr.Send(m))
}

func (p *peer) next() channel.Payload {
	p.t.Helper()
	select {
	case m, ok := <-p.in:
		require.True(p.t, ok, "surface transport closed")
		pl, err := channel.Decode(m)
		require.NoError(p.t, err)
		return pl
	case <-time.After(waitFor):
		p.t.Fatal("timed out waiting for a message")
		return nil
	}
}

func (p *peer) expectNone(d time.Duration) {
	p.t.Helper()
	select {
	case m, ok := <-p.in:
		if ok {
			p.t.Fatalf("unexpected %s message", m.Type)
		}
	case <-time.After(d):
	}
}

type harness struct {
	t        *testing.T
	cfg      *config.Config
	reg      *feature.Registry
	cmds     *host.Commands
	memento  *host.MemoryMemento
	notifier *host.RecordingNotifier
	opener   *host.RecordingOpener
	clip     *host.MemoryClipboard
	watcher  *fakeWatcher
	helper   *fakeHelper
	clock    *fakeClock
	ctrl     *Controller
	synced   chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := feature.Default()
	cfg := config.New(manifest.New(reg, manifest.DefaultOptions()),
		config.WithEnviron(func() []string { return nil }),
		config.WithUserFile(""),
	)
	t.Cleanup(cfg.Close)
	require.NoError(t, cfg.Load(context.Background()))

	h := &harness{
		t:        t,
		cfg:      cfg,
		reg:      reg,
		cmds:     host.NewCommands(),
		memento:  host.NewMemoryMemento(),
		notifier: &host.RecordingNotifier{},
		opener:   &host.RecordingOpener{},
		clip:     &host.MemoryClipboard{},
		watcher:  &fakeWatcher{},
		helper:   &fakeHelper{reply: "no image"},
		clock:    &fakeClock{now: epoch},
		synced:   make(chan struct{}, 16),
	}
	_, err := h.cmds.Register(syncCmd, func(context.Context, ...any) error {
		h.synced <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	h.ctrl, err = New(Deps{
		Registry:       reg,
		Config:         cfg,
		Commands:       h.cmds,
		Memento:        h.memento,
		Notifier:       h.notifier,
		Opener:         h.opener,
		Clipboard:      h.clip,
		Watcher:        h.watcher,
		ClipboardImage: h.helper,
		Env:            host.Environment{ExtensionDir: "/ext"},
	},
		WithClock(h.clock.Now),
		WithOptions(Options{EchoWindow: 800 * time.Millisecond, ScrollDebounce: 100 * time.Millisecond}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

// resolve binds doc without initializing the surface.
func (h *harness) resolve(doc host.Document) (*Session, *peer) {
	h.t.Helper()
	hostEnd, surfaceEnd := channel.Pipe()
	s, err := h.ctrl.Resolve(context.Background(), doc, hostEnd)
	require.NoError(h.t, err)
	return s, newPeer(h.t, surfaceEnd)
}

// open resolves doc and completes the init handshake.
func (h *harness) open(doc host.Document) (*Session, *peer, channel.Open) {
	h.t.Helper()
	s, p := h.resolve(doc)
	p.send(channel.Init{})
	open, ok := p.next().(channel.Open)
	require.True(h.t, ok)
	require.Eventually(h.t, func() bool { return s.State() == StateActive }, waitFor, tick)
	return s, p, open
}

// flush waits until every message p sent so far has been handled.
func (h *harness) flush(p *peer) {
	h.t.Helper()
	p.send(channel.Command{ID: syncCmd})
	select {
	case <-h.synced:
	case <-time.After(waitFor):
		h.t.Fatal("timed out flushing the session")
	}
}

func tempDoc(t *testing.T, text string) *host.MemoryDocument {
	t.Helper()
	return host.NewMemoryDocument(filepath.Join(t.TempDir(), "notes.md"), text)
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestInitSendsOpen(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "# Notes\r\nsome text\r\n")
	require.NoError(t, h.memento.Update(ScrollKeyPrefix+doc.Path(), 120))

	s, p := h.resolve(doc)
	assert.Equal(t, StateResolving, s.State())
	assert.False(t, h.ctrl.StatusBar().Visible())
	assert.Contains(t, s.ResourceRoots(), filepath.Dir(doc.Path()))
	assert.Contains(t, s.ResourceRoots(), "/ext")

	p.send(channel.Init{})
	open, ok := p.next().(channel.Open)
	require.True(t, ok)

	assert.Equal(t, "notes.md", open.Title)
	assert.Equal(t, "# Notes\nsome text\n", open.Content)
	assert.Equal(t, float64(120), open.ScrollTop)
	assert.Equal(t, "en", open.Language)
	assert.Equal(t, config.ThemeDark, open.Theme)
	assert.Equal(t, "https://file+.vscode-resource.vscode-cdn.net/ext", open.RootPath)
	assert.Equal(t, resourceURL(filepath.Dir(doc.Path())), open.BaseURL)
	for _, key := range []string{"platform", "scrollBeyondLastLine", "contextMenuGroups", "hideToolbar"} {
		assert.Contains(t, open.Config, key)
	}

	require.Eventually(t, func() bool { return s.State() == StateActive }, waitFor, tick)
	assert.Same(t, s, h.ctrl.Dispatcher().Active())
	assert.True(t, h.ctrl.StatusBar().Visible())
	assert.Equal(t, 4, h.ctrl.StatusBar().Stats().Words)

	// A second init is ignored.
	p.send(channel.Init{})
	h.flush(p)
	p.expectNone(50 * time.Millisecond)
}

func TestScrollIsDebounced(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "text")
	_, p, _ := h.open(doc)
	before := h.memento.Updates()

	p.send(channel.Scroll{ScrollTop: 120})
	p.send(channel.Scroll{ScrollTop: 240})
	h.flush(p)

	require.Eventually(t, func() bool {
		v, ok := h.memento.Get(ScrollKeyPrefix + doc.Path())
		return ok && v == float64(240)
	}, waitFor, tick)
	assert.Equal(t, before+1, h.memento.Updates())
}

func TestExternalUpdate(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "start")
	s, p, _ := h.open(doc)
	ctx := context.Background()

	require.NoError(t, doc.Replace(ctx, "host\r\nedit"))
	assert.Equal(t, channel.Update{Content: "host\nedit"}, p.next())
	assert.Equal(t, "host\nedit", s.Snapshot())

	// Same content after normalisation is not echoed.
	require.NoError(t, doc.Replace(ctx, "host\nedit"))
	p.expectNone(100 * time.Millisecond)
}

func TestSaveDoesNotEcho(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "start")
	s, p, _ := h.open(doc)

	p.send(channel.Save{Content: "from surface"})
	h.flush(p)

	assert.Equal(t, "from surface", doc.Text())
	assert.Equal(t, "from surface", s.Snapshot())
	assert.Equal(t, 0, doc.Saves())
	assert.Equal(t, 2, h.ctrl.StatusBar().Stats().Words)
	p.expectNone(100 * time.Millisecond)

	p.send(channel.Save{Content: "a\r\nb"})
	h.flush(p)
	assert.Equal(t, "a\nb", doc.Text())
	assert.Equal(t, "a\nb", s.Snapshot())
	p.expectNone(100 * time.Millisecond)

	p.send(channel.DoSave{Content: "c\r\nd"})
	h.flush(p)
	assert.Equal(t, "c\nd", doc.Text())
	assert.Equal(t, "c\nd", s.Snapshot())
	p.expectNone(100 * time.Millisecond)
}

// slowDoc stalls its first Replace.
type slowDoc struct {
	*host.MemoryDocument
	once sync.Once
}

func (d *slowDoc) Replace(ctx context.Context, text string) error {
	d.once.Do(func() { time.Sleep(200 * time.Millisecond) })
	return d.MemoryDocument.Replace(ctx, text)
}

func TestSaveBurstWhileReplaceIsSlow(t *testing.T) {
	h := newHarness(t)
	doc := &slowDoc{MemoryDocument: tempDoc(t, "start")}
	s, p, _ := h.open(doc)

	const n = 300
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			m, err := channel.Encode(channel.Save{Content: fmt.Sprintf("rev %d", i)})
			if err != nil || p.tr.Send(m) != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("saves stalled behind the session")
	}
	h.flush(p)

	want := fmt.Sprintf("rev %d", n-1)
	assert.Equal(t, want, doc.Text())
	assert.Equal(t, want, s.Snapshot())
	assert.Equal(t, n, doc.Edits())
	p.expectNone(100 * time.Millisecond)
}

func TestManualSaveSuppressesEchoes(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "start")
	_, p, _ := h.open(doc)
	ctx := context.Background()

	p.send(channel.DoSave{Content: "saved"})
	p.send(channel.Save{Content: "late echo"})
	h.flush(p)
	assert.Equal(t, "saved", doc.Text())
	assert.Equal(t, 1, doc.Saves())

	require.NoError(t, doc.Replace(ctx, "formatter rewrite"))
	p.expectNone(100 * time.Millisecond)

	h.clock.Advance(time.Second)
	require.NoError(t, doc.Replace(ctx, "later edit"))
	assert.Equal(t, channel.Update{Content: "later edit"}, p.next())

	p.send(channel.Save{Content: "typed"})
	h.flush(p)
	assert.Equal(t, "typed", doc.Text())
}

func TestDoSaveFailure(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "start")
	_, p, _ := h.open(doc)
	doc.SetFailure("save", errors.New("disk full"))

	p.send(channel.DoSave{Content: "x"})
	h.flush(p)

	errs := h.notifier.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "disk full")
}

func TestCommandMessage(t *testing.T) {
	h := newHarness(t)
	_, p, _ := h.open(tempDoc(t, "x"))

	var got []string
	_, err := h.cmds.Register("test.echo", func(context.Context, ...any) error {
		got = append(got, "echo")
		return nil
	})
	require.NoError(t, err)

	p.send(channel.Command{ID: "test.echo"})
	p.send(channel.Command{ID: "test.missing"})
	h.flush(p)

	assert.Equal(t, []string{"echo"}, got)
	assert.Empty(t, h.notifier.Errors())
}

func TestOpenLink(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	_, p, _ := h.open(doc)
	dir := filepath.Dir(doc.Path())

	links := []string{
		"https://example.com/page",
		"https://file+.vscode-resource.vscode-cdn.net/home/u/My%20Doc.md",
		"file:///tmp/other.md",
		"sibling.md",
		"mailto:someone@example.com",
	}
	for _, l := range links {
		p.send(channel.OpenLink{URL: l})
	}
	h.flush(p)

	assert.Equal(t, []host.Opened{
		{Kind: "external", Target: "https://example.com/page"},
		{Kind: "local", Target: filepath.FromSlash("/home/u/My Doc.md")},
		{Kind: "local", Target: filepath.FromSlash("/tmp/other.md")},
		{Kind: "local", Target: filepath.Join(dir, "sibling.md")},
		{Kind: "external", Target: "mailto:someone@example.com"},
	}, h.opener.Opened())
}

func TestImgUpload(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	_, p, _ := h.open(doc)
	link := "image/notes/1700000000123.png"
	markdown := "![1700000000123](" + link + ")"

	p.send(channel.Img{Name: "paste.png", Data: encodePNG(t)})
	h.flush(p)

	assert.FileExists(t, filepath.Join(filepath.Dir(doc.Path()), filepath.FromSlash(link)))
	text, err := h.clip.ReadText()
	require.NoError(t, err)
	assert.Equal(t, markdown, text)
	assert.Equal(t, []string{"Image saved to " + link + "; link copied to clipboard."}, h.notifier.Infos())

	var pasted int
	_, err = h.cmds.Register(host.CommandClipboardPaste, func(context.Context, ...any) error {
		pasted++
		return nil
	})
	require.NoError(t, err)

	p.send(channel.Img{Name: "paste.png", Data: encodePNG(t)})
	h.flush(p)
	assert.Equal(t, 1, pasted)
	assert.Len(t, h.notifier.Infos(), 1)
}

func TestImgUploadEmpty(t *testing.T) {
	h := newHarness(t)
	_, p, _ := h.open(tempDoc(t, "x"))

	p.send(channel.Img{Name: "empty.png"})
	h.flush(p)

	require.Len(t, h.notifier.Errors(), 1)
	assert.Contains(t, h.notifier.Errors()[0], "Save image")
	assert.Equal(t, 0, h.clip.Writes())
}

func TestEditInHost(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	_, p, _ := h.open(doc)

	p.send(channel.EditInHost{})
	p.send(channel.EditInHost{Full: true})
	h.flush(p)

	assert.Equal(t, []host.Opened{
		{Kind: "with", Target: doc.Path(), Editor: host.EditorDefault, Beside: true},
		{Kind: "with", Target: doc.Path(), Editor: host.EditorDefault, Beside: false},
	}, h.opener.Opened())
}

func TestFileChangeReloadsDocument(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "disk.md")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	doc, err := host.OpenFile(path)
	require.NoError(t, err)

	_, p, _ := h.open(doc)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	require.True(t, h.watcher.fire(doc.Path(), watcher.OpWrite))
	assert.Equal(t, channel.Update{Content: "two"}, p.next())

	// A chmod that leaves the content alone sends nothing.
	require.True(t, h.watcher.fire(doc.Path(), watcher.OpChmod))
	p.expectNone(100 * time.Millisecond)
}

func TestVisibility(t *testing.T) {
	h := newHarness(t)
	s1, _, _ := h.open(tempDoc(t, "one"))
	s2, _, _ := h.open(tempDoc(t, "two words"))

	assert.Equal(t, StateBackground, s1.State())
	assert.Equal(t, StateActive, s2.State())
	assert.Same(t, s2, h.ctrl.Dispatcher().Active())

	s1.SetVisible(true)
	assert.Equal(t, StateActive, s1.State())
	assert.Equal(t, StateBackground, s2.State())
	assert.Equal(t, 1, h.ctrl.StatusBar().Stats().Words)

	// Hiding a background session leaves the target alone.
	s2.SetVisible(false)
	assert.Same(t, s1, h.ctrl.Dispatcher().Active())
	assert.True(t, h.ctrl.StatusBar().Visible())

	s1.SetVisible(false)
	assert.Nil(t, h.ctrl.Dispatcher().Active())
	assert.False(t, h.ctrl.StatusBar().Visible())
}

func TestSetVisibleBeforeInit(t *testing.T) {
	h := newHarness(t)
	s, _ := h.resolve(tempDoc(t, "x"))

	s.SetVisible(true)
	assert.Equal(t, StateResolving, s.State())
	assert.Nil(t, h.ctrl.Dispatcher().Active())
}

func TestDisposeWhenSurfaceCloses(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	s, p, _ := h.open(doc)

	p.send(channel.Scroll{ScrollTop: 300})
	h.flush(p)
	require.NoError(t, p.tr.Close())

	require.Eventually(t, func() bool { return len(h.ctrl.Sessions()) == 0 }, waitFor, tick)
	<-s.Done()
	assert.Equal(t, StateDisposed, s.State())
	assert.Nil(t, h.ctrl.Dispatcher().Active())
	assert.False(t, h.ctrl.StatusBar().Visible())
	assert.Zero(t, doc.Listeners())

	v, ok := h.memento.Get(ScrollKeyPrefix + doc.Path())
	require.True(t, ok)
	assert.Equal(t, float64(300), v)

	s.SetVisible(true)
	assert.Equal(t, StateDisposed, s.State())
}

func TestHandlerErrorKeepsChannel(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	_, p, _ := h.open(doc)
	doc.SetFailure("replace", errors.New("read-only"))

	p.send(channel.Save{Content: "y"})
	h.flush(p)
	require.Len(t, h.notifier.Errors(), 1)
	assert.Contains(t, h.notifier.Errors()[0], "read-only")

	doc.SetFailure("replace", nil)
	p.send(channel.Save{Content: "z"})
	h.flush(p)
	assert.Equal(t, "z", doc.Text())
}

func TestFeatureRouting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Without an active session nothing happens.
	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.insertBold"))

	_, p, _ := h.open(tempDoc(t, "x"))

	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.insertBold"))
	cmd, ok := p.next().(channel.VditorCommand)
	require.True(t, ok)
	assert.Equal(t, "insertBold", cmd.Command)
	require.NotNil(t, cmd.KeyEvent)
	assert.Equal(t, "b", cmd.KeyEvent.Key)
	assert.True(t, cmd.KeyEvent.Ctrl)
	assert.Empty(t, cmd.Insert)

	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.insertH5"))
	assert.Equal(t, channel.VditorCommand{Command: "insertH5", Insert: "heading5"}, p.next())

	require.NoError(t, h.cfg.Set("vsc-markdown.features.insertBold.enabled", false))
	_, ok = p.next().(channel.Config)
	require.True(t, ok)

	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.insertBold"))
	p.expectNone(100 * time.Millisecond)
}

func TestPaletteFollowsSettings(t *testing.T) {
	h := newHarness(t)
	inPalette := func(id string) bool {
		for _, c := range h.cmds.Palette() {
			if c.ID == id {
				return true
			}
		}
		return false
	}
	assert.True(t, inPalette("vsc-markdown.insertBold"))

	require.NoError(t, h.cfg.Set("vsc-markdown.features.insertBold.commandPalette", false))
	assert.False(t, inPalette("vsc-markdown.insertBold"))
}

func TestSettingsPushes(t *testing.T) {
	h := newHarness(t)
	_, p, _ := h.open(tempDoc(t, "x"))

	require.NoError(t, h.cfg.Set(config.KeyTheme, config.ThemeLight))
	assert.Equal(t, channel.Theme{Kind: config.ThemeLight}, p.next())

	require.NoError(t, h.cfg.Set(config.KeyScrollBeyondLastLine, false))
	cfg, ok := p.next().(channel.Config)
	require.True(t, ok)
	assert.Equal(t, false, cfg.Settings["scrollBeyondLastLine"])
	assert.Equal(t, channel.ScrollBeyond{Enabled: false}, p.next())

	require.NoError(t, h.cfg.Set("vsc-markdown.hideToolbar", true))
	cfg, ok = p.next().(channel.Config)
	require.True(t, ok)
	assert.Equal(t, true, cfg.Settings["hideToolbar"])

	require.NoError(t, h.cfg.Set(config.KeyLogLevel, "debug"))
	p.expectNone(100 * time.Millisecond)
}

func TestSettingsSkipResolvingSessions(t *testing.T) {
	h := newHarness(t)
	_, p := h.resolve(tempDoc(t, "x"))

	require.NoError(t, h.cfg.Set(config.KeyTheme, config.ThemeLight))
	p.expectNone(100 * time.Millisecond)
}

type fakeMenuSettings struct {
	items    []string
	disabled map[string]bool
}

func (f fakeMenuSettings) WebviewContextMenuItems() []string { return f.items }
func (f fakeMenuSettings) FeatureEnabled(id string) bool     { return !f.disabled[id] }

func TestContextMenuGroups(t *testing.T) {
	reg := feature.Default()
	settings := fakeMenuSettings{
		items: []string{"insertBold", "insertH5", "insertBold", "nope", "insertItalic", "switchEditor"},
	}

	groups := ContextMenuGroups(reg, settings)
	require.Len(t, groups, 2)
	assert.Equal(t, "formatting", groups[0].Category)
	assert.Equal(t, feature.Category("formatting").Meta().Name, groups[0].Name)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, MenuItem{
		Command:    "vsc-markdown.insertBold",
		Title:      "Insert Bold Text",
		Icon:       "$(bold)",
		Keybinding: "ctrl+b",
		Category:   "formatting",
	}, groups[0].Items[0])
	assert.Equal(t, "vsc-markdown.insertItalic", groups[0].Items[1].Command)
	assert.Equal(t, "headings", groups[1].Category)
	assert.Equal(t, "vsc-markdown.insertH5", groups[1].Items[0].Command)

	settings.disabled = map[string]bool{"insertItalic": true, "insertH5": true}
	groups = ContextMenuGroups(reg, settings)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 1)
}

func TestExportHTML(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "# Title\n\nbody")
	_, _, _ = h.open(doc)

	require.NoError(t, h.cmds.Execute(context.Background(), "vsc-markdown.exportHtml"))

	out := filepath.Join(filepath.Dir(doc.Path()), "notes.html")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<h1 id="title">Title</h1>`)
	assert.Contains(t, string(data), "<title>notes</title>")
	assert.Equal(t, []string{"Exported to " + out}, h.notifier.Infos())
}

func TestPasteClipboardImage_Text(t *testing.T) {
	h := newHarness(t)
	_, _, _ = h.open(tempDoc(t, "x"))
	require.NoError(t, h.clip.WriteText("plain text"))

	var pasted int
	_, err := h.cmds.Register(host.CommandClipboardPaste, func(context.Context, ...any) error {
		pasted++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.cmds.Execute(context.Background(), "vsc-markdown.pasteClipboardImage"))
	assert.Equal(t, 1, pasted)
	assert.Equal(t, 1, h.clip.Writes())
}

func TestPasteClipboardImage_Image(t *testing.T) {
	h := newHarness(t)
	doc := tempDoc(t, "x")
	_, _, _ = h.open(doc)
	h.helper.data = encodePNG(t)

	require.NoError(t, h.cmds.Execute(context.Background(), "vsc-markdown.pasteClipboardImage"))

	assert.FileExists(t, filepath.Join(filepath.Dir(doc.Path()), "image", "notes", "1700000000123.png"))
	text, err := h.clip.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "![1700000000123](image/notes/1700000000123.png)", text)
}

func TestPasteClipboardImage_Errors(t *testing.T) {
	h := newHarness(t)
	_, _, _ = h.open(tempDoc(t, "x"))
	ctx := context.Background()

	h.helper.reply = "no image"
	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.pasteClipboardImage"))
	assert.Equal(t, []string{"There is not an image in the clipboard."}, h.notifier.Errors())

	h.helper.reply = "no xclip"
	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.pasteClipboardImage"))
	assert.Equal(t, []string{"You need to install xclip command first."}, h.notifier.Infos())

	h.helper.reply = "copied:" + t.TempDir()
	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.pasteClipboardImage"))
	assert.Equal(t, "Pasting a directory is not supported.", h.notifier.Errors()[1])
}

func TestSwitchEditor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.switchEditor", "/docs/readme.md"))

	doc := tempDoc(t, "x")
	_, _, _ = h.open(doc)
	require.NoError(t, h.cmds.Execute(ctx, "vsc-markdown.switchEditor"))

	assert.Equal(t, []host.Opened{
		{Kind: "with", Target: "/docs/readme.md", Editor: "vsc-markdown"},
		{Kind: "with", Target: doc.Path(), Editor: host.EditorDefault},
	}, h.opener.Opened())
}

func TestControllerClose(t *testing.T) {
	h := newHarness(t)
	s, _, _ := h.open(tempDoc(t, "x"))
	require.True(t, h.cmds.Has("vsc-markdown.insertBold"))

	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, StateDisposed, s.State())
	assert.Empty(t, h.ctrl.Sessions())
	assert.False(t, h.cmds.Has("vsc-markdown.insertBold"))

	hostEnd, _ := channel.Pipe()
	_, err := h.ctrl.Resolve(context.Background(), tempDoc(t, "y"), hostEnd)
	assert.ErrorIs(t, err, ErrClosed)
}
