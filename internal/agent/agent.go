// Package agent is the editor-side half of the synchronization protocol.
//
// An Agent waits for the editor library and the host channel, announces
// itself with init, builds the editor from the open message and then
// mirrors edits, scroll offsets, uploads and link clicks back to the host.
package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/logging"
)

// Options holds the agent timings.
type Options struct {
	// ReadyAttempts and ReadyInterval bound the wait for the editor
	// library, the channel and the built editor.
	ReadyAttempts int
	ReadyInterval time.Duration
	// FocusDelay is the wait before restoring the selection on focus.
	FocusDelay time.Duration
	// ScrollInterval is the minimum spacing of scroll reports.
	ScrollInterval time.Duration
	// HeaderOffset is subtracted from reported offsets and added back on
	// restore.
	HeaderOffset float64
	// ContainerAttempts and ContainerInterval bound the initial scroll
	// restore's wait for a scroll container.
	ContainerAttempts int
	ContainerInterval time.Duration
}

// DefaultOptions returns the standard timings.
func DefaultOptions() Options {
	return Options{
		ReadyAttempts:     50,
		ReadyInterval:     100 * time.Millisecond,
		FocusDelay:        50 * time.Millisecond,
		ScrollInterval:    50 * time.Millisecond,
		HeaderOffset:      70,
		ContainerAttempts: 50,
		ContainerInterval: 100 * time.Millisecond,
	}
}

// Editor modes and themes.
const (
	ModeIR = "ir"

	themeDark      = "dark"
	themeClassic   = "classic"
	codeThemeDark  = "vs2015"
	codeThemeLight = "vs"

	// ClassScrollBeyond is toggled on the page body.
	ClassScrollBeyond = "scrollBeyondLastLine"
)

// Settings read from the open and config payloads.
const (
	settingHideToolbar  = "hideToolbar"
	settingLineNumbers  = "previewCodeHighlight.showLineNumber"
	settingScrollBeyond = "scrollBeyondLastLine"
)

// Agent drives one editor surface.
type Agent struct {
	surface Surface
	ch      *channel.Channel
	opts    Options
	logger  *logging.Logger
	gate    Gate
	limiter *rate.Limiter

	mu       sync.Mutex
	built    bool
	lang     language.Tag
	saved    *Range
	trailing *time.Timer
	cancel   context.CancelFunc
	stopped  bool

	// Commands received before open, replayed once the editor exists.
	pending []channel.VditorCommand
	waiting bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithOptions sets the timings.
func WithOptions(o Options) Option {
	return func(a *Agent) {
		a.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Agent) {
		a.logger = l
	}
}

// New creates an agent for surface talking over ch.
func New(surface Surface, ch *channel.Channel, opts ...Option) *Agent {
	a := &Agent{
		surface: surface,
		ch:      ch,
		opts:    DefaultOptions(),
		logger:  logging.Null(),
		lang:    language.AmericanEnglish,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.gate = Gate{Attempts: a.opts.ReadyAttempts, Interval: a.opts.ReadyInterval, Logger: a.logger}
	a.limiter = rate.NewLimiter(rate.Every(a.opts.ScrollInterval), 1)
	return a
}

// Start waits for the editor library and the channel, registers the
// message handlers and sends init.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.gate.Wait(ctx, "editor library", a.surface.Loaded); err != nil {
		return err
	}
	if err := a.gate.Wait(ctx, "host channel", func() bool { return a.ch != nil && !a.ch.Closed() }); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.ch.On(channel.TypeOpen, a.handleOpen).
		On(channel.TypeUpdate, a.handleUpdate).
		On(channel.TypeVditorCommand, a.handleCommand).
		On(channel.TypeConfig, a.handleConfig).
		On(channel.TypeTheme, a.handleTheme).
		On(channel.TypeScrollBeyond, a.handleScrollBeyond)

	if err := a.ch.Bind(ctx, channel.BindOptions{}); err != nil && !errors.Is(err, channel.ErrAlreadyBound) {
		cancel()
		return err
	}
	return a.ch.Emit(channel.Init{})
}

// Stop cancels pending timers and background work.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
	}
	if a.trailing != nil {
		a.trailing.Stop()
		a.trailing = nil
	}
}

// Built reports whether the editor has been created.
func (a *Agent) Built() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.built
}

// expirePending drops the queued commands if the editor is not built
// within the readiness bound. It runs off the dispatch loop so that the
// open message can still be delivered.
func (a *Agent) expirePending(ctx context.Context) {
	err := a.gate.Wait(ctx, "editor", a.Built)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.waiting = false
	if err != nil && !a.built && len(a.pending) > 0 {
		a.logger.Warn("dropping %d editor commands: %v", len(a.pending), err)
		a.pending = nil
	}
}

func (a *Agent) handleOpen(ctx context.Context, p channel.Payload) error {
	msg := p.(channel.Open)

	editorTheme, codeTheme := themes(msg.Theme)
	opts := EditorOptions{
		Content:     msg.Content,
		Mode:        ModeIR,
		Lang:        EditorLang(msg.Language),
		Theme:       editorTheme,
		CodeTheme:   codeTheme,
		HideToolbar: lookupBool(msg.Config, settingHideToolbar),
		LineNumbers: lookupBool(msg.Config, settingLineNumbers),
		OnInput:     a.input,
		OnUpload:    a.upload,
	}
	if err := a.surface.Build(opts); err != nil {
		return err
	}
	a.surface.SetBodyClass(ClassScrollBeyond, lookupBool(msg.Config, settingScrollBeyond))

	tag, err := language.Parse(msg.Language)
	if err != nil {
		tag = language.AmericanEnglish
	}
	a.mu.Lock()
	a.built = true
	a.lang = tag
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	go a.restoreScroll(ctx, msg.ScrollTop)

	var errs []error
	for _, cmd := range pending {
		errs = append(errs, a.run(cmd))
	}
	return errors.Join(errs...)
}

// handleUpdate replaces the editor content. An update that arrives
// before open is superseded by the content open carries.
func (a *Agent) handleUpdate(_ context.Context, p channel.Payload) error {
	if !a.Built() {
		a.logger.Debug("update before open ignored")
		return nil
	}
	a.surface.SetValue(p.(channel.Update).Content)
	return nil
}

func (a *Agent) handleCommand(ctx context.Context, p channel.Payload) error {
	cmd := p.(channel.VditorCommand)

	a.mu.Lock()
	if !a.built {
		a.pending = append(a.pending, cmd)
		start := !a.waiting
		a.waiting = true
		a.mu.Unlock()
		if start {
			go a.expirePending(ctx)
		}
		return nil
	}
	a.mu.Unlock()
	return a.run(cmd)
}

func (a *Agent) run(cmd channel.VditorCommand) error {
	switch {
	case cmd.Insert != "":
		return a.insert(cmd.Insert)
	case cmd.KeyEvent != nil:
		a.dispatchKey(*cmd.KeyEvent)
		return nil
	default:
		a.logger.Warn("command %q has no surface action", cmd.Command)
		return nil
	}
}

func (a *Agent) insert(name string) error {
	sel := a.surface.SelectedText()
	if caseConversion(name) && sel == "" {
		return nil
	}
	a.mu.Lock()
	tag := a.lang
	a.mu.Unlock()

	text, err := Expand(name, sel, tag)
	if err != nil {
		return err
	}
	a.surface.Insert(text)
	return nil
}

func (a *Agent) dispatchKey(ev feature.KeyEvent) {
	for _, phase := range []string{PhaseKeyDown, PhaseKeyPress, PhaseKeyUp} {
		a.surface.DispatchKey(phase, ev)
	}
}

func (a *Agent) handleConfig(_ context.Context, p channel.Payload) error {
	settings := p.(channel.Config).Settings
	if a.Built() {
		a.surface.SetToolbarHidden(lookupBool(settings, settingHideToolbar))
	}
	if v, ok := lookup(settings, settingScrollBeyond).(bool); ok {
		a.surface.SetBodyClass(ClassScrollBeyond, v)
	}
	return nil
}

func (a *Agent) handleTheme(_ context.Context, p channel.Payload) error {
	editorTheme, codeTheme := themes(p.(channel.Theme).Kind)
	a.surface.SetTheme(editorTheme, codeTheme)
	return nil
}

func (a *Agent) handleScrollBeyond(_ context.Context, p channel.Payload) error {
	a.surface.SetBodyClass(ClassScrollBeyond, p.(channel.ScrollBeyond).Enabled)
	return nil
}

func themes(kind string) (editor, code string) {
	if kind == "light" {
		return themeClassic, codeThemeLight
	}
	return themeDark, codeThemeDark
}

func (a *Agent) input(content string) {
	a.emit(channel.Save{Content: content})
}

func (a *Agent) upload(name string, data []byte) {
	a.emit(channel.Img{Name: name, Data: data})
}

func (a *Agent) emit(p channel.Payload) {
	if err := a.ch.Emit(p); err != nil {
		a.logger.Debug("emit %s: %v", p.MessageType(), err)
	}
}

// HandleBlur saves the selection when it lies in the editable region.
func (a *Agent) HandleBlur() {
	r, ok := a.surface.Selection()
	a.mu.Lock()
	defer a.mu.Unlock()
	if ok {
		a.saved = &r
	}
}

// HandleFocus restores the saved selection after FocusDelay, falling back
// to focusing the editor. It returns the timer for tests.
func (a *Agent) HandleFocus() *time.Timer {
	return time.AfterFunc(a.opts.FocusDelay, func() {
		a.mu.Lock()
		saved := a.saved
		stopped := a.stopped
		a.mu.Unlock()
		if stopped || !a.Built() {
			return
		}
		if saved != nil && a.surface.SetSelection(*saved) {
			return
		}
		a.surface.Focus()
	})
}

// HandleScroll reports the scroll offset, at most once per
// ScrollInterval. A scroll inside the interval schedules one trailing
// report so the final position is never lost.
func (a *Agent) HandleScroll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.limiter.Allow() {
		go a.reportScroll()
		return
	}
	if a.trailing != nil {
		return
	}
	delay := a.limiter.Reserve().Delay()
	a.trailing = time.AfterFunc(delay, func() {
		a.mu.Lock()
		a.trailing = nil
		a.mu.Unlock()
		a.reportScroll()
	})
}

func (a *Agent) reportScroll() {
	c, ok := findContainer(a.surface)
	if !ok {
		return
	}
	a.emit(channel.Scroll{ScrollTop: c.ScrollTop() - a.opts.HeaderOffset})
}

// restoreScroll polls for a scroll container and moves it to top.
func (a *Agent) restoreScroll(ctx context.Context, top float64) {
	ticker := time.NewTicker(a.opts.ContainerInterval)
	defer ticker.Stop()
	for i := 0; i < a.opts.ContainerAttempts; i++ {
		if c, ok := findContainer(a.surface); ok {
			c.SetScrollTop(top + a.opts.HeaderOffset)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	a.logger.Debug("no scroll container after %d attempts", a.opts.ContainerAttempts)
}

// HandleClick opens links clicked with Ctrl or Cmd held. It reports
// whether the click was consumed.
func (a *Agent) HandleClick(c Click) bool {
	if !c.Ctrl && !c.Meta {
		return false
	}
	url := linkTarget(c.Target)
	if url == "" {
		return false
	}
	a.emit(channel.OpenLink{URL: url})
	return true
}

func linkTarget(e Element) string {
	switch strings.ToUpper(e.Tag) {
	case "A":
		return e.Href
	case "IMG":
		if e.Parent != nil && strings.EqualFold(e.Parent.Tag, "A") && e.Parent.Href != "" {
			return e.Parent.Href
		}
		if strings.HasPrefix(e.Src, "http") {
			return e.Src
		}
	}
	return ""
}

// HandleKey intercepts editor shortcuts. It reports whether the event
// must not reach the editor: Ctrl+' is disabled and Ctrl/Cmd+S sends the
// content for an explicit save.
func (a *Agent) HandleKey(ev feature.KeyEvent) bool {
	switch {
	case ev.Ctrl && ev.Key == "'":
		return true
	case (ev.Ctrl || ev.Meta) && strings.EqualFold(ev.Key, "s") && !ev.Shift && !ev.Alt:
		a.emit(channel.DoSave{Content: a.surface.Value()})
		return true
	}
	return false
}

// RunCommand asks the host to execute a command, e.g. from the editor's
// context menu.
func (a *Agent) RunCommand(id string) {
	a.emit(channel.Command{ID: id})
}

// EditInHost asks the host to reopen the document in its text editor.
func (a *Agent) EditInHost(full bool) {
	a.emit(channel.EditInHost{Full: full})
}

// lookup resolves a dotted path in a nested settings map. A flat key
// containing the dots is also accepted.
func lookup(m map[string]any, path string) any {
	if v, ok := m[path]; ok {
		return v
	}
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[part]
	}
	return cur
}

func lookupBool(m map[string]any, path string) bool {
	b, _ := lookup(m, path).(bool)
	return b
}
