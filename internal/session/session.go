package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dshills/mdsync/internal/asset"
	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/logging"
)

// ScrollKeyPrefix prefixes the memento key holding a document's scroll
// offset.
const ScrollKeyPrefix = "scrollTop_"

// resourceLink matches the origin the surface serves local files from.
var resourceLink = regexp.MustCompile(`(?i)https://file.*\.net`)

// Session is one document bound to one editor surface.
type Session struct {
	id     string
	c      *Controller
	doc    host.Document
	ch     *channel.Channel
	logger *logging.Logger
	roots  []string

	mu             sync.Mutex
	state          State
	snapshot       string
	lastManualSave time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Document returns the bound document.
func (s *Session) Document() host.Document { return s.doc }

// ResourceRoots returns the directories the surface may load files from.
func (s *Session) ResourceRoots() []string {
	return append([]string(nil), s.roots...)
}

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return
	}
	if s.state != st {
		s.logger.Debug("state %s -> %s", s.state, st)
	}
	s.state = st
}

// Snapshot returns the last content known to both sides.
func (s *Session) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) setSnapshot(content string) {
	s.mu.Lock()
	s.snapshot = content
	s.mu.Unlock()
	if s.c.dispatcher.Active() == s {
		s.c.status.UpdateCount(content)
	}
}

// recentManualSave reports whether an explicit save happened within the
// echo window.
func (s *Session) recentManualSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastManualSave.IsZero() && s.c.now().Sub(s.lastManualSave) < s.c.opts.EchoWindow
}

func (s *Session) scrollKey() string {
	return ScrollKeyPrefix + s.doc.Path()
}

// SetVisible moves an open session to Active or Background. It is a no-op
// before init and after disposal.
func (s *Session) SetVisible(visible bool) {
	if !s.State().Live() {
		return
	}
	if visible {
		s.c.activate(s)
	} else {
		s.c.background(s)
	}
}

// Close tears down the channel. The dispose handler runs before Close
// returns.
func (s *Session) Close() error {
	return s.ch.Close()
}

// Done is closed once the session's dispatch loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.ch.Done()
}

// Emit sends p to the surface.
func (s *Session) Emit(p channel.Payload) error {
	return s.ch.Emit(p)
}

func (s *Session) emit(p channel.Payload) {
	if err := s.ch.Emit(p); err != nil {
		s.logger.Debug("emit %s: %v", p.MessageType(), err)
	}
}

// fail surfaces a handler or transport failure to the user. The channel
// keeps running.
func (s *Session) fail(err error) {
	s.c.deps.Notifier.ShowError(err.Error())
}

func (s *Session) register() {
	s.ch.On(channel.TypeInit, s.handleInit).
		On(channel.TypeExternalUpdate, s.handleExternalUpdate).
		On(channel.TypeSave, s.handleSave).
		On(channel.TypeDoSave, s.handleDoSave).
		On(channel.TypeScroll, s.handleScroll).
		On(channel.TypeCommand, s.handleCommand).
		On(channel.TypeOpenLink, s.handleOpenLink).
		On(channel.TypeImg, s.handleImg).
		On(channel.TypeEditInHost, s.handleEditInHost).
		On(channel.TypeFileChange, s.handleFileChange).
		On(channel.TypeDispose, s.handleDispose)
}

func (s *Session) handleInit(_ context.Context, _ channel.Payload) error {
	cfg := s.c.deps.Config
	path := s.doc.Path()

	title := filepath.Base(path)
	if path == "" {
		title = s.doc.URI()
	}
	base := filepath.Dir(path)
	if cfg.WorkspaceImageBase() {
		if ws := s.c.workspaceFolder(path); ws != "" {
			base = ws
		}
	}

	err := s.ch.Emit(channel.Open{
		Title:     title,
		Config:    s.c.surfaceConfig(),
		ScrollTop: host.Float(s.c.deps.Memento, s.scrollKey(), 0),
		Language:  cfg.Language(),
		RootPath:  resourceURL(s.c.deps.Env.ExtensionDir),
		BaseURL:   resourceURL(base),
		Theme:     cfg.Theme(),
		Content:   s.Snapshot(),
	})
	if err != nil {
		return err
	}
	s.setState(StateOpen)
	s.c.activate(s)
	return nil
}

func (s *Session) handleExternalUpdate(_ context.Context, p channel.Payload) error {
	content := normalizeNewlines(p.(channel.ExternalUpdate).Content)
	if content == s.Snapshot() {
		return nil
	}
	if s.recentManualSave() {
		s.logger.Debug("external update suppressed after manual save")
		return nil
	}
	s.setSnapshot(content)
	return s.ch.Emit(channel.Update{Content: content})
}

func (s *Session) handleSave(ctx context.Context, p channel.Payload) error {
	if s.recentManualSave() {
		s.logger.Debug("save suppressed after manual save")
		return nil
	}
	content := normalizeNewlines(p.(channel.Save).Content)
	s.setSnapshot(content)
	return s.doc.Replace(ctx, content)
}

func (s *Session) handleDoSave(ctx context.Context, p channel.Payload) error {
	content := normalizeNewlines(p.(channel.DoSave).Content)

	s.mu.Lock()
	s.lastManualSave = s.c.now()
	s.mu.Unlock()

	s.setSnapshot(content)
	if err := s.doc.Replace(ctx, content); err != nil {
		return err
	}
	return s.doc.Save(ctx)
}

func (s *Session) handleScroll(_ context.Context, p channel.Payload) error {
	top := p.(channel.Scroll).ScrollTop
	key := s.scrollKey()
	s.c.scroll.Trigger(key, func() {
		if err := s.c.deps.Memento.Update(key, top); err != nil {
			s.logger.Warn("persist scroll offset: %v", err)
		}
	})
	return nil
}

func (s *Session) handleCommand(ctx context.Context, p channel.Payload) error {
	id := p.(channel.Command).ID
	err := s.c.deps.Commands.Execute(ctx, id)
	if errors.Is(err, host.ErrUnknownCommand) {
		s.logger.Warn("%v", err)
		return nil
	}
	return err
}

func (s *Session) handleOpenLink(ctx context.Context, p channel.Payload) error {
	link := p.(channel.OpenLink).URL
	opener := s.c.deps.Opener

	if resourceLink.MatchString(link) {
		local := resourceLink.ReplaceAllString(link, "")
		if unescaped, err := url.PathUnescape(local); err == nil {
			local = unescaped
		}
		return opener.OpenLocal(ctx, filepath.FromSlash(local))
	}
	if local, ok := s.localTarget(link); ok {
		return opener.OpenLocal(ctx, local)
	}
	return opener.OpenExternal(ctx, link)
}

// localTarget resolves links without a network scheme against the
// document directory.
func (s *Session) localTarget(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return filepath.FromSlash(u.Path), true
	case "":
		if u.Path == "" {
			return "", false
		}
		p := filepath.FromSlash(u.Path)
		if !filepath.IsAbs(p) && s.doc.Path() != "" {
			p = filepath.Join(filepath.Dir(s.doc.Path()), p)
		}
		return p, true
	}
	return "", false
}

func (s *Session) handleImg(ctx context.Context, p channel.Payload) error {
	img := p.(channel.Img)
	t, err := s.c.imageStore(s.doc.Path()).Save(s.doc.Path(), img.Data)
	if err != nil {
		s.c.deps.Notifier.ShowError(fmt.Sprintf("Save image: %v", err))
		return nil
	}
	return s.c.insertImageLink(ctx, t)
}

func (s *Session) handleEditInHost(ctx context.Context, p channel.Payload) error {
	full := p.(channel.EditInHost).Full
	return s.c.deps.Opener.OpenWith(ctx, s.doc.Path(), host.EditorDefault, !full)
}

func (s *Session) handleFileChange(ctx context.Context, p channel.Payload) error {
	fc := p.(channel.FileChange)
	r, ok := s.doc.(host.Reloader)
	if !ok {
		s.logger.Debug("ignoring %s of %s", fc.Op, fc.Path)
		return nil
	}
	// A changed document notifies its listeners, which posts externalUpdate.
	changed, err := r.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload %s: %w", fc.Path, err)
	}
	if !changed {
		s.logger.Debug("%s of %s left content unchanged", fc.Op, fc.Path)
	}
	return nil
}

func (s *Session) handleDispose(context.Context, channel.Payload) error {
	s.setState(StateDisposed)
	s.c.scroll.FlushKey(s.scrollKey())
	s.c.remove(s)
	s.logger.Debug("disposed")
	return nil
}

// normalizeNewlines drops carriage returns.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r", "")
}

// insertImageLink copies the markdown reference for t to the clipboard and
// pastes it through the host.
func (c *Controller) insertImageLink(ctx context.Context, t asset.Target) error {
	if err := c.deps.Clipboard.WriteText(t.Markdown()); err != nil {
		return fmt.Errorf("copy image link: %w", err)
	}
	err := c.deps.Commands.Execute(ctx, host.CommandClipboardPaste)
	if errors.Is(err, host.ErrUnknownCommand) {
		c.deps.Notifier.ShowInfo(fmt.Sprintf("Image saved to %s; link copied to clipboard.", t.Link))
		return nil
	}
	return err
}
