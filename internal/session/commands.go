package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/mdsync/internal/asset"
	"github.com/dshills/mdsync/internal/channel"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/host"
	"github.com/dshills/mdsync/internal/render"
)

// Feature ids handled by the host instead of the surface.
const (
	FeatureSwitchEditor        = "switchEditor"
	FeaturePasteClipboardImage = "pasteClipboardImage"
	FeatureExportHTML          = "exportHtml"
)

// registerCommands registers one host command per feature.
func (c *Controller) registerCommands() error {
	cfg := c.deps.Config
	titles := make(map[string]string)
	for _, cmd := range cfg.Generator().Commands() {
		titles[cmd.Command] = cmd.Title
	}

	for _, f := range c.deps.Registry.Features() {
		unregister, err := c.deps.Commands.Register(f.Command,
			func(ctx context.Context, args ...any) error { return c.runFeature(ctx, f, args...) },
			host.WithTitle(titles[f.Command]),
			host.InPalette(cfg.CommandPalette(f.ID)),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", f.Command, err)
		}
		c.unregister = append(c.unregister, unregister)
	}
	return nil
}

func (c *Controller) unregisterCommands() {
	for _, fn := range c.unregister {
		fn()
	}
	c.unregister = nil
}

// syncPalette applies the command-palette toggles.
func (c *Controller) syncPalette() {
	for _, f := range c.deps.Registry.Features() {
		c.deps.Commands.SetPaletteVisible(f.Command, c.deps.Config.CommandPalette(f.ID))
	}
}

// runFeature executes feature f: fixed host actions first, then a
// delegated host command, then a surface command for the active session.
func (c *Controller) runFeature(ctx context.Context, f feature.Feature, args ...any) error {
	if !c.deps.Config.FeatureEnabled(f.ID) {
		c.logger.Debug("feature %s is disabled", f.ID)
		return nil
	}

	switch f.ID {
	case FeatureSwitchEditor:
		return c.switchEditor(ctx, args...)
	case FeaturePasteClipboardImage:
		return c.pasteClipboardImage(ctx)
	case FeatureExportHTML:
		return c.exportHTML()
	}

	if f.HostCommand != "" {
		err := c.deps.Commands.Execute(ctx, f.HostCommand)
		if errors.Is(err, host.ErrUnknownCommand) {
			c.logger.Warn("%s: %v", f.ID, err)
			return nil
		}
		return err
	}

	if f.Dispatch() == feature.DispatchNone {
		c.logger.Warn("feature %s has no action", f.ID)
		return nil
	}
	s := c.dispatcher.Active()
	if s == nil {
		c.logger.Debug("no active editor for %s", f.ID)
		return nil
	}
	cmd := channel.VditorCommand{Command: f.ID}
	if f.Dispatch() == feature.DispatchInsert {
		cmd.Insert = f.Insert
	} else {
		cmd.KeyEvent = f.KeyEvent
	}
	return s.Emit(cmd)
}

// switchEditor toggles between the rich editor and the plain text editor.
// With an active session the document reopens as text; otherwise the path
// passed as the first argument opens in the rich editor.
func (c *Controller) switchEditor(ctx context.Context, args ...any) error {
	if s := c.dispatcher.Active(); s != nil {
		return c.deps.Opener.OpenWith(ctx, s.doc.Path(), host.EditorDefault, false)
	}
	if len(args) > 0 {
		if path, ok := args[0].(string); ok && path != "" {
			return c.deps.Opener.OpenWith(ctx, path, c.deps.Config.Namespace(), false)
		}
	}
	c.logger.Debug("switchEditor: no document")
	return nil
}

// pasteClipboardImage pastes clipboard text as is, or stores a clipboard
// image next to the active document and pastes a link to it.
func (c *Controller) pasteClipboardImage(ctx context.Context) error {
	if text, err := c.deps.Clipboard.ReadText(); err == nil && text != "" {
		err := c.deps.Commands.Execute(ctx, host.CommandClipboardPaste)
		if errors.Is(err, host.ErrUnknownCommand) {
			return nil
		}
		return err
	}

	s := c.dispatcher.Active()
	if s == nil || s.doc.Path() == "" {
		return nil
	}
	t, err := c.imageStore(s.doc.Path()).Paste(ctx, s.doc.Path(), c.deps.ClipboardImage)
	switch {
	case errors.Is(err, asset.ErrNoImage):
		c.deps.Notifier.ShowError("There is not an image in the clipboard.")
		return nil
	case errors.Is(err, asset.ErrMissingHelper):
		c.deps.Notifier.ShowInfo("You need to install xclip command first.")
		return nil
	case errors.Is(err, asset.ErrUnsupportedPaste):
		c.deps.Notifier.ShowError("Pasting a directory is not supported.")
		return nil
	case err != nil:
		return err
	}
	return c.insertImageLink(ctx, t)
}

// exportHTML writes the active document as a standalone HTML page.
func (c *Controller) exportHTML() error {
	s := c.dispatcher.Active()
	if s == nil || s.doc.Path() == "" {
		return nil
	}
	out, err := render.ExportFile(s.doc.Path(), c.deps.Config.Language(), s.Snapshot())
	if err != nil {
		return err
	}
	c.deps.Notifier.ShowInfo("Exported to " + out)
	return nil
}
