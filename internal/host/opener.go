package host

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// SystemOpener opens URLs and files with the platform handler.
type SystemOpener struct {
	// Editor is the command used for OpenLocal and OpenWith; empty uses
	// the platform handler.
	Editor string
}

func openCommand(ctx context.Context, target string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		return exec.CommandContext(ctx, "cmd", "/c", "start", "", target)
	case "darwin":
		return exec.CommandContext(ctx, "open", target)
	default:
		return exec.CommandContext(ctx, "xdg-open", target)
	}
}

func (o SystemOpener) OpenExternal(ctx context.Context, url string) error {
	if err := openCommand(ctx, url).Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return nil
}

func (o SystemOpener) OpenLocal(ctx context.Context, path string) error {
	if o.Editor != "" {
		return exec.CommandContext(ctx, o.Editor, path).Start()
	}
	return o.OpenExternal(ctx, path)
}

func (o SystemOpener) OpenWith(ctx context.Context, path, _ string, _ bool) error {
	return o.OpenLocal(ctx, path)
}

// Opened is one call recorded by RecordingOpener.
type Opened struct {
	Kind   string // "external", "local" or "with"
	Target string
	Editor string
	Beside bool
}

// RecordingOpener records open requests instead of acting on them.
type RecordingOpener struct {
	mu     sync.Mutex
	opened []Opened
}

func (o *RecordingOpener) record(op Opened) error {
	o.mu.Lock()
	o.opened = append(o.opened, op)
	o.mu.Unlock()
	return nil
}

func (o *RecordingOpener) OpenExternal(_ context.Context, url string) error {
	return o.record(Opened{Kind: "external", Target: url})
}

func (o *RecordingOpener) OpenLocal(_ context.Context, path string) error {
	return o.record(Opened{Kind: "local", Target: path})
}

func (o *RecordingOpener) OpenWith(_ context.Context, path, editor string, beside bool) error {
	return o.record(Opened{Kind: "with", Target: path, Editor: editor, Beside: beside})
}

// Opened returns the recorded requests.
func (o *RecordingOpener) Opened() []Opened {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Opened(nil), o.opened...)
}

var (
	_ Opener = SystemOpener{}
	_ Opener = (*RecordingOpener)(nil)
)
