package asset

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

//go:embed scripts
var scripts embed.FS

// Helper saves the clipboard image to dest. The returned string follows
// the helper script protocol: the written path, "copied:<path>" when the
// clipboard holds a file reference, "no image", or "no xclip".
type Helper interface {
	SaveClipboardImage(ctx context.Context, dest string) (string, error)
}

// Helper script replies.
const (
	replyNoImage  = "no image"
	replyNoXclip  = "no xclip"
	replyCopiedAs = "copied:"
)

// Reply is a parsed helper reply.
type Reply struct {
	// Saved is the path the helper wrote the image to.
	Saved string
	// Copied is a file the clipboard referred to instead of image data.
	Copied string
}

// ParseReply interprets helper output.
func ParseReply(out string) (Reply, error) {
	out = strings.TrimSpace(out)
	switch {
	case out == "" || out == replyNoImage:
		return Reply{}, ErrNoImage
	case out == replyNoXclip:
		return Reply{}, ErrMissingHelper
	case strings.HasPrefix(out, replyCopiedAs):
		return Reply{Copied: strings.TrimPrefix(out, replyCopiedAs)}, nil
	default:
		return Reply{Saved: out}, nil
	}
}

// Paste stores the clipboard image for the document at docPath using h.
func (s *Store) Paste(ctx context.Context, docPath string, h Helper) (Target, error) {
	t, err := s.Target(docPath)
	if err != nil {
		return Target{}, err
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return Target{}, fmt.Errorf("create image dir: %w", err)
	}

	out, err := h.SaveClipboardImage(ctx, t.Path)
	if err != nil {
		return Target{}, fmt.Errorf("clipboard helper: %w", err)
	}
	reply, err := ParseReply(out)
	if err != nil {
		return Target{}, err
	}
	if reply.Copied != "" {
		if err := copyImage(reply.Copied, t.Path); err != nil {
			return Target{}, err
		}
	} else if reply.Saved != t.Path {
		s.logger.Debug("helper wrote %s, expected %s", reply.Saved, t.Path)
	}
	return s.fixExtension(t)
}

func copyImage(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copied file: %w", err)
	}
	if info.IsDir() {
		return ErrUnsupportedPaste
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write image: %w", err)
	}
	return out.Close()
}

// ScriptHelper runs the bundled platform script that dumps the clipboard
// image: xclip on Linux, AppleScript on macOS and PowerShell on Windows.
type ScriptHelper struct {
	// Dir receives the extracted scripts. Empty uses the user cache dir.
	Dir string

	once sync.Once
	path string
	err  error
}

func scriptName() string {
	switch runtime.GOOS {
	case "windows":
		return "pc.ps1"
	case "darwin":
		return "mac.applescript"
	default:
		return "linux.sh"
	}
}

func (h *ScriptHelper) extract() (string, error) {
	h.once.Do(func() {
		dir := h.Dir
		if dir == "" {
			cache, err := os.UserCacheDir()
			if err != nil {
				h.err = err
				return
			}
			dir = filepath.Join(cache, "mdsync")
		}
		name := scriptName()
		data, err := scripts.ReadFile("scripts/" + name)
		if err != nil {
			h.err = err
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			h.err = err
			return
		}
		h.path = filepath.Join(dir, name)
		h.err = os.WriteFile(h.path, data, 0o755)
	})
	return h.path, h.err
}

// SaveClipboardImage implements Helper.
func (h *ScriptHelper) SaveClipboardImage(ctx context.Context, dest string) (string, error) {
	script, err := h.extract()
	if err != nil {
		return "", fmt.Errorf("extract helper: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "powershell",
			"-noprofile", "-noninteractive", "-nologo", "-sta",
			"-executionpolicy", "unrestricted", "-windowstyle", "hidden",
			"-file", script, dest)
	case "darwin":
		cmd = exec.CommandContext(ctx, "osascript", script, dest)
	default:
		cmd = exec.CommandContext(ctx, "sh", script, dest)
	}
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
