// Package host defines the collaborators the editor integration needs from
// the host application, along with in-memory and file-backed
// implementations.
//
// The session layer talks to the host only through these interfaces: a
// text Document, a persisted Memento, a Commands registry, a Notifier for
// user-visible messages, an Opener for external links and editors, and a
// Clipboard.
package host

import (
	"context"
	"errors"
)

// Errors returned by host implementations.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrCommandExists  = errors.New("command already registered")
	ErrDocumentClosed = errors.New("document closed")
	ErrClipboardEmpty = errors.New("clipboard is empty")
)

// Document is a host text document.
type Document interface {
	// URI identifies the document, e.g. "file:///notes/a.md".
	URI() string
	// Path is the file-system path; empty for untitled documents.
	Path() string
	// Text returns the current contents.
	Text() string
	// Replace applies a full-range replacement of the contents.
	Replace(ctx context.Context, text string) error
	// Save persists the contents.
	Save(ctx context.Context) error
	// OnDidChange registers fn for content changes. Edits that leave the
	// text unchanged are not reported.
	OnDidChange(fn func(text string)) (cancel func())
}

// Reloader is implemented by documents that can re-read their backing
// file.
type Reloader interface {
	// Reload re-reads the file and reports whether the text changed.
	Reload(ctx context.Context) (bool, error)
}

// Memento is a small persisted key-value store scoped to a workspace.
type Memento interface {
	Get(key string) (any, bool)
	Update(key string, value any) error
}

// Notifier shows messages to the user.
type Notifier interface {
	ShowError(msg string)
	ShowInfo(msg string)
}

// Opener opens resources outside the embedded editor.
type Opener interface {
	// OpenExternal hands a URL to the system handler.
	OpenExternal(ctx context.Context, url string) error
	// OpenLocal opens a local file inside the host.
	OpenLocal(ctx context.Context, path string) error
	// OpenWith opens path in the named editor. Beside opens next to the
	// current editor rather than replacing it.
	OpenWith(ctx context.Context, path, editor string, beside bool) error
}

// Clipboard is the system clipboard.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// Environment describes the host process.
type Environment struct {
	// WorkspaceFolders are the open workspace roots.
	WorkspaceFolders []string
	// ExtensionDir is the directory holding the surface assets.
	ExtensionDir string
}

// Well-known host command ids.
const (
	CommandOpen           = "vscode.open"
	CommandOpenWith       = "vscode.openWith"
	CommandSaveFile       = "workbench.action.files.save"
	CommandClipboardPaste = "editor.action.clipboardPasteAction"
)

// Editor ids accepted by OpenWith.
const (
	EditorDefault = "default"
)
