package host

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// listeners is a set of change callbacks.
type listeners struct {
	mu   sync.Mutex
	next int
	byID map[int]func(string)
}

func (l *listeners) add(fn func(string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byID == nil {
		l.byID = make(map[int]func(string))
	}
	l.next++
	id := l.next
	l.byID[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.byID, id)
		l.mu.Unlock()
	}
}

func (l *listeners) notify(text string) {
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.byID))
	for _, fn := range l.byID {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(text)
	}
}

func (l *listeners) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}

// FileURI returns the file URI for path.
func FileURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// MemoryDocument is an in-memory Document. It records saves.
type MemoryDocument struct {
	path string

	mu     sync.Mutex
	text   string
	saves  int
	edits  int
	subs   listeners
	failOn map[string]error
}

// NewMemoryDocument creates a document at path with text.
func NewMemoryDocument(path, text string) *MemoryDocument {
	return &MemoryDocument{path: path, text: text}
}

func (d *MemoryDocument) URI() string  { return FileURI(d.path) }
func (d *MemoryDocument) Path() string { return d.path }

func (d *MemoryDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Replace sets the text and notifies listeners if it changed.
func (d *MemoryDocument) Replace(_ context.Context, text string) error {
	d.mu.Lock()
	if err := d.failOn["replace"]; err != nil {
		d.mu.Unlock()
		return err
	}
	changed := d.text != text
	d.text = text
	d.edits++
	d.mu.Unlock()

	if changed {
		d.subs.notify(text)
	}
	return nil
}

// Save records a save.
func (d *MemoryDocument) Save(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failOn["save"]; err != nil {
		return err
	}
	d.saves++
	return nil
}

// OnDidChange registers fn for text changes.
func (d *MemoryDocument) OnDidChange(fn func(string)) func() {
	return d.subs.add(fn)
}

// SetFailure makes op ("replace" or "save") fail with err; nil clears it.
func (d *MemoryDocument) SetFailure(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn == nil {
		d.failOn = make(map[string]error)
	}
	d.failOn[op] = err
}

// Saves returns the number of successful saves.
func (d *MemoryDocument) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

// Edits returns the number of Replace calls.
func (d *MemoryDocument) Edits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edits
}

// Listeners returns the number of change subscriptions.
func (d *MemoryDocument) Listeners() int {
	return d.subs.count()
}

// FileDocument is a Document backed by a file on disk. Replace edits the
// in-memory text; Save writes it back.
type FileDocument struct {
	path string
	perm os.FileMode

	mu    sync.Mutex
	text  string
	disk  string
	dirty bool
	subs  listeners
}

// OpenFile loads the document at path.
func OpenFile(path string) (*FileDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	return &FileDocument{
		path: abs,
		perm: info.Mode().Perm(),
		text: string(data),
		disk: string(data),
	}, nil
}

func (d *FileDocument) URI() string  { return FileURI(d.path) }
func (d *FileDocument) Path() string { return d.path }

func (d *FileDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Dirty reports whether there are unsaved edits.
func (d *FileDocument) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Replace sets the in-memory text.
func (d *FileDocument) Replace(_ context.Context, text string) error {
	d.mu.Lock()
	changed := d.text != text
	d.text = text
	d.dirty = d.text != d.disk
	d.mu.Unlock()

	if changed {
		d.subs.notify(text)
	}
	return nil
}

// Save writes the text to disk through a temporary file.
func (d *FileDocument) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeFileAtomic(d.path, []byte(d.text), d.perm); err != nil {
		return err
	}
	d.disk = d.text
	d.dirty = false
	return nil
}

// Reload re-reads the file. Unsaved edits win over the disk contents.
func (d *FileDocument) Reload(context.Context) (bool, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	disk := string(data)
	if disk == d.disk || d.dirty {
		d.disk = disk
		d.mu.Unlock()
		return false, nil
	}
	d.disk = disk
	changed := d.text != disk
	d.text = disk
	d.mu.Unlock()

	if changed {
		d.subs.notify(disk)
	}
	return changed, nil
}

// OnDidChange registers fn for text changes.
func (d *FileDocument) OnDidChange(fn func(string)) func() {
	return d.subs.add(fn)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}

var (
	_ Document = (*MemoryDocument)(nil)
	_ Document = (*FileDocument)(nil)
	_ Reloader = (*FileDocument)(nil)
)
