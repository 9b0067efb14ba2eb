// Package asset stores images pasted or dropped into a markdown document.
//
// Image locations come from a path template evaluated against the
// document; the extension of a written file is corrected to match the
// detected image format.
package asset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Formats recognized by Detect.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dshills/mdsync/internal/logging"
)

// Errors returned by the store.
var (
	ErrUntitled         = errors.New("document has no file path")
	ErrEmptyImage       = errors.New("image is empty")
	ErrUnknownFormat    = errors.New("unknown image format")
	ErrNoImage          = errors.New("there is not an image in the clipboard")
	ErrMissingHelper    = errors.New("you need to install xclip command first")
	ErrUnsupportedPaste = errors.New("pasting a directory is not supported")
)

// DefaultTemplate places images beside the document, grouped per file.
const DefaultTemplate = "image/${fileName}/${now}.png"

// DefaultExt is used when the image format cannot be detected.
const DefaultExt = "png"

// Target is where an image for a document goes.
type Target struct {
	// Path is the absolute file path.
	Path string
	// Link is the path written into the document, relative to the
	// document directory and slash separated.
	Link string
	// Name is the file name without extension, used as alt text.
	Name string
}

// Markdown returns the image reference for the target.
func (t Target) Markdown() string {
	return fmt.Sprintf("![%s](%s)", t.Name, t.Link)
}

// Store writes images next to documents.
type Store struct {
	template  string
	workspace string
	now       func() time.Time
	logger    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTemplate sets the path template. ${fileName} expands to the
// document name without extension and ${now} to a millisecond timestamp.
func WithTemplate(tmpl string) Option {
	return func(s *Store) {
		if tmpl != "" {
			s.template = tmpl
		}
	}
}

// WithWorkspaceBase resolves relative templates against dir instead of the
// document directory. An empty dir keeps the document directory.
func WithWorkspaceBase(dir string) Option {
	return func(s *Store) {
		s.workspace = dir
	}
}

// WithClock sets the time source for ${now}.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		template: DefaultTemplate,
		now:      time.Now,
		logger:   logging.Null(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target computes the image location for the document at docPath.
func (s *Store) Target(docPath string) (Target, error) {
	if docPath == "" {
		return Target{}, ErrUntitled
	}
	docName := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	rel := strings.NewReplacer(
		"${fileName}", docName,
		"${now}", strconv.FormatInt(s.now().UnixMilli(), 10),
	).Replace(s.template)
	rel = filepath.FromSlash(rel)

	docDir := filepath.Dir(docPath)
	full := rel
	if !filepath.IsAbs(rel) {
		base := docDir
		if s.workspace != "" {
			base = s.workspace
		}
		full = filepath.Join(base, rel)
	}
	full = filepath.Clean(full)

	link, err := filepath.Rel(docDir, full)
	if err != nil {
		link = full
	}
	return Target{
		Path: full,
		Link: filepath.ToSlash(link),
		Name: strings.TrimSuffix(filepath.Base(full), filepath.Ext(full)),
	}, nil
}

// Save writes data as the next image of the document at docPath and
// returns where it ended up.
func (s *Store) Save(docPath string, data []byte) (Target, error) {
	if len(data) == 0 {
		return Target{}, ErrEmptyImage
	}
	t, err := s.Target(docPath)
	if err != nil {
		return Target{}, err
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return Target{}, fmt.Errorf("create image dir: %w", err)
	}
	if err := os.WriteFile(t.Path, data, 0o644); err != nil {
		return Target{}, fmt.Errorf("write image: %w", err)
	}
	return s.fixExtension(t)
}

// fixExtension renames the file at t.Path so its extension matches the
// detected format.
func (s *Store) fixExtension(t Target) (Target, error) {
	ext := DefaultExt
	if format, err := DetectFile(t.Path); err == nil {
		ext = Extension(format)
	} else {
		s.logger.Debug("detect %s: %v", t.Path, err)
	}

	old := filepath.Ext(t.Path)
	if old == "."+ext {
		return t, nil
	}
	path := strings.TrimSuffix(t.Path, old) + "." + ext
	if err := os.Rename(t.Path, path); err != nil {
		return Target{}, fmt.Errorf("rename image: %w", err)
	}
	t.Path = path
	t.Link = strings.TrimSuffix(t.Link, old) + "." + ext
	return t, nil
}

// Detect returns the image format name of r, such as "png" or "webp".
func Detect(r io.Reader) (string, error) {
	_, format, err := image.DecodeConfig(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return format, nil
}

// DetectBytes is Detect over a byte slice.
func DetectBytes(data []byte) (string, error) {
	return Detect(bytes.NewReader(data))
}

// DetectFile is Detect over a file.
func DetectFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Detect(f)
}

// Extension maps a format name to the usual file extension.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return DefaultExt
	default:
		return format
	}
}
