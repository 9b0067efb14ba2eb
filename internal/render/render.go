// Package render converts markdown to HTML for export and for checking what
// the editor surface will display.
//
// The surface loads images through a resource scheme of its own, so local
// image references in rendered HTML are rewritten by RewriteImages after
// rendering rather than by hooking into the renderer.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// DefaultResourcePrefix is the origin the surface serves local files from.
const DefaultResourcePrefix = "https://file+.vscode-resource.vscode-cdn.net/"

// Renderer renders markdown documents.
type Renderer struct {
	md     goldmark.Markdown
	prefix string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithResourcePrefix sets the prefix used for rewritten image sources.
// An empty prefix disables rewriting.
func WithResourcePrefix(prefix string) Option {
	return func(r *Renderer) {
		r.prefix = prefix
	}
}

// New creates a renderer with GitHub flavored markdown and generated
// heading ids.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			// Local file URLs are dropped by the safe renderer.
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		prefix: DefaultResourcePrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render converts src to an HTML fragment with local images rewritten.
func (r *Renderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out := buf.String()
	if r.prefix != "" {
		out = RewriteImages(out, r.prefix)
	}
	return out, nil
}

var imgSrc = regexp.MustCompile(`(<img\b[^>]*?\bsrc=")([^"]*)(")`)

// RewriteImages points local image sources in html at prefix. A source is
// local when it does not start with "http" and either uses the
// vscode-webview-resource scheme or contains a file:/// URL; the part
// after "file:///" is appended to prefix.
func RewriteImages(html, prefix string) string {
	return imgSrc.ReplaceAllStringFunc(html, func(tag string) string {
		m := imgSrc.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		src, ok := rewriteSource(m[2], prefix)
		if !ok {
			return tag
		}
		return m[1] + src + m[3]
	})
}

func rewriteSource(src, prefix string) (string, bool) {
	if strings.HasPrefix(src, "http") {
		return src, false
	}
	if !strings.HasPrefix(src, "vscode-webview-resource") && !strings.Contains(src, "file:///") {
		return src, false
	}
	_, rest, found := strings.Cut(src, "file:///")
	if !found {
		return src, false
	}
	return prefix + rest, true
}

// Heading is one outline entry.
type Heading struct {
	Level int
	Text  string
	ID    string
}

func (r *Renderer) parse(src []byte) ast.Node {
	return r.md.Parser().Parse(text.NewReader(src))
}

// Outline returns the document headings in order.
func (r *Renderer) Outline(src string) []Heading {
	source := []byte(src)
	var out []Heading
	_ = ast.Walk(r.parse(source), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		heading := Heading{Level: h.Level, Text: plainText(h, source)}
		if id, ok := h.AttributeString("id"); ok {
			if b, ok := id.([]byte); ok {
				heading.ID = string(b)
			}
		}
		out = append(out, heading)
		return ast.WalkSkipChildren, nil
	})
	return out
}

// Images returns the destinations of all images in src.
func (r *Renderer) Images(src string) []string {
	var out []string
	_ = ast.Walk(r.parse([]byte(src)), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if img, ok := n.(*ast.Image); ok && entering {
			out = append(out, string(img.Destination))
		}
		return ast.WalkContinue, nil
	})
	return out
}

func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		default:
			sb.WriteString(plainText(c, source))
		}
	}
	return sb.String()
}
