package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { max-width: 860px; margin: 2em auto; padding: 0 1em; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; line-height: 1.6; }
pre { padding: 1em; overflow: auto; background: #f6f8fa; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d0d7de; padding: 4px 12px; }
img { max-width: 100%; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

type page struct {
	Title string
	Lang  string
	Body  template.HTML
}

// Export renders src as a standalone HTML page. Local images keep their
// original sources so the page works outside the editor.
func Export(title, lang, src string) ([]byte, error) {
	r := New(WithResourcePrefix(""))
	body, err := r.Render(src)
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = "en"
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page{Title: title, Lang: lang, Body: template.HTML(body)}); err != nil {
		return nil, fmt.Errorf("export %s: %w", title, err)
	}
	return buf.Bytes(), nil
}

// ExportPath returns the HTML file written next to the markdown file at
// path.
func ExportPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
}

// ExportFile writes src as an HTML page next to path and returns the
// written file.
func ExportFile(path, lang, src string) (string, error) {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	data, err := Export(title, lang, src)
	if err != nil {
		return "", err
	}
	out := ExportPath(path)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	return out, nil
}
