package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// loadTOML reads a settings file. A missing file yields nil, nil.
func loadTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parseTOML(path, data)
}

// parseTOML decodes TOML into a nested map. Dotted keys and tables both
// produce nesting, so "a.b = 1" and "[a]\nb = 1" are equivalent.
func parseTOML(source string, data []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return nil, perr
	}
	if out == nil {
		out = make(map[string]any)
	}
	return normalize(out).(map[string]any), nil
}

// envLoader maps prefixed environment variables onto setting paths.
//
// A variable name is the prefix followed by the setting path upper-cased
// with '.' and '-' replaced by '_'. Paths inside the extension namespace
// may drop the namespace: with prefix "MDSYNC_" and namespace
// "vsc-markdown", both MDSYNC_VSC_MARKDOWN_HIDETOOLBAR and
// MDSYNC_HIDETOOLBAR set "vsc-markdown.hideToolbar".
type envLoader struct {
	prefix    string
	namespace string
	mapping   map[string]string
}

func newEnvLoader(prefix, namespace string) *envLoader {
	return &envLoader{
		prefix:    prefix,
		namespace: namespace,
		mapping: map[string]string{
			prefix + "LOG_LEVEL": KeyLogLevel,
			prefix + "THEME":     KeyTheme,
			prefix + "LANGUAGE":  KeyLanguage,
		},
	}
}

func envName(path string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return strings.ToUpper(r.Replace(path))
}

// load returns the settings found in environ along with the names of
// prefixed variables that matched no known setting. known holds the
// flattened default values, used for name resolution and to decide how
// to parse each value.
func (l *envLoader) load(environ []string, known map[string]any) (map[string]any, []string) {
	index := make(map[string]string, len(known)*2)
	for path := range known {
		index[l.prefix+envName(path)] = path
		if rel, ok := strings.CutPrefix(path, l.namespace+"."); ok {
			index[l.prefix+envName(rel)] = path
		}
	}
	for name, path := range l.mapping {
		index[name] = path
	}

	out := make(map[string]any)
	var unknown []string
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, ok := index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		setByPath(out, path, parseEnvValue(value, known[path]))
	}
	return out, unknown
}

// parseEnvValue converts s to the type of like when possible, falling
// back to inference.
func parseEnvValue(s string, like any) any {
	switch like.(type) {
	case string:
		return s
	case []any:
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			break
		}
		out := make([]any, 0)
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}

	if s == "" {
		return s
	}

	lower := strings.ToLower(s)
	switch lower {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}

	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return normalize(v)
		}
	}
	return s
}
