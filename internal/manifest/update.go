package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ErrInvalidManifest is returned when the manifest is not a JSON object.
var ErrInvalidManifest = errors.New("manifest is not a valid JSON object")

// Error is a fatal manifest update failure.
type Error struct {
	Op   string // "read", "parse", "generate", "write"
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("manifest %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("manifest %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Summary counts the generated entries.
type Summary struct {
	Commands     int
	Keybindings  int
	TitleMenus   int
	ContextMenus int
	Properties   int
	Defaults     int
}

// Manifest paths replaced on every update.
const (
	pathCommands      = "contributes.commands"
	pathKeybindings   = "contributes.keybindings"
	pathTitleMenus    = "contributes.menus.editor/title"
	pathContextMenus  = "contributes.menus.editor/context"
	pathConfiguration = "contributes.configuration"
	pathDefaults      = "configurationDefaults"
)

var prettyOptions = &pretty.Options{Width: 80, Indent: "  "}

// Apply merges freshly generated sections into the manifest document and
// returns the formatted result. Applying to its own output is a no-op.
func (g *Generator) Apply(doc []byte) ([]byte, Summary, error) {
	var sum Summary
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, sum, ErrInvalidManifest
	}

	commands := g.Commands()
	keybindings := g.Keybindings()
	titleMenus := g.EditorTitleMenus()
	contextMenus := g.EditorContextMenus()
	schema := g.ConfigurationSchema()

	out := doc
	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		var raw []byte
		if raw, err = marshal(v); err != nil {
			return
		}
		out, err = sjson.SetRawBytes(out, path, raw)
	}

	set(pathCommands, commands)
	set(pathKeybindings, keybindings)
	set(pathTitleMenus, titleMenus)
	set(pathContextMenus, contextMenus)

	configPath := pathConfiguration
	cfg := gjson.GetBytes(out, configPath)
	switch {
	case cfg.IsArray():
		if len(cfg.Array()) == 0 {
			set(configPath, []map[string]string{{"title": g.opts.ConfigurationTitle}})
		}
		configPath += ".0"
	case !cfg.Exists():
		set(configPath+".title", g.opts.ConfigurationTitle)
	}
	set(configPath+".properties", schema)

	defaults, derr := g.mergeDefaults(gjson.GetBytes(out, pathDefaults))
	if derr != nil {
		return nil, sum, derr
	}
	set(pathDefaults, defaults)

	if err != nil {
		return nil, sum, err
	}

	sum = Summary{
		Commands:     len(commands),
		Keybindings:  len(keybindings),
		TitleMenus:   len(titleMenus),
		ContextMenus: len(contextMenus),
		Properties:   schema.Len(),
		Defaults:     defaults.Len(),
	}

	formatted := pretty.PrettyOptions(out, prettyOptions)
	formatted = append(bytes.TrimRight(formatted, "\n"), '\n')
	return formatted, sum, nil
}

// mergeDefaults keeps foreign configurationDefaults keys in place, replaces
// generated keys, drops stale keys in the generator's namespace, and
// appends new keys in generation order.
func (g *Generator) mergeDefaults(existing gjson.Result) (*Object[json.RawMessage], error) {
	gen := g.ConfigurationDefaults()
	merged := NewObject[json.RawMessage]()

	var err error
	if existing.IsObject() {
		existing.ForEach(func(k, v gjson.Result) bool {
			key := k.String()
			if val, ok := gen.Get(key); ok {
				var raw []byte
				if raw, err = marshal(val); err != nil {
					return false
				}
				merged.Set(key, raw)
				return true
			}
			if g.owns(key) {
				return true
			}
			merged.Set(key, json.RawMessage(v.Raw))
			return true
		})
	}
	if err != nil {
		return nil, err
	}

	for _, key := range gen.Keys() {
		if merged.Has(key) {
			continue
		}
		val, _ := gen.Get(key)
		raw, err := marshal(val)
		if err != nil {
			return nil, err
		}
		merged.Set(key, raw)
	}
	return merged, nil
}

// UpdatePackageManifest rewrites the manifest at path with freshly
// generated sections. Any failure is fatal for the build step.
func (g *Generator) UpdatePackageManifest(path string) (Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, &Error{Op: "read", Path: path, Err: err}
	}
	doc, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, &Error{Op: "read", Path: path, Err: err}
	}

	out, sum, err := g.Apply(doc)
	if err != nil {
		return Summary{}, &Error{Op: "parse", Path: path, Err: err}
	}

	if err := writeFileAtomic(path, out, info.Mode().Perm()); err != nil {
		return Summary{}, &Error{Op: "write", Path: path, Err: err}
	}
	return sum, nil
}

// Check reports whether the manifest at path already matches the
// generated output.
func (g *Generator) Check(path string) (bool, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return false, &Error{Op: "read", Path: path, Err: err}
	}
	out, _, err := g.Apply(doc)
	if err != nil {
		return false, &Error{Op: "parse", Path: path, Err: err}
	}
	return bytes.Equal(doc, out), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

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
	return os.Rename(tmpName, path)
}
