package config

import (
	"fmt"
	"slices"

	"github.com/dshills/mdsync/internal/logging"
	"github.com/dshills/mdsync/internal/manifest"
)

// Settings outside the extension namespace.
const (
	KeyLogLevel             = "logging.level"
	KeyTheme                = "ui.theme"
	KeyLanguage             = "ui.language"
	KeyScrollBeyondLastLine = "editor.scrollBeyondLastLine"
)

// Editor settings relative to the extension namespace.
const (
	RelImagePath          = "pasterImgPath"
	RelWorkspaceImageBase = "workspacePathAsImageBasePath"
	RelHideToolbar        = "hideToolbar"
	RelOpenOutline        = "openOutline"
	RelPreviewCode        = "previewCode"
	RelCodeLineNumbers    = "previewCodeHighlight.showLineNumber"
)

// DefaultImagePath is the template for pasted image locations.
// ${fileName} is the document name without extension and ${now} a
// millisecond timestamp.
const DefaultImagePath = "image/${fileName}/${now}.png"

// Theme kinds.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

func builtinDefaults(namespace string) map[string]any {
	d := make(map[string]any)
	setByPath(d, KeyLogLevel, "info")
	setByPath(d, KeyTheme, ThemeDark)
	setByPath(d, KeyLanguage, "en")
	setByPath(d, KeyScrollBeyondLastLine, true)

	ns := func(rel string) string { return namespace + "." + rel }
	setByPath(d, ns(RelImagePath), DefaultImagePath)
	setByPath(d, ns(RelWorkspaceImageBase), false)
	setByPath(d, ns(RelHideToolbar), false)
	setByPath(d, ns(RelOpenOutline), true)
	setByPath(d, ns(RelPreviewCode), true)
	setByPath(d, ns(RelCodeLineNumbers), false)
	return d
}

// Validate checks value against the generated schema for path, or against
// the type of the built-in default when the schema does not cover it.
// Paths with neither are accepted.
func (c *Config) Validate(path string, value any) error {
	value = normalize(value)
	if prop, ok := c.schema.Get(path); ok {
		return validateProperty(path, prop, value)
	}
	def, ok := c.defaults[path]
	if !ok {
		return nil
	}
	if want, got := typeName(def), typeName(value); want != got {
		return &ValidationError{Path: path, Message: "expected " + want, Value: value}
	}
	return nil
}

func validateProperty(path string, prop manifest.Property, value any) error {
	switch prop.Type {
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &ValidationError{Path: path, Message: "expected boolean", Value: value}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return &ValidationError{Path: path, Message: "expected string", Value: value}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return &ValidationError{Path: path, Message: "expected array", Value: value}
		}
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return &ValidationError{Path: path, Message: "expected array of strings", Value: value}
			}
			if prop.Items != nil && !slices.Contains(prop.Items.Enum, s) {
				return &ValidationError{Path: path, Message: fmt.Sprintf("unknown item %q", s), Value: value}
			}
			if seen[s] {
				return &ValidationError{Path: path, Message: fmt.Sprintf("duplicate item %q", s), Value: value}
			}
			seen[s] = true
		}
	}
	return nil
}

func (c *Config) boolOr(path string, def bool) bool {
	b, err := c.GetBool(path)
	if err != nil {
		return def
	}
	return b
}

func (c *Config) stringOr(path, def string) string {
	s, err := c.GetString(path)
	if err != nil || s == "" {
		return def
	}
	return s
}

func (c *Config) toggle(id, name string) bool {
	return c.boolOr(c.Key(manifest.FeatureKey(id, name)), false)
}

// FeatureEnabled reports the master switch of feature id. Unknown ids are
// disabled.
func (c *Config) FeatureEnabled(id string) bool {
	return c.toggle(id, manifest.ToggleEnabled)
}

// KeybindingEnabled reports whether the shortcut of feature id is live:
// both the feature and its keybinding toggle are on.
func (c *Config) KeybindingEnabled(id string) bool {
	return c.FeatureEnabled(id) && c.toggle(id, manifest.ToggleKeybinding)
}

// CommandPalette reports whether feature id is listed in the command
// palette.
func (c *Config) CommandPalette(id string) bool {
	return c.FeatureEnabled(id) && c.toggle(id, manifest.ToggleCommandPalette)
}

// StatusBarItems returns the configured status-bar order.
func (c *Config) StatusBarItems() []string {
	items, _ := c.GetStringSlice(c.Key(manifest.StatusBarItemsKey))
	return items
}

// WebviewContextMenuItems returns the configured editor context-menu order.
func (c *Config) WebviewContextMenuItems() []string {
	items, _ := c.GetStringSlice(c.Key(manifest.WebviewContextMenuItemsKey))
	return items
}

// Theme returns the color theme kind, ThemeDark or ThemeLight.
func (c *Config) Theme() string {
	if c.stringOr(KeyTheme, ThemeDark) == ThemeLight {
		return ThemeLight
	}
	return ThemeDark
}

// Language returns the display language.
func (c *Config) Language() string {
	return c.stringOr(KeyLanguage, "en")
}

// ScrollBeyondLastLine mirrors the editor preference.
func (c *Config) ScrollBeyondLastLine() bool {
	return c.boolOr(KeyScrollBeyondLastLine, true)
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.stringOr(KeyLogLevel, "info"))
}

// ImagePathTemplate returns the template for pasted image files.
func (c *Config) ImagePathTemplate() string {
	return c.stringOr(c.Key(RelImagePath), DefaultImagePath)
}

// WorkspaceImageBase reports whether relative image paths resolve against
// the workspace root instead of the document directory.
func (c *Config) WorkspaceImageBase() bool {
	return c.boolOr(c.Key(RelWorkspaceImageBase), false)
}
