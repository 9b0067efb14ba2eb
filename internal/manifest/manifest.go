// Package manifest generates the extension contribution manifest from the
// feature registry.
//
// Generation is pure: every function derives its output from the registry
// and Options alone. UpdatePackageManifest merges the generated subtrees
// into a package.json without disturbing unrelated sections.
package manifest

import (
	"fmt"

	"github.com/dshills/mdsync/internal/feature"
)

// Options configure naming in the generated manifest.
type Options struct {
	// Product prefixes every command title ("<Product> | <Title>").
	Product string
	// Namespace is the configuration section, e.g. "vsc-markdown".
	Namespace string
	// Language is the language id gating keybindings and menus.
	Language string
	// ConfigurationTitle is used when the manifest has no configuration
	// block yet.
	ConfigurationTitle string
}

// DefaultOptions returns the options for the shipped extension.
func DefaultOptions() Options {
	return Options{
		Product:            "Palm Markdown",
		Namespace:          "vsc-markdown",
		Language:           "markdown",
		ConfigurationTitle: "Palm Markdown",
	}
}

// Command is a contributes.commands entry.
type Command struct {
	Command  string `json:"command"`
	Title    string `json:"title"`
	Icon     string `json:"icon,omitempty"`
	Category string `json:"category,omitempty"`
}

// Keybinding is a contributes.keybindings entry.
type Keybinding struct {
	Command string `json:"command"`
	Key     string `json:"key"`
	When    string `json:"when,omitempty"`
}

// MenuItem is an entry of a contributes.menus list.
type MenuItem struct {
	Command string `json:"command"`
	When    string `json:"when,omitempty"`
	Group   string `json:"group,omitempty"`
}

// ArrayItems describes the element type of an array setting.
type ArrayItems struct {
	Type             string   `json:"type"`
	Enum             []string `json:"enum"`
	EnumDescriptions []string `json:"enumDescriptions,omitempty"`
}

// Property is a configuration schema entry.
type Property struct {
	Type                string      `json:"type"`
	Description         string      `json:"description"`
	MarkdownDescription string      `json:"markdownDescription,omitempty"`
	Default             any         `json:"default"`
	Items               *ArrayItems `json:"items,omitempty"`
}

// Group ids of the editor context menu.
const (
	GroupFallback = "9_other"
)

var contextMenuGroups = map[feature.Category]string{
	feature.CategoryHeadings:   "1_headings",
	feature.CategoryFormatting: "2_formatting",
	feature.CategoryLists:      "3_lists",
	feature.CategoryTables:     "4_tables",
	feature.CategoryBlocks:     "5_blocks",
	feature.CategorySpecial:    "6_special",
	feature.CategoryText:       "7_text",
	feature.CategoryUtilities:  "8_utilities",
}

// ContextMenuGroup returns the menu group for a category.
func ContextMenuGroup(c feature.Category) string {
	if g, ok := contextMenuGroups[c]; ok {
		return g
	}
	return GroupFallback
}

// Generator derives manifest sections from a registry.
type Generator struct {
	reg  *feature.Registry
	opts Options
}

// New creates a generator.
func New(reg *feature.Registry, opts Options) *Generator {
	return &Generator{reg: reg, opts: opts}
}

// Options returns the generator options.
func (g *Generator) Options() Options {
	return g.opts
}

// Key returns the fully qualified setting key for a relative path.
func (g *Generator) Key(rel string) string {
	return g.opts.Namespace + "." + rel
}

// Setting keys relative to the namespace.
const (
	StatusBarItemsKey          = "statusBar.items"
	WebviewContextMenuItemsKey = "webviewContextMenu.items"
)

// FeatureKey returns the relative key of a per-feature toggle, e.g.
// "features.insertBold.enabled".
func FeatureKey(id, toggle string) string {
	return "features." + id + "." + toggle
}

// Per-feature toggle names.
const (
	ToggleEnabled        = "enabled"
	ToggleKeybinding     = "keybinding"
	ToggleCommandPalette = "commandPalette"
)

func (g *Generator) configRef(id, toggle string) string {
	return "config." + g.Key(FeatureKey(id, toggle))
}

// Commands returns one command per feature.
func (g *Generator) Commands() []Command {
	fs := g.reg.Features()
	out := make([]Command, 0, len(fs))
	for _, f := range fs {
		out = append(out, Command{
			Command:  f.Command,
			Title:    fmt.Sprintf("%s | %s", g.opts.Product, f.Title),
			Icon:     f.Icon,
			Category: string(f.Category),
		})
	}
	return out
}

// Keybindings returns one binding per feature with a shortcut. The when
// clause gates on text focus, language, and the feature's own enabled and
// keybinding toggles.
func (g *Generator) Keybindings() []Keybinding {
	out := make([]Keybinding, 0)
	for _, f := range g.reg.Features() {
		if !f.HasKeybinding() {
			continue
		}
		out = append(out, Keybinding{
			Command: f.Command,
			Key:     f.Keybinding,
			When: fmt.Sprintf("editorTextFocus && editorLangId == %s && %s && %s",
				g.opts.Language, g.configRef(f.ID, ToggleEnabled), g.configRef(f.ID, ToggleKeybinding)),
		})
	}
	return out
}

func (g *Generator) menuWhen(f feature.Feature) string {
	return fmt.Sprintf("resourceLangId == %s && %s", g.opts.Language, g.configRef(f.ID, ToggleEnabled))
}

// EditorTitleMenus returns editor/title entries.
func (g *Generator) EditorTitleMenus() []MenuItem {
	fs := g.reg.Where(feature.ShowInEditorTitle, false)
	out := make([]MenuItem, 0, len(fs))
	for _, f := range fs {
		out = append(out, MenuItem{Command: f.Command, When: g.menuWhen(f), Group: "navigation"})
	}
	return out
}

// EditorContextMenus returns editor/context entries grouped by category.
func (g *Generator) EditorContextMenus() []MenuItem {
	fs := g.reg.Where(feature.ShowInEditorContextMenu, false)
	out := make([]MenuItem, 0, len(fs))
	for _, f := range fs {
		out = append(out, MenuItem{Command: f.Command, When: g.menuWhen(f), Group: ContextMenuGroup(f.Category)})
	}
	return out
}

func (g *Generator) orderedSetting(k feature.ShowKey, description, markdown string) Property {
	eligible := g.reg.Where(k, false)
	titles := make([]string, len(eligible))
	for i, f := range eligible {
		titles[i] = f.Title
	}
	return Property{
		Type:                "array",
		Description:         description,
		MarkdownDescription: markdown,
		Default:             feature.IDs(g.reg.Where(k, true)),
		Items: &ArrayItems{
			Type:             "string",
			Enum:             feature.IDs(eligible),
			EnumDescriptions: titles,
		},
	}
}

// ConfigurationSchema returns contributes.configuration.properties.
func (g *Generator) ConfigurationSchema() *Object[Property] {
	schema := NewObject[Property]()

	schema.Set(g.Key(StatusBarItemsKey), g.orderedSetting(feature.ShowInStatusBar,
		"Order and visibility of status bar buttons",
		"Configure which formatting buttons appear in the status bar and their order."))
	schema.Set(g.Key(WebviewContextMenuItemsKey), g.orderedSetting(feature.ShowInWebviewContextMenu,
		"Order and visibility of editor context menu items",
		"Configure which formatting options appear in the editor right-click menu and their order."))

	for _, f := range g.reg.Features() {
		schema.Set(g.Key(FeatureKey(f.ID, ToggleEnabled)), Property{
			Type:                "boolean",
			Description:         "Enable feature: " + f.Title,
			MarkdownDescription: fmt.Sprintf("Master switch to enable/disable **%s** completely", f.Title),
			Default:             f.EnabledByDefault,
		})
		kb := Property{
			Type:        "boolean",
			Description: "Enable keyboard shortcut for: " + f.Title,
			Default:     f.EnabledByDefault,
		}
		if f.HasKeybinding() {
			kb.MarkdownDescription = fmt.Sprintf("Enable the keyboard shortcut **%s** for %s", f.Keybinding, f.Title)
		}
		schema.Set(g.Key(FeatureKey(f.ID, ToggleKeybinding)), kb)
		schema.Set(g.Key(FeatureKey(f.ID, ToggleCommandPalette)), Property{
			Type:                "boolean",
			Description:         "Show in command palette: " + f.Title,
			MarkdownDescription: fmt.Sprintf("Control whether **%s** appears in the command palette", f.Title),
			Default:             f.EnabledByDefault,
		})
	}
	return schema
}

// ConfigurationDefaults mirrors the schema defaults.
func (g *Generator) ConfigurationDefaults() *Object[any] {
	defaults := NewObject[any]()
	defaults.Set(g.Key(StatusBarItemsKey), feature.IDs(g.reg.Where(feature.ShowInStatusBar, true)))
	defaults.Set(g.Key(WebviewContextMenuItemsKey), feature.IDs(g.reg.Where(feature.ShowInWebviewContextMenu, true)))
	for _, f := range g.reg.Features() {
		defaults.Set(g.Key(FeatureKey(f.ID, ToggleEnabled)), f.EnabledByDefault)
		defaults.Set(g.Key(FeatureKey(f.ID, ToggleKeybinding)), f.EnabledByDefault)
		defaults.Set(g.Key(FeatureKey(f.ID, ToggleCommandPalette)), f.EnabledByDefault)
	}
	return defaults
}

// owns reports whether a configurationDefaults key belongs to the
// generator's namespace, i.e. whether a missing regenerated value means
// the key is stale.
func (g *Generator) owns(key string) bool {
	switch key {
	case g.Key(StatusBarItemsKey), g.Key(WebviewContextMenuItemsKey):
		return true
	}
	prefix := g.Key("features.")
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
