// Package feature holds the markdown editing feature table.
//
// The table is the single source of truth for commands, keybindings, menus,
// status-bar buttons and configuration. It is read-only after loading; all
// accessors return copies or empty values and never fail.
package feature

// Category groups related features. The set is closed.
type Category string

// Known categories.
const (
	CategoryHeadings   Category = "headings"
	CategoryFormatting Category = "formatting"
	CategoryLists      Category = "lists"
	CategoryBlocks     Category = "blocks"
	CategoryTables     Category = "tables"
	CategoryUtilities  Category = "utilities"
	CategoryText       Category = "text"
	CategorySpecial    Category = "special"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryHeadings,
	CategoryFormatting,
	CategoryLists,
	CategoryBlocks,
	CategoryTables,
	CategorySpecial,
	CategoryUtilities,
	CategoryText,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CategoryMeta is the display metadata of a category.
type CategoryMeta struct {
	Name string
	Icon string
}

var categoryMeta = map[Category]CategoryMeta{
	CategoryHeadings:   {Name: "Headings", Icon: "$(heading)"},
	CategoryFormatting: {Name: "Text Formatting", Icon: "$(bold)"},
	CategoryLists:      {Name: "Lists", Icon: "$(list-unordered)"},
	CategoryBlocks:     {Name: "Blocks", Icon: "$(quote)"},
	CategoryTables:     {Name: "Tables", Icon: "$(table)"},
	CategorySpecial:    {Name: "Special Elements", Icon: "$(symbol-misc)"},
	CategoryUtilities:  {Name: "Utilities", Icon: "$(tools)"},
	CategoryText:       {Name: "Text Conversion", Icon: "$(symbol-text)"},
}

// Meta returns the display metadata for c. Unknown categories get their
// raw name and no icon.
func (c Category) Meta() CategoryMeta {
	if m, ok := categoryMeta[c]; ok {
		return m
	}
	return CategoryMeta{Name: string(c)}
}

// KeyEvent describes a synthetic keyboard event dispatched inside the
// editor surface.
type KeyEvent struct {
	Key        string `yaml:"key" json:"key"`
	Code       string `yaml:"code" json:"code"`
	Ctrl       bool   `yaml:"ctrlKey,omitempty" json:"ctrlKey,omitempty"`
	Alt        bool   `yaml:"altKey,omitempty" json:"altKey,omitempty"`
	Shift      bool   `yaml:"shiftKey,omitempty" json:"shiftKey,omitempty"`
	Meta       bool   `yaml:"metaKey,omitempty" json:"metaKey,omitempty"`
	Bubbles    bool   `yaml:"bubbles,omitempty" json:"bubbles,omitempty"`
	Cancelable bool   `yaml:"cancelable,omitempty" json:"cancelable,omitempty"`
}

// ShowKey selects one of the independent visibility flags.
type ShowKey int

const (
	// ShowInEditorTitle places the command in the editor title bar.
	ShowInEditorTitle ShowKey = iota
	// ShowInEditorContextMenu places the command in the text editor context menu.
	ShowInEditorContextMenu
	// ShowInStatusBar makes the feature eligible for a status-bar button.
	ShowInStatusBar
	// ShowInWebviewContextMenu makes the feature eligible for the embedded
	// editor's context menu.
	ShowInWebviewContextMenu
)

// String returns the flag's field name.
func (k ShowKey) String() string {
	switch k {
	case ShowInEditorTitle:
		return "showInEditorTitle"
	case ShowInEditorContextMenu:
		return "showInEditorContextMenu"
	case ShowInStatusBar:
		return "showInStatusBar"
	case ShowInWebviewContextMenu:
		return "showInWebviewContextMenu"
	default:
		return "unknown"
	}
}

// Feature is one editing capability.
type Feature struct {
	ID         string    `yaml:"id"`
	Command    string    `yaml:"command"`
	Title      string    `yaml:"title"`
	Category   Category  `yaml:"category"`
	Icon       string    `yaml:"icon"`
	Text       string    `yaml:"text,omitempty"`
	Keybinding string    `yaml:"keybinding,omitempty"`
	KeyEvent   *KeyEvent `yaml:"keyEvent,omitempty"`

	// Insert names a direct text insertion performed by the editor
	// surface. It takes precedence over KeyEvent.
	Insert string `yaml:"insert,omitempty"`

	// HostCommand delegates the feature to an existing host command.
	HostCommand string `yaml:"hostCommand,omitempty"`

	Weight           int  `yaml:"weight"`
	EnabledByDefault bool `yaml:"enabledByDefault"`

	ShowInEditorTitle        bool `yaml:"showInEditorTitle,omitempty"`
	ShowInEditorContextMenu  bool `yaml:"showInEditorContextMenu,omitempty"`
	ShowInStatusBar          bool `yaml:"showInStatusBar,omitempty"`
	ShowInWebviewContextMenu bool `yaml:"showInWebviewContextMenu,omitempty"`
}

// Shows reports whether the given visibility flag is set.
func (f Feature) Shows(k ShowKey) bool {
	switch k {
	case ShowInEditorTitle:
		return f.ShowInEditorTitle
	case ShowInEditorContextMenu:
		return f.ShowInEditorContextMenu
	case ShowInStatusBar:
		return f.ShowInStatusBar
	case ShowInWebviewContextMenu:
		return f.ShowInWebviewContextMenu
	default:
		return false
	}
}

// HasKeybinding reports whether the feature declares a shortcut.
func (f Feature) HasKeybinding() bool {
	return f.Keybinding != ""
}

// Label returns the status-bar label: Text, then Icon, then Title.
func (f Feature) Label() string {
	switch {
	case f.Text != "":
		return f.Text
	case f.Icon != "":
		return f.Icon
	default:
		return f.Title
	}
}

// DispatchStyle reports how the editor surface executes the feature.
type DispatchStyle int

const (
	// DispatchNone means the feature is handled entirely by the host.
	DispatchNone DispatchStyle = iota
	// DispatchInsert means the surface inserts text at the cursor.
	DispatchInsert
	// DispatchKey means the surface receives a synthetic key event.
	DispatchKey
)

// Dispatch returns the surface dispatch style of the feature.
func (f Feature) Dispatch() DispatchStyle {
	switch {
	case f.HostCommand != "":
		return DispatchNone
	case f.Insert != "":
		return DispatchInsert
	case f.KeyEvent != nil:
		return DispatchKey
	default:
		return DispatchNone
	}
}
