package agent

import "github.com/dshills/mdsync/internal/feature"

// EditorOptions configures the rich editor when it is built.
type EditorOptions struct {
	Content     string
	Mode        string
	Lang        string
	Theme       string
	CodeTheme   string
	HideToolbar bool
	LineNumbers bool

	// OnInput receives the full content after every edit.
	OnInput func(content string)
	// OnUpload receives files pasted or dropped into the editor.
	OnUpload func(name string, data []byte)
}

// Range is an opaque selection saved and restored by the agent.
type Range struct {
	Start int
	End   int
}

// Scroller is a scrollable container.
type Scroller interface {
	ScrollTop() float64
	SetScrollTop(top float64)
}

// Key event phases passed to DispatchKey, in dispatch order.
const (
	PhaseKeyDown  = "keydown"
	PhaseKeyPress = "keypress"
	PhaseKeyUp    = "keyup"
)

// Surface is the embedded editor and the page hosting it. Implementations
// must be safe for concurrent use.
type Surface interface {
	// Loaded reports whether the editor library is available.
	Loaded() bool
	Build(opts EditorOptions) error
	SetValue(content string)
	Value() string

	SelectedText() string
	// Insert replaces the selection with text.
	Insert(text string)
	DispatchKey(phase string, ev feature.KeyEvent)

	Focus()
	// Selection returns the current selection. The second result is false
	// when the selection lies outside the core editable region.
	Selection() (Range, bool)
	SetSelection(r Range) bool

	// Container returns the element matching selector, if it exists.
	Container(selector string) (Scroller, bool)

	SetTheme(editorTheme, codeTheme string)
	SetToolbarHidden(hidden bool)
	SetBodyClass(class string, on bool)
}

// Element is the part of a clicked DOM element the agent inspects.
type Element struct {
	Tag    string
	Href   string
	Src    string
	Parent *Element
}

// Click is a mouse click inside the editor.
type Click struct {
	Target Element
	Ctrl   bool
	Meta   bool
}

// ScrollContainers are tried in order to find the scrolling element.
var ScrollContainers = []string{
	".vditor-reset",
	".vditor-ir .vditor-reset",
	".vditor-wysiwyg .vditor-reset",
	".vditor-ir__preview",
	".vditor-ir",
	".vditor",
}

// findContainer returns the first existing scroll container.
func findContainer(s Surface) (Scroller, bool) {
	for _, sel := range ScrollContainers {
		if c, ok := s.Container(sel); ok {
			return c, true
		}
	}
	return nil, false
}
