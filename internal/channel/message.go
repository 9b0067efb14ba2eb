package channel

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/mdsync/internal/feature"
)

// Type identifies a message.
type Type string

// Messages exchanged with the editor surface.
const (
	TypeInit          Type = "init"
	TypeOpen          Type = "open"
	TypeUpdate        Type = "update"
	TypeVditorCommand Type = "vditorCommand"
	TypeSave          Type = "save"
	TypeDoSave        Type = "doSave"
	TypeScroll        Type = "scroll"
	TypeOpenLink      Type = "openLink"
	TypeImg           Type = "img"
	TypeCommand       Type = "command"
	TypeEditInHost    Type = "editInHost"
	TypeConfig        Type = "config"
	TypeTheme         Type = "updateActiveColorThemeKind"
	TypeScrollBeyond  Type = "updateScrollBeyondLastLine"
)

// Local events that never cross the transport.
const (
	TypeExternalUpdate Type = "externalUpdate"
	TypeFileChange     Type = "fileChange"
	TypeDispose        Type = "dispose"
)

// Local reports whether t is raised on the host side only.
func (t Type) Local() bool {
	switch t {
	case TypeExternalUpdate, TypeFileChange, TypeDispose:
		return true
	}
	return false
}

// Message is the wire envelope.
type Message struct {
	Type    Type            `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Payload is the decoded content of a message. The set of implementations
// is closed.
type Payload interface {
	MessageType() Type
	payload()
}

// Init is sent by the surface once it is ready to receive content.
type Init struct{}

// Open carries everything the surface needs to build the editor.
type Open struct {
	Title     string         `json:"title"`
	Config    map[string]any `json:"config"`
	ScrollTop float64        `json:"scrollTop"`
	Language  string         `json:"language"`
	RootPath  string         `json:"rootPath"`
	BaseURL   string         `json:"baseUrl,omitempty"`
	Theme     string         `json:"theme,omitempty"`
	Content   string         `json:"content"`
}

// Update replaces the surface content.
type Update struct {
	Content string
}

// VditorCommand asks the surface to run a formatting action. Insert is
// preferred over KeyEvent when both are set.
type VditorCommand struct {
	Command  string            `json:"command"`
	Insert   string            `json:"insert,omitempty"`
	KeyEvent *feature.KeyEvent `json:"keyEvent,omitempty"`
}

// Save carries edited content from the surface.
type Save struct {
	Content string
}

// DoSave is an explicit save request from the surface.
type DoSave struct {
	Content string
}

// Scroll reports the surface scroll offset.
type Scroll struct {
	ScrollTop float64 `json:"scrollTop"`
}

// OpenLink asks the host to open a link clicked in the surface.
type OpenLink struct {
	URL string
}

// Img uploads image bytes pasted or dropped into the surface.
type Img struct {
	Name string `json:"name,omitempty"`
	Data []byte `json:"data"`
}

// Command asks the host to execute a command by id.
type Command struct {
	ID string
}

// EditInHost reopens the document in the host's text editor. Full opens in
// place instead of beside.
type EditInHost struct {
	Full bool
}

// Config pushes a settings snapshot to the surface.
type Config struct {
	Settings map[string]any
}

// Theme pushes the host color theme kind, "dark" or "light".
type Theme struct {
	Kind string
}

// ScrollBeyond pushes the host's scroll-beyond-last-line preference.
type ScrollBeyond struct {
	Enabled bool
}

// ExternalUpdate reports that the host document changed.
type ExternalUpdate struct {
	Content string
}

// FileChange reports an on-disk change to the document file.
type FileChange struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// Dispose reports that the channel is being torn down.
type Dispose struct{}

func (Init) MessageType() Type           { return TypeInit }
func (Open) MessageType() Type           { return TypeOpen }
func (Update) MessageType() Type         { return TypeUpdate }
func (VditorCommand) MessageType() Type  { return TypeVditorCommand }
func (Save) MessageType() Type           { return TypeSave }
func (DoSave) MessageType() Type         { return TypeDoSave }
func (Scroll) MessageType() Type         { return TypeScroll }
func (OpenLink) MessageType() Type       { return TypeOpenLink }
func (Img) MessageType() Type            { return TypeImg }
func (Command) MessageType() Type        { return TypeCommand }
func (EditInHost) MessageType() Type     { return TypeEditInHost }
func (Config) MessageType() Type         { return TypeConfig }
func (Theme) MessageType() Type          { return TypeTheme }
func (ScrollBeyond) MessageType() Type   { return TypeScrollBeyond }
func (ExternalUpdate) MessageType() Type { return TypeExternalUpdate }
func (FileChange) MessageType() Type     { return TypeFileChange }
func (Dispose) MessageType() Type        { return TypeDispose }

func (Init) payload()           {}
func (Open) payload()           {}
func (Update) payload()         {}
func (VditorCommand) payload()  {}
func (Save) payload()           {}
func (DoSave) payload()         {}
func (Scroll) payload()         {}
func (OpenLink) payload()       {}
func (Img) payload()            {}
func (Command) payload()        {}
func (EditInHost) payload()     {}
func (Config) payload()         {}
func (Theme) payload()          {}
func (ScrollBeyond) payload()   {}
func (ExternalUpdate) payload() {}
func (FileChange) payload()     {}
func (Dispose) payload()        {}

// content returns the JSON value placed in the envelope. Several messages
// carry a bare scalar rather than an object.
func content(p Payload) any {
	switch v := p.(type) {
	case Init, Dispose:
		return nil
	case Update:
		return v.Content
	case Save:
		return v.Content
	case DoSave:
		return v.Content
	case ExternalUpdate:
		return v.Content
	case OpenLink:
		return v.URL
	case Command:
		return v.ID
	case EditInHost:
		return v.Full
	case Config:
		return v.Settings
	case Theme:
		return v.Kind
	case ScrollBeyond:
		return v.Enabled
	default:
		return p
	}
}

// Encode wraps p in an envelope.
func Encode(p Payload) (Message, error) {
	c := content(p)
	if c == nil {
		return Message{Type: p.MessageType()}, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", p.MessageType(), err)
	}
	return Message{Type: p.MessageType(), Content: raw}, nil
}

// Decode returns the payload of m. Unknown types yield ErrUnknownType.
func Decode(m Message) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch m.Type {
	case TypeInit:
		return Init{}, nil
	case TypeDispose:
		return Dispose{}, nil
	case TypeOpen:
		var v Open
		err = unmarshal(m.Content, &v)
		p = v
	case TypeUpdate:
		var v Update
		err = unmarshal(m.Content, &v.Content)
		p = v
	case TypeSave:
		var v Save
		err = unmarshal(m.Content, &v.Content)
		p = v
	case TypeDoSave:
		var v DoSave
		err = unmarshal(m.Content, &v.Content)
		p = v
	case TypeExternalUpdate:
		var v ExternalUpdate
		err = unmarshal(m.Content, &v.Content)
		p = v
	case TypeVditorCommand:
		var v VditorCommand
		err = unmarshal(m.Content, &v)
		p = v
	case TypeScroll:
		var v Scroll
		err = unmarshal(m.Content, &v)
		p = v
	case TypeOpenLink:
		var v OpenLink
		err = unmarshal(m.Content, &v.URL)
		p = v
	case TypeImg:
		var v Img
		err = unmarshal(m.Content, &v)
		p = v
	case TypeCommand:
		var v Command
		err = unmarshal(m.Content, &v.ID)
		p = v
	case TypeEditInHost:
		var v EditInHost
		err = unmarshal(m.Content, &v.Full)
		p = v
	case TypeConfig:
		var v Config
		err = unmarshal(m.Content, &v.Settings)
		p = v
	case TypeTheme:
		var v Theme
		err = unmarshal(m.Content, &v.Kind)
		p = v
	case TypeScrollBeyond:
		var v ScrollBeyond
		err = unmarshal(m.Content, &v.Enabled)
		p = v
	case TypeFileChange:
		var v FileChange
		err = unmarshal(m.Content, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if err != nil {
		return nil, &DecodeError{Type: m.Type, Err: err}
	}
	return p, nil
}

// unmarshal treats absent content as the zero value.
func unmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
