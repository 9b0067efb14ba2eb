package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// CommandFunc runs a command.
type CommandFunc func(ctx context.Context, args ...any) error

// CommandInfo describes a registered command.
type CommandInfo struct {
	ID      string
	Title   string
	Palette bool
}

type command struct {
	info CommandInfo
	fn   CommandFunc
}

// UnknownCommandError reports an unregistered id with close matches.
type UnknownCommandError struct {
	ID          string
	Suggestions []string
}

func (e *UnknownCommandError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %s", ErrUnknownCommand, e.ID)
	}
	return fmt.Sprintf("%s: %s (did you mean %s?)", ErrUnknownCommand, e.ID, strings.Join(e.Suggestions, ", "))
}

func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

// Commands is the host command registry.
type Commands struct {
	mu   sync.RWMutex
	cmds map[string]*command
}

// NewCommands creates an empty registry.
func NewCommands() *Commands {
	return &Commands{cmds: make(map[string]*command)}
}

// CommandOption configures a registration.
type CommandOption func(*CommandInfo)

// WithTitle sets the palette title.
func WithTitle(title string) CommandOption {
	return func(i *CommandInfo) {
		i.Title = title
	}
}

// InPalette sets whether the command is listed in the command palette.
func InPalette(visible bool) CommandOption {
	return func(i *CommandInfo) {
		i.Palette = visible
	}
}

// Register adds a command. The returned function removes it again.
func (c *Commands) Register(id string, fn CommandFunc, opts ...CommandOption) (func(), error) {
	info := CommandInfo{ID: id, Title: id, Palette: true}
	for _, opt := range opts {
		opt(&info)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cmds[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCommandExists, id)
	}
	cmd := &command{info: info, fn: fn}
	c.cmds[id] = cmd

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.cmds[id] == cmd {
				delete(c.cmds, id)
			}
			c.mu.Unlock()
		})
	}, nil
}

// Has reports whether id is registered.
func (c *Commands) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cmds[id]
	return ok
}

// Execute runs the command id. Unknown ids yield *UnknownCommandError.
func (c *Commands) Execute(ctx context.Context, id string, args ...any) error {
	c.mu.RLock()
	cmd, ok := c.cmds[id]
	c.mu.RUnlock()

	if !ok {
		return &UnknownCommandError{ID: id, Suggestions: c.suggest(id, 3)}
	}
	return cmd.fn(ctx, args...)
}

// SetPaletteVisible shows or hides id in the command palette.
func (c *Commands) SetPaletteVisible(id string, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cmd, ok := c.cmds[id]; ok {
		cmd.info.Palette = visible
	}
}

// List returns every registered command sorted by id.
func (c *Commands) List() []CommandInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CommandInfo, 0, len(c.cmds))
	for _, cmd := range c.cmds {
		out = append(out, cmd.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Palette returns the commands visible in the command palette.
func (c *Commands) Palette() []CommandInfo {
	all := c.List()
	out := all[:0]
	for _, info := range all {
		if info.Palette {
			out = append(out, info)
		}
	}
	return out
}

// Search fuzzy-matches query against palette titles, best match first.
func (c *Commands) Search(query string) []CommandInfo {
	palette := c.Palette()
	if query == "" {
		return palette
	}
	titles := make([]string, len(palette))
	for i, info := range palette {
		titles[i] = info.Title
	}
	matches := fuzzy.Find(query, titles)
	out := make([]CommandInfo, 0, len(matches))
	for _, m := range matches {
		out = append(out, palette[m.Index])
	}
	return out
}

func (c *Commands) suggest(id string, max int) []string {
	all := c.List()
	if len(all) == 0 {
		return nil
	}
	ids := make([]string, len(all))
	for i, info := range all {
		ids[i] = info.ID
	}
	matches := fuzzy.Find(id, ids)
	if len(matches) > max {
		matches = matches[:max]
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, ids[m.Index])
	}
	return out
}
