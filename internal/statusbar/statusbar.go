// Package statusbar models the status-bar items shown while a markdown
// session is active: one button per configured feature plus a document
// statistics item.
package statusbar

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dshills/mdsync/internal/feature"
)

// Alignment is the side of the status bar an item sits on.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
)

// Item is one status-bar entry.
type Item struct {
	ID        string
	Text      string
	Tooltip   string
	Command   string
	Alignment Alignment
	// Priority orders items on the same side; higher is further left.
	Priority int
}

// CountItemID identifies the statistics item.
const CountItemID = "count"

const (
	buttonPriority = 1000
	countPriority  = 100
)

// Stats holds document statistics.
type Stats struct {
	Words      int
	Characters int
	Lines      int
}

// Count computes statistics for text. Characters are counted in runes.
func Count(text string) Stats {
	return Stats{
		Words:      len(strings.Fields(text)),
		Characters: utf8.RuneCountInString(text),
		Lines:      strings.Count(text, "\n") + 1,
	}
}

// Text renders the status-bar label.
func (s Stats) Text() string {
	return fmt.Sprintf("$(edit) %d Words • $(quote) %d Chars • $(file-text) %d Lines", s.Words, s.Characters, s.Lines)
}

// Tooltip renders the hover text.
func (s Stats) Tooltip() string {
	return fmt.Sprintf("Words: %d | Characters: %d | Lines: %d", s.Words, s.Characters, s.Lines)
}

// Settings supplies the user's status-bar choices. *config.Config
// satisfies it.
type Settings interface {
	StatusBarItems() []string
	FeatureEnabled(id string) bool
}

// Model is the status bar of one session.
type Model struct {
	reg      *feature.Registry
	settings Settings

	mu      sync.Mutex
	buttons []Item
	stats   Stats
	visible bool
}

// New creates a hidden status bar with buttons computed from settings.
func New(reg *feature.Registry, settings Settings) *Model {
	m := &Model{reg: reg, settings: settings, stats: Count("")}
	m.Refresh()
	return m
}

// Refresh recomputes the buttons. A feature gets a button when it is
// listed in the status-bar setting, flagged for the status bar, enabled,
// and has something to display. Buttons follow the setting's order.
func (m *Model) Refresh() {
	var buttons []Item
	seen := make(map[string]bool)
	priority := buttonPriority
	for _, id := range m.settings.StatusBarItems() {
		if seen[id] {
			continue
		}
		seen[id] = true

		f, ok := m.reg.ByID(id)
		if !ok || !f.ShowInStatusBar || (f.Text == "" && f.Icon == "") {
			continue
		}
		if !m.settings.FeatureEnabled(id) {
			continue
		}
		buttons = append(buttons, Item{
			ID:        f.ID,
			Text:      f.Label(),
			Tooltip:   f.Title,
			Command:   f.Command,
			Alignment: AlignLeft,
			Priority:  priority,
		})
		priority--
	}

	m.mu.Lock()
	m.buttons = buttons
	m.mu.Unlock()
}

// UpdateCount recomputes the statistics for text.
func (m *Model) UpdateCount(text string) {
	stats := Count(text)
	m.mu.Lock()
	m.stats = stats
	m.mu.Unlock()
}

// Stats returns the current statistics.
func (m *Model) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Model) Show() {
	m.mu.Lock()
	m.visible = true
	m.mu.Unlock()
}

func (m *Model) Hide() {
	m.mu.Lock()
	m.visible = false
	m.mu.Unlock()
}

// Visible reports whether the items are shown.
func (m *Model) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Buttons returns the feature buttons regardless of visibility.
func (m *Model) Buttons() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.buttons...)
}

// ButtonIDs returns the feature ids that have a button, in order.
func (m *Model) ButtonIDs() []string {
	buttons := m.Buttons()
	ids := make([]string, len(buttons))
	for i, b := range buttons {
		ids[i] = b.ID
	}
	return ids
}

// Items returns what is on screen: nothing while hidden, otherwise the
// buttons followed by the statistics item.
func (m *Model) Items() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.visible {
		return nil
	}
	items := append([]Item(nil), m.buttons...)
	return append(items, Item{
		ID:        CountItemID,
		Text:      m.stats.Text(),
		Tooltip:   m.stats.Tooltip(),
		Alignment: AlignRight,
		Priority:  countPriority,
	})
}

// String renders the visible items on one line, left side first.
func (m *Model) String() string {
	var left, right []string
	for _, it := range m.Items() {
		if it.Alignment == AlignLeft {
			left = append(left, it.Text)
		} else {
			right = append(right, it.Text)
		}
	}
	if len(left) == 0 && len(right) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(left, " ") + "  " + strings.Join(right, " "))
}
