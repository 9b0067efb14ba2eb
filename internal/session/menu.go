package session

import "github.com/dshills/mdsync/internal/feature"

// MenuItem is one entry of the editor's context menu.
type MenuItem struct {
	Command    string `json:"command"`
	Title      string `json:"title"`
	Icon       string `json:"icon,omitempty"`
	Keybinding string `json:"keybinding"`
	Category   string `json:"category"`
}

// MenuGroup is a submenu of items sharing a category.
type MenuGroup struct {
	Category string     `json:"category"`
	Name     string     `json:"name"`
	Items    []MenuItem `json:"items"`
}

// MenuSettings supplies the user's context-menu choices. *config.Config
// satisfies it.
type MenuSettings interface {
	WebviewContextMenuItems() []string
	FeatureEnabled(id string) bool
}

// ContextMenuGroups builds the editor context menu: enabled features that
// are flagged for it and listed in the setting, in setting order, grouped
// by category in order of first appearance.
func ContextMenuGroups(reg *feature.Registry, settings MenuSettings) []MenuGroup {
	var groups []MenuGroup
	index := make(map[feature.Category]int)
	seen := make(map[string]bool)

	for _, id := range settings.WebviewContextMenuItems() {
		if seen[id] {
			continue
		}
		seen[id] = true

		f, ok := reg.ByID(id)
		if !ok || !f.ShowInWebviewContextMenu || !settings.FeatureEnabled(id) {
			continue
		}
		i, ok := index[f.Category]
		if !ok {
			i = len(groups)
			index[f.Category] = i
			groups = append(groups, MenuGroup{Category: string(f.Category), Name: f.Category.Meta().Name})
		}
		groups[i].Items = append(groups[i].Items, MenuItem{
			Command:    f.Command,
			Title:      f.Title,
			Icon:       f.Icon,
			Keybinding: f.Keybinding,
			Category:   string(f.Category),
		})
	}
	return groups
}
