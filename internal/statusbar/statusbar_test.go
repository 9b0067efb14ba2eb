package statusbar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/feature"
	"github.com/dshills/mdsync/internal/manifest"
)

func testRegistry() *feature.Registry {
	return feature.New([]feature.Feature{
		{ID: "insertBold", Command: "x.insertBold", Title: "Bold", Icon: "$(bold)", Category: feature.CategoryFormatting, Keybinding: "ctrl+b", EnabledByDefault: true, ShowInStatusBar: true},
		{ID: "insertH2", Command: "x.insertH2", Title: "H2", Text: "H2", Category: feature.CategoryHeadings, EnabledByDefault: true, ShowInStatusBar: true},
		{ID: "insertRule", Command: "x.insertRule", Title: "Rule", Category: feature.CategoryBlocks, EnabledByDefault: true, ShowInStatusBar: true},
		{ID: "exportHtml", Command: "x.exportHtml", Title: "Export", Icon: "$(export)", Category: feature.CategoryUtilities, EnabledByDefault: true},
	})
}

type fakeSettings struct {
	items    []string
	disabled map[string]bool
}

func (f fakeSettings) StatusBarItems() []string      { return f.items }
func (f fakeSettings) FeatureEnabled(id string) bool { return !f.disabled[id] }

func TestCount(t *testing.T) {
	tests := []struct {
		text string
		want Stats
	}{
		{"", Stats{Words: 0, Characters: 0, Lines: 1}},
		{"# Title\n\nsome  words here\n", Stats{Words: 5, Characters: 26, Lines: 4}},
		{"héllo wörld", Stats{Words: 2, Characters: 11, Lines: 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Count(tt.text), tt.text)
	}
	assert.Equal(t, "$(edit) 2 Words • $(quote) 11 Chars • $(file-text) 1 Lines", Count("héllo wörld").Text())
}

func TestButtonsFollowSettings(t *testing.T) {
	s := fakeSettings{items: []string{"insertH2", "insertBold", "insertH2", "insertRule", "exportHtml", "missing"}}
	m := New(testRegistry(), s)

	buttons := m.Buttons()
	require.Len(t, buttons, 2)
	assert.Equal(t, Item{ID: "insertH2", Text: "H2", Tooltip: "H2", Command: "x.insertH2", Alignment: AlignLeft, Priority: 1000}, buttons[0])
	assert.Equal(t, "$(bold)", buttons[1].Text)
	assert.Equal(t, 999, buttons[1].Priority)
}

func TestDisabledFeatureHasNoButton(t *testing.T) {
	s := fakeSettings{items: []string{"insertBold", "insertH2"}, disabled: map[string]bool{"insertBold": true}}
	m := New(testRegistry(), s)
	assert.Equal(t, []string{"insertH2"}, m.ButtonIDs())
}

func TestVisibility(t *testing.T) {
	m := New(testRegistry(), fakeSettings{items: []string{"insertH2"}})
	assert.False(t, m.Visible())
	assert.Nil(t, m.Items())
	assert.Empty(t, m.String())

	m.UpdateCount("one two")
	m.Show()
	items := m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, CountItemID, items[1].ID)
	assert.Equal(t, AlignRight, items[1].Alignment)
	assert.Equal(t, "Words: 2 | Characters: 7 | Lines: 1", items[1].Tooltip)
	assert.Equal(t, "H2  $(edit) 2 Words • $(quote) 7 Chars • $(file-text) 1 Lines", m.String())

	m.Hide()
	assert.Nil(t, m.Items())
}

func TestRefreshOnConfigChange(t *testing.T) {
	opts := manifest.DefaultOptions()
	opts.Namespace = "x"
	reg := testRegistry()
	cfg := config.New(manifest.New(reg, opts), config.WithEnviron(func() []string { return nil }), config.WithUserFile(""))
	defer cfg.Close()
	require.NoError(t, cfg.Load(context.Background()))

	m := New(reg, cfg)
	cfg.Subscribe("x", func(config.Change) { m.Refresh() })
	assert.Equal(t, []string{"insertBold", "insertH2"}, m.ButtonIDs())

	require.NoError(t, cfg.Set("x.features.insertBold.enabled", false))
	assert.Equal(t, []string{"insertH2"}, m.ButtonIDs())

	require.NoError(t, cfg.Set("x.statusBar.items", []string{"insertRule", "insertH2", "insertBold"}))
	assert.Equal(t, []string{"insertH2"}, m.ButtonIDs())

	require.NoError(t, cfg.Set("x.features.insertBold.enabled", nil))
	assert.Equal(t, []string{"insertH2", "insertBold"}, m.ButtonIDs())
}
