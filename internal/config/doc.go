// Package config provides the settings store for mdsync.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Session                 │  ← Config.Set, highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← MDSYNC_*
//	├─────────────────────────────┤
//	│  2. User Settings           │  ← ~/.config/mdsync/settings.toml
//	├─────────────────────────────┤
//	│  1. Defaults                │  ← generated from the feature table
//	└─────────────────────────────┘
//
// The defaults layer is exactly what the manifest generator writes into
// configurationDefaults, plus a handful of editor and host settings, so the
// runtime and the published manifest always agree.
//
// Settings are addressed by dot path, e.g.
// "vsc-markdown.features.insertBold.enabled". In TOML the same setting
// may be written as a dotted key or a table:
//
//	["vsc-markdown".features.insertBold]
//	enabled = false
//
// # Change notification
//
// Subscribe registers an observer for a section. Every Reload or Set
// computes the set of effective leaf paths that changed and delivers one
// Change to each observer whose section it affects.
//
// # Live reload
//
// Watch hooks the user settings file into a watcher.Hub; edits on disk
// are picked up without restarting.
package config
