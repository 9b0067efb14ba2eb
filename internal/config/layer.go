package config

import (
	"reflect"
	"sort"
	"strings"
)

// Source identifies the layer a setting value came from.
type Source uint8

// Layers in ascending priority.
const (
	SourceDefaults Source = iota
	SourceUser
	SourceEnv
	SourceSession
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceDefaults:
		return "defaults"
	case SourceUser:
		return "user"
	case SourceEnv:
		return "environment"
	case SourceSession:
		return "session"
	default:
		return "unknown"
	}
}

// layer is one configuration source. Data is a nested map keyed by path
// segment.
type layer struct {
	source Source
	path   string
	data   map[string]any
}

// mergeLayers folds layers lowest priority first.
func mergeLayers(layers []*layer) map[string]any {
	result := make(map[string]any)
	for _, l := range layers {
		result = deepMerge(result, l.data)
	}
	return result
}

// deepMerge recursively merges src into dst. Maps are merged; every other
// value in src replaces the one in dst.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = deepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = cloneValue(srcVal)
	}
	return dst
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

// normalize converts typed slices and maps to the generic shapes produced
// by the decoders so that values from every layer compare and clone alike.
func normalize(val any) any {
	switch v := val.(type) {
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = normalize(item)
		}
		return out
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	default:
		return val
	}
}

func splitPath(path string) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	return parts, true
}

// getByPath retrieves a value from a nested map using a dot-separated path.
func getByPath(data map[string]any, path string) (any, bool) {
	parts, ok := splitPath(path)
	if !ok {
		return nil, false
	}
	current := any(data)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setByPath sets a value, creating intermediate maps as needed.
func setByPath(data map[string]any, path string, value any) {
	parts, ok := splitPath(path)
	if !ok {
		return
	}
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// deleteByPath removes a value and prunes parents left empty.
func deleteByPath(data map[string]any, path string) bool {
	parts, ok := splitPath(path)
	if !ok {
		return false
	}
	return deleteParts(data, parts)
}

func deleteParts(m map[string]any, parts []string) bool {
	if len(parts) == 1 {
		if _, ok := m[parts[0]]; !ok {
			return false
		}
		delete(m, parts[0])
		return true
	}
	next, ok := m[parts[0]].(map[string]any)
	if !ok {
		return false
	}
	removed := deleteParts(next, parts[1:])
	if removed && len(next) == 0 {
		delete(m, parts[0])
	}
	return removed
}

// flatten returns the leaf values of data keyed by dot path.
func flatten(data map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(data, "", out)
	return out
}

func flattenInto(data map[string]any, prefix string, out map[string]any) {
	for key, val := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok && len(nested) > 0 {
			flattenInto(nested, full, out)
			continue
		}
		out[full] = val
	}
}

// diffPaths returns the sorted leaf paths whose value differs between old
// and new, including added and removed ones.
func diffPaths(old, new map[string]any) []string {
	oldFlat := flatten(old)
	newFlat := flatten(new)

	var changed []string
	for path, nv := range newFlat {
		if ov, ok := oldFlat[path]; !ok || !reflect.DeepEqual(ov, nv) {
			changed = append(changed, path)
		}
	}
	for path := range oldFlat {
		if _, ok := newFlat[path]; !ok {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// isParentPath reports whether parent is a strict ancestor of child, e.g.
// "editor" of "editor.tabSize".
func isParentPath(parent, child string) bool {
	if parent == "" {
		return child != ""
	}
	return len(child) > len(parent) && child[:len(parent)] == parent && child[len(parent)] == '.'
}
