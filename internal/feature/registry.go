package feature

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed features.yaml
var embeddedFeatures []byte

// ErrInvalidTable is returned when a feature table fails validation.
var ErrInvalidTable = errors.New("invalid feature table")

// Registry is an immutable, ordered feature table.
type Registry struct {
	features  []Feature
	byID      map[string]int
	byCommand map[string]int
}

// Group is a category with its features in registry order.
type Group struct {
	Category Category
	Features []Feature
}

type tableFile struct {
	Features []Feature `yaml:"features"`
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the built-in registry. It is decoded once per process.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := Load(strings.NewReader(string(embeddedFeatures)))
		if err != nil {
			panic(fmt.Sprintf("feature: embedded table: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Load decodes and validates a YAML feature table.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file tableFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode feature table: %w", err)
	}

	reg := New(file.Features)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// New builds a registry from features without validating them.
// The slice is copied.
func New(features []Feature) *Registry {
	r := &Registry{
		features:  make([]Feature, len(features)),
		byID:      make(map[string]int, len(features)),
		byCommand: make(map[string]int, len(features)),
	}
	copy(r.features, features)
	for i, f := range r.features {
		if _, dup := r.byID[f.ID]; !dup {
			r.byID[f.ID] = i
		}
		if _, dup := r.byCommand[f.Command]; !dup {
			r.byCommand[f.Command] = i
		}
	}
	return r
}

// Len returns the number of features.
func (r *Registry) Len() int {
	return len(r.features)
}

// Features returns all features in registry order.
func (r *Registry) Features() []Feature {
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

// ByID looks up a feature by id.
func (r *Registry) ByID(id string) (Feature, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Feature{}, false
	}
	return r.features[i], true
}

// ByCommand looks up a feature by command identifier.
func (r *Registry) ByCommand(command string) (Feature, bool) {
	i, ok := r.byCommand[command]
	if !ok {
		return Feature{}, false
	}
	return r.features[i], true
}

// Where returns the features whose visibility flag k is set. When
// onlyEnabled is true, features not enabled by default are skipped.
func (r *Registry) Where(k ShowKey, onlyEnabled bool) []Feature {
	out := make([]Feature, 0)
	for _, f := range r.features {
		if onlyEnabled && !f.EnabledByDefault {
			continue
		}
		if f.Shows(k) {
			out = append(out, f)
		}
	}
	return out
}

// Filter returns the features accepted by keep, in registry order.
func (r *Registry) Filter(keep func(Feature) bool) []Feature {
	out := make([]Feature, 0)
	for _, f := range r.features {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// IDs returns the ids of fs in order.
func IDs(fs []Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}

// AllCommands returns every command identifier in registry order.
func (r *Registry) AllCommands() []string {
	out := make([]string, len(r.features))
	for i, f := range r.features {
		out[i] = f.Command
	}
	return out
}

// GroupedByCategory returns features grouped by category. Known categories
// come first in display order; empty categories are omitted.
func (r *Registry) GroupedByCategory() []Group {
	buckets := make(map[Category][]Feature)
	var order []Category
	for _, f := range r.features {
		if _, seen := buckets[f.Category]; !seen {
			order = append(order, f.Category)
		}
		buckets[f.Category] = append(buckets[f.Category], f)
	}

	groups := make([]Group, 0, len(buckets))
	for _, c := range Categories {
		if fs, ok := buckets[c]; ok {
			groups = append(groups, Group{Category: c, Features: fs})
			delete(buckets, c)
		}
	}
	for _, c := range order {
		if fs, ok := buckets[c]; ok {
			groups = append(groups, Group{Category: c, Features: fs})
		}
	}
	return groups
}

// ValidationError lists every problem found in a feature table.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%v: %s", ErrInvalidTable, e.Problems[0])
	}
	return fmt.Sprintf("%v: %d problems, first: %s", ErrInvalidTable, len(e.Problems), e.Problems[0])
}

// Unwrap lets errors.Is match ErrInvalidTable.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidTable
}

// Validate checks required fields, uniqueness of ids and commands, and
// the category set.
func (r *Registry) Validate() error {
	var problems []string
	ids := make(map[string]bool, len(r.features))
	commands := make(map[string]bool, len(r.features))

	for i, f := range r.features {
		name := f.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("feature %s: missing id", name))
		}
		if f.Command == "" {
			problems = append(problems, fmt.Sprintf("feature %s: missing command", name))
		}
		if f.Title == "" {
			problems = append(problems, fmt.Sprintf("feature %s: missing title", name))
		}
		if !f.Category.Valid() {
			problems = append(problems, fmt.Sprintf("feature %s: unknown category %q", name, f.Category))
		}
		if f.KeyEvent != nil && f.KeyEvent.Key == "" {
			problems = append(problems, fmt.Sprintf("feature %s: key event without key", name))
		}
		if f.ID != "" {
			if ids[f.ID] {
				problems = append(problems, fmt.Sprintf("duplicate feature id %q", f.ID))
			}
			ids[f.ID] = true
		}
		if f.Command != "" {
			if commands[f.Command] {
				problems = append(problems, fmt.Sprintf("duplicate command %q", f.Command))
			}
			commands[f.Command] = true
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
