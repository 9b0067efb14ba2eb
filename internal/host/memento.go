package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryMemento is an in-memory Memento.
type MemoryMemento struct {
	mu      sync.Mutex
	values  map[string]any
	updates int
}

// NewMemoryMemento creates an empty store.
func NewMemoryMemento() *MemoryMemento {
	return &MemoryMemento{values: make(map[string]any)}
}

func (m *MemoryMemento) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryMemento) Update(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.values, key)
	} else {
		m.values[key] = value
	}
	m.updates++
	return nil
}

// Updates returns the number of Update calls.
func (m *MemoryMemento) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// FileMemento persists values as a JSON object in one file. Every Update
// rewrites the file.
type FileMemento struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

// OpenMemento loads the store at path. A missing file is an empty store.
func OpenMemento(path string) (*FileMemento, error) {
	m := &FileMemento{path: path, values: make(map[string]any)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m.values); err != nil {
		return nil, fmt.Errorf("memento %s: %w", path, err)
	}
	return m, nil
}

func (m *FileMemento) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *FileMemento) Update(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value == nil {
		delete(m.values, key)
	} else {
		m.values[key] = value
	}

	data, err := json.MarshalIndent(m.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(m.path, data, 0o644)
}

// Float reads a numeric value, accepting any JSON number representation.
func Float(m Memento, key string, def float64) float64 {
	v, ok := m.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return def
}

var (
	_ Memento = (*MemoryMemento)(nil)
	_ Memento = (*FileMemento)(nil)
)
