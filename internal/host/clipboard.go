package host

import (
	"sync"

	"github.com/atotto/clipboard"
)

// SystemClipboard is the operating system clipboard.
type SystemClipboard struct{}

// Available reports whether a clipboard utility was found.
func (SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

func (SystemClipboard) ReadText() (string, error) {
	return clipboard.ReadAll()
}

func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// MemoryClipboard is an in-process clipboard.
type MemoryClipboard struct {
	mu     sync.Mutex
	text   string
	writes int
}

func (c *MemoryClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.text == "" {
		return "", ErrClipboardEmpty
	}
	return c.text, nil
}

func (c *MemoryClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.writes++
	return nil
}

// Writes returns the number of WriteText calls.
func (c *MemoryClipboard) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

var (
	_ Clipboard = SystemClipboard{}
	_ Clipboard = (*MemoryClipboard)(nil)
)
