package cli

import (
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

const ClipboardClearAfter = 30 * time.Second

// Clipboard copies secrets and clears them again after a delay, unless
// the user has copied something else in the meantime.
type Clipboard struct {
	ClearAfter time.Duration

	write func(string) error
	read  func() (string, error)

	mu    sync.Mutex
	timer *time.Timer
}

func NewClipboard() *Clipboard {
	return &Clipboard{
		ClearAfter: ClipboardClearAfter,
		write:      clipboard.WriteAll,
		read:       clipboard.ReadAll,
	}
}

func (c *Clipboard) Copy(text string) error {
	if err := c.write(text); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.ClearAfter, func() {
		if current, err := c.read(); err == nil && current == text {
			_ = c.write("")
		}
	})
	return nil
}

// Clear wipes the clipboard now if a copy is still pending its timed clear.
func (c *Clipboard) Clear() {
	c.mu.Lock()
	t := c.timer
	c.timer = nil
	c.mu.Unlock()
	if t != nil && t.Stop() {
		_ = c.write("")
	}
}
