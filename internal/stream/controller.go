// Package stream multiplexes the output of indefinite steps.
//
// Each indefinite step writes through a Controller. In background mode its
// output only goes into a bounded history; in foreground mode the history
// is replayed to the visible writer and live output is forwarded as it
// arrives. A Group ensures at most one controller is in the foreground.
package stream

import (
	"io"
	"sync"

	"github.com/Iron-Ham/kiln/internal/step"
)

// DefaultHistoryBytes bounds a controller's history when none is given.
const DefaultHistoryBytes = 4 * 1024 * 1024

// Controller wraps one indefinite step's stdout and stderr.
// All methods are safe for concurrent use.
type Controller struct {
	name string

	mu      sync.Mutex
	history *history
	out     io.Writer
}

// NewController creates a background controller. maxHistory <= 0 uses
// DefaultHistoryBytes.
func NewController(name string, maxHistory int) *Controller {
	if maxHistory <= 0 {
		maxHistory = DefaultHistoryBytes
	}
	return &Controller{
		name:    name,
		history: newHistory(maxHistory),
	}
}

// Name returns the label the controller was created with.
func (c *Controller) Name() string {
	return c.name
}

// Write records p and forwards it when in the foreground.
func (c *Controller) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history.add(p)
	if c.out != nil {
		// A failing foreground writer must not kill the step.
		_, _ = c.out.Write(p)
	}
	return len(p), nil
}

// Stdio returns the handles given to the indefinite step. Stdout and
// stderr share the controller so their ordering is preserved.
func (c *Controller) Stdio() step.Stdio {
	return step.Stdio{Stdout: c, Stderr: c}
}

// Foreground replays the history to w and forwards later output to it.
func (c *Controller) Foreground(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.out = w
	for _, chunk := range c.history.chunks {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Background stops forwarding; output keeps going into the history.
func (c *Controller) Background() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = nil
}

// IsForeground reports whether output is being forwarded.
func (c *Controller) IsForeground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

// History returns a copy of the retained output.
func (c *Controller) History() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.bytes()
}

// history keeps written chunks, dropping the oldest once over max bytes.
type history struct {
	max    int
	size   int
	chunks [][]byte
}

func newHistory(max int) *history {
	return &history{max: max}
}

func (h *history) add(p []byte) {
	if len(p) == 0 {
		return
	}
	if len(p) > h.max {
		p = p[len(p)-h.max:]
	}
	h.chunks = append(h.chunks, append([]byte(nil), p...))
	h.size += len(p)

	drop := 0
	for h.size > h.max {
		h.size -= len(h.chunks[drop])
		h.chunks[drop] = nil
		drop++
	}
	if drop > 0 {
		h.chunks = h.chunks[drop:]
	}
}

func (h *history) bytes() []byte {
	out := make([]byte, 0, h.size)
	for _, c := range h.chunks {
		out = append(out, c...)
	}
	return out
}
