package stream

import (
	"io"
	"slices"
	"strings"
	"sync"
)

// Group tracks a set of controllers sharing one visible writer.
type Group struct {
	out io.Writer

	mu          sync.Mutex
	controllers []*Controller
	foreground  *Controller
}

// NewGroup creates a group forwarding foreground output to out.
func NewGroup(out io.Writer) *Group {
	return &Group{out: out}
}

// Add registers c. Controllers keep their insertion order.
func (g *Group) Add(c *Controller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.controllers, c) {
		g.controllers = append(g.controllers, c)
	}
}

// Controllers returns the registered controllers in order.
func (g *Group) Controllers() []*Controller {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.controllers)
}

// Len returns the number of controllers.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.controllers)
}

// Foreground makes the controller at index the only one forwarding output.
// It reports false when index is out of range.
func (g *Group) Foreground(index int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if index < 0 || index >= len(g.controllers) {
		return false, nil
	}
	next := g.controllers[index]
	if g.foreground == next {
		return true, nil
	}
	if g.foreground != nil {
		g.foreground.Background()
	}
	g.foreground = next
	return true, next.Foreground(g.out)
}

// Background returns the foreground controller, if any, to the background.
func (g *Group) Background() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.foreground != nil {
		g.foreground.Background()
		g.foreground = nil
	}
}

// Current returns the foreground controller or nil.
func (g *Group) Current() *Controller {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.foreground
}

// LineWriter buffers writes and hands complete lines to emit without the
// trailing newline. Carriage returns are dropped.
type LineWriter struct {
	mu   sync.Mutex
	buf  strings.Builder
	emit func(line string)
}

// NewLineWriter creates a LineWriter.
func NewLineWriter(emit func(line string)) *LineWriter {
	return &LineWriter{emit: emit}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		switch b {
		case '\n':
			w.emit(w.buf.String())
			w.buf.Reset()
		case '\r':
		default:
			w.buf.WriteByte(b)
		}
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}
