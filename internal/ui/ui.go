// Package ui renders run progress to the terminal.
//
// In interactive mode a persistent section (a separator rule, the active
// group's status block and a hint about indefinite steps) stays at the
// bottom of the screen and is redrawn on a timer; log lines are printed
// above it as they are flushed. In linear mode every event becomes one or
// more lines written as it happens, without cursor control.
package ui

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/util"
)

// Default timer intervals.
const (
	DefaultRedrawInterval  = 30 * time.Millisecond
	DefaultSpinnerInterval = 60 * time.Millisecond
)

// Options configures a UI.
type Options struct {
	Interactive bool
	// Level is the verbosity threshold for step messages.
	Level step.LogLevel
	// Width returns the terminal width; nil or a result <= 0 disables
	// truncation.
	Width           func() int
	RedrawInterval  time.Duration
	SpinnerInterval time.Duration
}

// UI subscribes to run events and renders them.
type UI struct {
	out    io.Writer
	opts   Options
	frames []string

	mu         sync.Mutex
	group      *groupState
	queued     []string
	drawn      int
	frame      int
	indefinite []*step.Step
	closed     bool

	bus   *event.Bus
	subID string

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a UI writing to out. Interactive UIs start their timers
// immediately; call Close to stop them.
func New(out io.Writer, opts Options) *UI {
	if opts.RedrawInterval <= 0 {
		opts.RedrawInterval = DefaultRedrawInterval
	}
	if opts.SpinnerInterval <= 0 {
		opts.SpinnerInterval = DefaultSpinnerInterval
	}
	u := &UI{
		out:    out,
		opts:   opts,
		frames: spinner.MiniDot.Frames,
		stop:   make(chan struct{}),
	}
	if opts.Interactive {
		u.wg.Add(1)
		go u.loop()
	}
	return u
}

// Attach subscribes the UI to every event on bus.
func (u *UI) Attach(bus *event.Bus) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bus != nil {
		u.bus.Unsubscribe(u.subID)
	}
	u.bus = bus
	u.subID = bus.SubscribeAll(u.handle)
}

// Interactive reports whether the persistent section is drawn.
func (u *UI) Interactive() bool {
	return u.opts.Interactive
}

func (u *UI) loop() {
	defer u.wg.Done()
	redraw := time.NewTicker(u.opts.RedrawInterval)
	defer redraw.Stop()
	spin := time.NewTicker(u.opts.SpinnerInterval)
	defer spin.Stop()

	for {
		select {
		case <-u.stop:
			return
		case <-spin.C:
			u.mu.Lock()
			u.frame++
			u.mu.Unlock()
		case <-redraw.C:
			u.mu.Lock()
			u.flushLocked(true)
			u.mu.Unlock()
		}
	}
}

// Close detaches from the bus, stops the timers, flushes pending lines,
// removes the persistent section and runs epilogue, if any, against the
// output. It is safe to call more than once.
func (u *UI) Close(epilogue func(w io.Writer)) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	if u.bus != nil {
		u.bus.Unsubscribe(u.subID)
		u.bus = nil
	}
	u.mu.Unlock()

	close(u.stop)
	u.wg.Wait()

	u.mu.Lock()
	defer u.mu.Unlock()
	u.flushLocked(false)
	if epilogue != nil {
		epilogue(u.out)
	}
	if u.opts.Interactive {
		termenv.NewOutput(u.out).ShowCursor()
	}
}

// Println prints a line above the persistent section.
func (u *UI) Println(line string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.emitLocked(line)
}

func (u *UI) width() int {
	if u.opts.Width == nil {
		return 0
	}
	return u.opts.Width()
}

// emitLocked queues line in interactive mode and writes it otherwise.
func (u *UI) emitLocked(line string) {
	if u.opts.Interactive {
		u.queued = append(u.queued, line)
		return
	}
	_, _ = io.WriteString(u.out, util.TruncateANSI(line, u.width())+"\n")
}

// logLocked emits line when the verbosity threshold allows level.
func (u *UI) logLocked(level step.LogLevel, line string) {
	if u.opts.Level.Allows(level) {
		u.emitLocked(line)
	}
}

// flushLocked replaces the persistent section with the queued lines
// followed by a fresh section. Without section only the lines are written.
func (u *UI) flushLocked(section bool) {
	var lines []string
	if section {
		lines = u.sectionLocked()
	}
	if u.drawn == 0 && len(u.queued) == 0 && len(lines) == 0 {
		return
	}

	var buf bytes.Buffer
	o := termenv.NewOutput(&buf)
	if u.drawn > 0 {
		o.ClearLines(u.drawn)
	}
	width := u.width()
	for _, l := range u.queued {
		buf.WriteString(util.TruncateANSI(l, width))
		buf.WriteByte('\n')
	}
	u.queued = u.queued[:0]
	for _, l := range lines {
		buf.WriteString(util.TruncateANSI(l, width))
		buf.WriteByte('\n')
	}
	u.drawn = len(lines)
	_, _ = u.out.Write(buf.Bytes())
}

func (u *UI) spinnerLocked() string {
	if len(u.frames) == 0 {
		return IconRunning
	}
	return Spinner.Render(u.frames[u.frame%len(u.frames)])
}

func (u *UI) sectionLocked() []string {
	var lines []string
	if g := u.group; g != nil {
		width := u.width()
		if width <= 0 {
			width = 40
		}
		lines = append(lines, Rule.Render(strings.Repeat("─", width)))
		lines = append(lines, fmt.Sprintf("%s %s  %s",
			u.spinnerLocked(), GroupTag.Render(g.name), Muted.Render(summary(g.counts, g.total))))

		now := time.Now()
		for _, f := range g.focused {
			lines = append(lines, u.focusedLineLocked(f, now))
		}
	}
	if n := len(u.indefinite); n > 0 {
		names := make([]string, 0, n)
		for _, s := range u.indefinite {
			names = append(names, s.Name())
		}
		lines = append(lines, Hint.Render(fmt.Sprintf("%s %s after the run: %s",
			IconArrow, util.Plural(n, "indefinite step"), strings.Join(names, ", "))))
	}
	return lines
}

func (u *UI) focusedLineLocked(f *focusedStep, now time.Time) string {
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(u.spinnerLocked())
	b.WriteString(" ")
	b.WriteString(StepLabel.Render(f.step.Name()))
	if f.status != "" {
		b.WriteString("  ")
		b.WriteString(Status.Render(f.status))
	}
	if len(f.subs) > 0 {
		c := f.subCounts()
		b.WriteString("  ")
		b.WriteString(Muted.Render(fmt.Sprintf("(%d running, %d done)", c.Running, c.Done())))
	}
	b.WriteString("  ")
	b.WriteString(Muted.Render(util.FormatDuration(now.Sub(f.started))))
	return b.String()
}

// summary renders "2 running · 3 succeeded · 0 failed · 1 skipped of 7".
func summary(c Counts, total int) string {
	return fmt.Sprintf("%d running · %d succeeded · %d failed · %d skipped of %d",
		c.Running, c.Succeeded, c.Failed, c.Skipped, total)
}

// tag is the bracketed prefix for a step's lines; nested steps carry their
// parent's label.
func tag(ref event.StepRef) string {
	if ref.Parent != nil {
		return StepTag.Render("[" + ref.Parent.Name() + " " + IconArrow + " " + ref.Step.Name() + "]")
	}
	return StepTag.Render("[" + ref.Step.Name() + "]")
}

func (u *UI) groupFor(ref event.StepRef) *groupState {
	if u.group != nil && u.group.name == ref.Group {
		return u.group
	}
	return nil
}

func (u *UI) handle(e event.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}

	switch ev := e.(type) {
	case event.GroupStartedEvent:
		u.group = newGroupState(ev.Group, len(ev.Steps), ev.Timestamp())
		if len(ev.Steps) > 0 {
			u.logLocked(step.LevelDebug, Muted.Render(fmt.Sprintf("%s %s: %s",
				IconArrow, ev.Group, util.Plural(len(ev.Steps), "step"))))
		}

	case event.GroupFinishedEvent:
		if g := u.group; g != nil && g.name == ev.Group {
			u.logGroupSummaryLocked(g, ev)
			u.group = nil
		}

	case event.StepStartedEvent:
		if g := u.groupFor(ev.StepRef); g != nil {
			g.start(ev.Step, ev.Parent, ev.Timestamp())
		}
		switch {
		case ev.Nested():
			u.logLocked(step.LevelDebug, tag(ev.StepRef)+" "+Muted.Render("started"))
		case !u.opts.Interactive:
			u.logLocked(step.LevelInfo, IconRunning+" "+StepLabel.Render(ev.Step.Name()))
		}

	case event.StepSucceededEvent:
		if g := u.groupFor(ev.StepRef); g != nil {
			g.finish(ev.Step, ev.Parent, StateSucceeded)
		}
		duration := Muted.Render("(" + util.FormatDuration(ev.Duration) + ")")
		if ev.Nested() {
			u.logLocked(step.LevelDebug, tag(ev.StepRef)+" "+Success.Render("succeeded")+" "+duration)
		} else {
			u.logLocked(step.LevelInfo, Success.Render(IconSucceeded)+" "+StepLabel.Render(ev.Step.Name())+" "+duration)
		}

	case event.StepFailedEvent:
		if g := u.groupFor(ev.StepRef); g != nil {
			g.finish(ev.Step, ev.Parent, StateFailed)
		}
		msg := "failed"
		if ev.Err != nil {
			msg += ": " + firstLine(ev.Err.Error())
		}
		if ev.Nested() {
			u.logLocked(step.LevelDebug, tag(ev.StepRef)+" "+Error.Render(msg))
		} else {
			u.logLocked(step.LevelErrors, Error.Render(IconFailed)+" "+StepLabel.Render(ev.Step.Name())+" "+Error.Render(msg))
		}

	case event.StepSkippedEvent:
		if g := u.groupFor(ev.StepRef); g != nil {
			g.finish(ev.Step, ev.Parent, StateSkipped)
		}
		level := step.LevelInfo
		if ev.Permission == filter.Excluded || ev.Nested() {
			level = step.LevelDebug
		}
		line := Muted.Render(IconSkipped) + " " + StepLabel.Render(ev.Step.Name()) + " " + Muted.Render("skipped")
		if ev.Reason != "" {
			line += " " + Muted.Render("("+ev.Reason+")")
		}
		u.logLocked(level, line)

	case event.StepLogEvent:
		if !u.opts.Level.Allows(ev.Level) {
			return
		}
		prefix := tag(ev.StepRef) + " "
		style := levelStyle(ev.Level)
		for _, line := range strings.Split(strings.TrimRight(ev.Message, "\n"), "\n") {
			u.emitLocked(prefix + style.Render(line))
		}

	case event.StepStatusEvent:
		if g := u.groupFor(ev.StepRef); g != nil {
			g.setStatus(ev.Step, ev.Parent, ev.Status)
		}
		if !u.opts.Interactive && ev.Status != "" {
			u.logLocked(step.LevelDebug, tag(ev.StepRef)+" "+Status.Render(ev.Status))
		}

	case event.StepIndefiniteEvent:
		u.indefinite = append(u.indefinite, ev.Step)
		u.logLocked(step.LevelDebug, tag(ev.StepRef)+" "+Muted.Render("registered indefinite work"))
	}
}

func (u *UI) logGroupSummaryLocked(g *groupState, ev event.GroupFinishedEvent) {
	if g.total == 0 {
		return
	}
	c := g.counts
	parts := []string{fmt.Sprintf("%d succeeded", c.Succeeded)}
	if c.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", c.Failed))
	}
	if c.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", c.Skipped))
	}
	line := fmt.Sprintf("%s: %s in %s", g.name, strings.Join(parts, ", "), util.FormatDuration(ev.Duration))
	if ev.Err != nil {
		u.logLocked(step.LevelErrors, Error.Render(line))
		return
	}
	u.logLocked(step.LevelInfo, Muted.Render(line))
}

func levelStyle(l step.LogLevel) lipgloss.Style {
	switch l {
	case step.LevelErrors:
		return Error
	case step.LevelWarnings:
		return Warning
	case step.LevelDebug:
		return Muted
	default:
		return lipgloss.NewStyle()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
