package ui

import (
	"slices"
	"time"

	"github.com/Iron-Ham/kiln/internal/step"
)

// State is the lifecycle state of a step as shown by the renderer.
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StateFailed
	StateSkipped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Counts tallies steps per state.
type Counts struct {
	Running   int
	Succeeded int
	Failed    int
	Skipped   int
}

// Done is the number of settled steps.
func (c Counts) Done() int { return c.Succeeded + c.Failed + c.Skipped }

func (c *Counts) move(from, to State, started bool) {
	if started {
		c.add(from, -1)
	}
	c.add(to, 1)
}

func (c *Counts) add(s State, n int) {
	switch s {
	case StateRunning:
		c.Running += n
	case StateSucceeded:
		c.Succeeded += n
	case StateFailed:
		c.Failed += n
	case StateSkipped:
		c.Skipped += n
	}
}

// focusedSubStep is a nested step of a focused step.
type focusedSubStep struct {
	step  *step.Step
	state State
}

// focusedStep is a running top level step shown in the group block.
type focusedStep struct {
	step    *step.Step
	state   State
	status  string
	started time.Time
	subs    []*focusedSubStep
}

func (f *focusedStep) subCounts() Counts {
	var c Counts
	for _, s := range f.subs {
		c.add(s.state, 1)
	}
	return c
}

func (f *focusedStep) sub(s *step.Step) *focusedSubStep {
	for _, sub := range f.subs {
		if sub.step == s {
			return sub
		}
	}
	return nil
}

// groupState holds the progress of the active run group. Focused steps
// leave the set once they settle; the counts keep accumulating.
type groupState struct {
	name    string
	total   int
	started time.Time
	counts  Counts

	focused []*focusedStep
	// owner maps every started step, nested or not, to the focused top
	// level step it belongs to.
	owner map[*step.Step]*focusedStep
}

func newGroupState(name string, total int, now time.Time) *groupState {
	return &groupState{
		name:    name,
		total:   total,
		started: now,
		owner:   make(map[*step.Step]*focusedStep),
	}
}

// start records a step entering its run function. parent is nil for top
// level steps.
func (g *groupState) start(s, parent *step.Step, now time.Time) {
	if parent == nil {
		f := &focusedStep{step: s, state: StateRunning, started: now}
		g.focused = append(g.focused, f)
		g.owner[s] = f
		g.counts.add(StateRunning, 1)
		return
	}
	f := g.owner[parent]
	if f == nil {
		return
	}
	f.subs = append(f.subs, &focusedSubStep{step: s, state: StateRunning})
	g.owner[s] = f
}

// finish settles a step. Steps that never started (skipped, or aborted
// because a dependency failed) are counted without touching Running.
func (g *groupState) finish(s, parent *step.Step, to State) {
	if parent != nil {
		if f := g.owner[parent]; f != nil {
			if sub := f.sub(s); sub != nil {
				sub.state = to
			} else {
				f.subs = append(f.subs, &focusedSubStep{step: s, state: to})
			}
		}
		return
	}

	f, started := g.owner[s]
	if started && f.step == s && f.state == StateRunning {
		g.counts.move(StateRunning, to, true)
		f.state = to
		g.focused = slices.DeleteFunc(g.focused, func(x *focusedStep) bool { return x == f })
		return
	}
	g.counts.add(to, 1)
}

// setStatus sets the status text of s's focused step. Nested steps report
// on their owner, prefixed with their own name.
func (g *groupState) setStatus(s, parent *step.Step, status string) {
	f := g.owner[s]
	if f == nil {
		return
	}
	if parent != nil && status != "" {
		status = s.Name() + ": " + status
	}
	f.status = status
}
