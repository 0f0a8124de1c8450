// Package scheduler runs steps concurrently while honoring their
// dependencies and a cap on simultaneous work.
//
// A Queue owns a pool of runner slots that grows up to the cap and never
// shrinks. Enqueue either dispatches work immediately on a free slot or
// parks it until its dependencies have completed and a slot frees up. When
// a step fails, everything still waiting on it (directly or transitively) is
// resolved with a DependencyFailedError instead of waiting forever.
package scheduler

import (
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/step"
)

// PerformFunc is the work run for one enqueued step.
type PerformFunc func() error

// item is a unit of queued work.
type item struct {
	step    *step.Step
	perform PerformFunc
	missing map[*step.Step]struct{}
	done    chan error
}

// resolution is a result to deliver once the queue lock is released.
type resolution struct {
	done chan error
	err  error
}

// Queue is a dependency-aware executor with a bounded runner pool.
// All methods are safe for concurrent use via an internal mutex.
type Queue struct {
	mu        sync.Mutex
	limit     int
	slots     int
	idle      int
	pending   []*item
	completed map[*step.Step]struct{}
	failed    map[*step.Step]struct{}
}

// New creates a Queue running at most limit steps at once.
// A limit of zero or less uses runtime.NumCPU().
func New(limit int) *Queue {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Queue{
		limit:     limit,
		completed: make(map[*step.Step]struct{}),
		failed:    make(map[*step.Step]struct{}),
	}
}

// Limit returns the slot cap.
func (q *Queue) Limit() int {
	return q.limit
}

// Enqueue schedules perform for s once every step in deps has completed
// successfully. The returned channel receives exactly one value: nil on
// success, the error perform returned (or its recovered panic), or a
// *errors.DependencyFailedError if a dependency failed first.
func (q *Queue) Enqueue(s *step.Step, deps []*step.Step, perform PerformFunc) <-chan error {
	it := &item{
		step:    s,
		perform: perform,
		missing: make(map[*step.Step]struct{}, len(deps)),
		done:    make(chan error, 1),
	}

	q.mu.Lock()
	for _, d := range deps {
		if d == s {
			continue
		}
		if _, ok := q.failed[d]; ok {
			q.failed[s] = struct{}{}
			q.mu.Unlock()
			it.done <- errors.NewDependencyFailedError(s.ID, d.ID)
			return it.done
		}
		if _, ok := q.completed[d]; !ok {
			it.missing[d] = struct{}{}
		}
	}

	if len(it.missing) > 0 || !q.acquireLocked() {
		q.pending = append(q.pending, it)
		q.mu.Unlock()
		return it.done
	}
	q.mu.Unlock()

	go q.runSlot(it)
	return it.done
}

// acquireLocked claims an idle slot or grows the pool.
func (q *Queue) acquireLocked() bool {
	if q.idle > 0 {
		q.idle--
		return true
	}
	if q.slots < q.limit {
		q.slots++
		return true
	}
	return false
}

// runSlot is one runner slot's loop. It keeps taking ready work until none
// is left, then returns the slot to the idle pool.
func (q *Queue) runSlot(it *item) {
	for it != nil {
		err := perform(it)

		q.mu.Lock()
		var resolved []resolution
		if err == nil {
			q.completed[it.step] = struct{}{}
			for _, p := range q.pending {
				delete(p.missing, it.step)
			}
		} else {
			q.failed[it.step] = struct{}{}
			resolved = q.abortDependentsLocked(it.step)
		}

		next := q.takeReadyLocked()
		var extra []*item
		if next == nil {
			q.idle++
		} else {
			// Other ready work goes to idle slots or pool room.
			for {
				if !q.hasReadyLocked() || !q.acquireLocked() {
					break
				}
				extra = append(extra, q.takeReadyLocked())
			}
		}
		q.mu.Unlock()

		it.done <- err
		for _, r := range resolved {
			r.done <- r.err
		}
		for _, e := range extra {
			go q.runSlot(e)
		}

		it = next
	}
}

// perform runs the item's work, converting a panic into an error.
func perform(it *item) (err error) {
	var pc panics.Catcher
	pc.Try(func() { err = it.perform() })
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// hasReadyLocked reports whether a pending item has no missing dependencies.
func (q *Queue) hasReadyLocked() bool {
	for _, p := range q.pending {
		if len(p.missing) == 0 {
			return true
		}
	}
	return false
}

// takeReadyLocked removes and returns the first pending item whose
// dependencies have all completed, or nil.
func (q *Queue) takeReadyLocked() *item {
	for i, p := range q.pending {
		if len(p.missing) == 0 {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return p
		}
	}
	return nil
}

// abortDependentsLocked removes every pending item waiting on failed, and
// transitively on those items, returning their resolutions.
func (q *Queue) abortDependentsLocked(failed *step.Step) []resolution {
	var out []resolution
	frontier := []*step.Step{failed}
	for len(frontier) > 0 {
		dead := frontier[0]
		frontier = frontier[1:]

		kept := q.pending[:0]
		for _, p := range q.pending {
			if _, waits := p.missing[dead]; !waits {
				kept = append(kept, p)
				continue
			}
			q.failed[p.step] = struct{}{}
			frontier = append(frontier, p.step)
			out = append(out, resolution{
				done: p.done,
				err:  errors.NewDependencyFailedError(p.step.ID, dead.ID),
			})
		}
		// Clear the tail so dropped items can be collected.
		for i := len(kept); i < len(q.pending); i++ {
			q.pending[i] = nil
		}
		q.pending = kept
	}
	return out
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Limit     int
	Slots     int
	Idle      int
	Running   int
	Pending   int
	Completed int
	Failed    int
}

// Stats returns the current queue state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Limit:     q.limit,
		Slots:     q.slots,
		Idle:      q.idle,
		Running:   q.slots - q.idle,
		Pending:   len(q.pending),
		Completed: len(q.completed),
		Failed:    len(q.failed),
	}
}
