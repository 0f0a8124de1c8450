// Package hook provides the extension points plugins attach callbacks to.
//
// Two hook shapes exist:
//
//   - [SeriesHook]: every callback receives the same argument; results are
//     collected in registration order.
//   - [WaterfallHook]: a value is threaded through every callback, each one
//     returning a possibly transformed value for the next.
//
// Callbacks always run sequentially on the caller's goroutine, one at a time,
// in registration order. Later plugins may rely on the transformations made by
// earlier ones, so hooks never fan out.
//
// Usage:
//
//	entries := hook.NewWaterfall[[]string, hook.Void]()
//	entries.Hook("Web.Entries", func(ctx context.Context, in []string, _ hook.Void) ([]string, error) {
//	    return append(in, "src/index.ts"), nil
//	})
//	out, err := entries.Run(ctx, nil, hook.Void{})
package hook

import (
	"context"
	"sync"
)

// Void is the result and extra-argument type of hooks that carry no value.
type Void = struct{}

// SeriesFunc is a callback registered on a SeriesHook.
type SeriesFunc[A, R any] func(ctx context.Context, arg A) (R, error)

// WaterfallFunc is a callback registered on a WaterfallHook.
type WaterfallFunc[T, E any] func(ctx context.Context, acc T, extra E) (T, error)

type entry[F any] struct {
	id string
	fn F
}

// entries is the registration list shared by both hook shapes.
type entries[F any] struct {
	mu   sync.Mutex
	list []entry[F]
}

func (e *entries[F]) add(id string, fn F) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, entry[F]{id: id, fn: fn})
}

// snapshot returns a copy so callbacks may register further hooks while
// the hook runs without affecting the current run.
func (e *entries[F]) snapshot() []entry[F] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]entry[F], len(e.list))
	copy(out, e.list)
	return out
}

func (e *entries[F]) ids() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.list))
	for i, en := range e.list {
		out[i] = en.id
	}
	return out
}

// SeriesHook runs every registered callback with the same argument.
type SeriesHook[A, R any] struct {
	entries entries[SeriesFunc[A, R]]
}

// ActionHook is a SeriesHook whose callbacks return nothing but an error.
type ActionHook[A any] = SeriesHook[A, Void]

// NewSeries creates an empty SeriesHook.
func NewSeries[A, R any]() *SeriesHook[A, R] {
	return &SeriesHook[A, R]{}
}

// NewAction creates an empty ActionHook.
func NewAction[A any]() *ActionHook[A] {
	return &ActionHook[A]{}
}

// Hook registers fn. id names the registering plugin and may be empty.
func (h *SeriesHook[A, R]) Hook(id string, fn SeriesFunc[A, R]) {
	h.entries.add(id, fn)
}

// HookAction registers a callback that produces no result.
func (h *SeriesHook[A, R]) HookAction(id string, fn func(ctx context.Context, arg A) error) {
	h.entries.add(id, func(ctx context.Context, arg A) (R, error) {
		var zero R
		return zero, fn(ctx, arg)
	})
}

// Run invokes every callback with arg in registration order, waiting for each
// to return before starting the next. The first error is returned
// immediately and the remaining callbacks are not invoked.
func (h *SeriesHook[A, R]) Run(ctx context.Context, arg A) ([]R, error) {
	list := h.entries.snapshot()
	results := make([]R, 0, len(list))
	for _, en := range list {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, err := en.fn(ctx, arg)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Len returns the number of registered callbacks.
func (h *SeriesHook[A, R]) Len() int {
	return len(h.entries.snapshot())
}

// IDs returns the registering ids in registration order.
func (h *SeriesHook[A, R]) IDs() []string {
	return h.entries.ids()
}

// WaterfallHook threads a value through every registered callback.
type WaterfallHook[T, E any] struct {
	entries entries[WaterfallFunc[T, E]]
}

// NewWaterfall creates an empty WaterfallHook.
func NewWaterfall[T, E any]() *WaterfallHook[T, E] {
	return &WaterfallHook[T, E]{}
}

// Hook registers fn. id names the registering plugin and may be empty.
func (h *WaterfallHook[T, E]) Hook(id string, fn WaterfallFunc[T, E]) {
	h.entries.add(id, fn)
}

// Run folds initial through every callback in registration order and returns
// the final value. With no callbacks it returns initial unchanged.
func (h *WaterfallHook[T, E]) Run(ctx context.Context, initial T, extra E) (T, error) {
	return h.RunTapped(ctx, initial, extra, nil)
}

// RunTapped is Run with tap called after each callback with the registering
// id and the value that callback returned. A nil tap is allowed.
func (h *WaterfallHook[T, E]) RunTapped(ctx context.Context, initial T, extra E, tap func(id string, value T)) (T, error) {
	acc := initial
	for _, en := range h.entries.snapshot() {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		next, err := en.fn(ctx, acc, extra)
		if err != nil {
			return acc, err
		}
		acc = next
		if tap != nil {
			tap(en.id, acc)
		}
	}
	return acc, nil
}

// Len returns the number of registered callbacks.
func (h *WaterfallHook[T, E]) Len() int {
	return len(h.entries.snapshot())
}

// IDs returns the registering ids in registration order.
func (h *WaterfallHook[T, E]) IDs() []string {
	return h.entries.ids()
}
