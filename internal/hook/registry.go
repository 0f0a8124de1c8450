package hook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/kiln/internal/errors"
)

// Registry is an open set of named hooks. Plugins contribute hooks to it
// during the configure-hooks phase and other plugins look them up later,
// so the task layer never needs to know every hook in advance.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]any
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]any)}
}

// Register stores h under key, replacing any previous hook.
func (r *Registry) Register(key string, h any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[key] = h
}

// Has reports whether key was registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hooks[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.hooks))
	for k := range r.hooks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the hook registered under key as H. A missing key, or a
// hook of a different type, yields a *errors.MissingCapabilityError.
func Lookup[H any](r *Registry, key string) (H, error) {
	var zero H
	r.mu.RLock()
	v, ok := r.hooks[key]
	r.mu.RUnlock()

	want := fmt.Sprintf("%T", zero)
	if !ok {
		return zero, errors.NewMissingCapabilityError(key, want)
	}
	h, ok := v.(H)
	if !ok {
		return zero, errors.NewMissingCapabilityError(key, want)
	}
	return h, nil
}

// Provide returns the hook under key, creating and registering it with
// create when absent. It lets several plugins share one hook without
// agreeing on who registers it first.
func Provide[H any](r *Registry, key string, create func() H) (H, error) {
	r.mu.Lock()
	v, ok := r.hooks[key]
	if !ok {
		h := create()
		r.hooks[key] = h
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	h, ok := v.(H)
	if !ok {
		var zero H
		return zero, errors.NewMissingCapabilityError(key, fmt.Sprintf("%T", zero))
	}
	return h, nil
}
