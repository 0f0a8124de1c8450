// Package filter decides, per step, whether skip and isolate patterns let
// it run.
//
// Patterns are dot-delimited step ids. "*" matches exactly one segment and
// "**" any number of segments; the other doublestar glob syntax ("?",
// "[a-z]", "{a,b}") works within a segment. Matching ignores case.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/step"
)

// Permission is the filter's verdict for a step.
type Permission int

const (
	// Default means no filter is active for the step.
	Default Permission = iota
	// Skipped means a skip pattern matched.
	Skipped
	// Excluded means isolate patterns are active and none matched.
	Excluded
	// Isolated means an isolate pattern matched and no skip list is active.
	Isolated
	// NotSkipped means a skip list is active and did not match.
	NotSkipped
	// IsolatedAndNotSkipped means an isolate pattern matched and the
	// active skip list did not.
	IsolatedAndNotSkipped
)

var permissionNames = [...]string{
	Default:               "default",
	Skipped:               "skipped",
	Excluded:              "excluded",
	Isolated:              "isolated",
	NotSkipped:            "not-skipped",
	IsolatedAndNotSkipped: "isolated-and-not-skipped",
}

// String returns the permission name.
func (p Permission) String() string {
	if p >= 0 && int(p) < len(permissionNames) {
		return permissionNames[p]
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

// MarshalText renders the name in JSON and YAML output.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a permission name.
func (p *Permission) UnmarshalText(text []byte) error {
	for i, name := range permissionNames {
		if name == string(text) {
			*p = Permission(i)
			return nil
		}
	}
	return fmt.Errorf("unknown permission %q", text)
}

// ShouldRun is false for Skipped and Excluded. Both still count as
// resolved for dependency purposes.
func (p Permission) ShouldRun() bool {
	return p != Skipped && p != Excluded
}

// Filter holds compiled skip and isolate patterns.
type Filter struct {
	skip    []string
	isolate []string
}

// New compiles the patterns. An invalid pattern yields a
// *errors.DiagnosticError.
func New(skip, isolate []string) (*Filter, error) {
	s, err := compile(skip)
	if err != nil {
		return nil, err
	}
	i, err := compile(isolate)
	if err != nil {
		return nil, err
	}
	return &Filter{skip: s, isolate: i}, nil
}

// compile turns dot patterns into lowercase doublestar paths.
func compile(patterns []string) ([]string, error) {
	var out []string
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		glob := toPath(p)
		if p == "" || strings.Contains(p, "/") || !doublestar.ValidatePattern(glob) {
			return nil, errors.NewDiagnosticError("Invalid step pattern").
				WithContent(fmt.Sprintf("%q is not a valid step pattern.", raw)).
				WithSuggestion("Patterns are dot-delimited step ids; * matches one segment and ** any number, e.g. Web.* or **.Lint.").
				WithCause(errors.ErrInvalidPattern)
		}
		out = append(out, glob)
	}
	return out, nil
}

func toPath(id string) string {
	return strings.ReplaceAll(strings.ToLower(id), ".", "/")
}

// Active reports whether any pattern is set.
func (f *Filter) Active() bool {
	return f != nil && (len(f.skip) > 0 || len(f.isolate) > 0)
}

// Check returns the permission for the step id. ancestorIDs are the ids of
// the step's parents and source plugins; an isolate pattern matching any of
// them includes the step.
func (f *Filter) Check(id string, ancestorIDs ...string) Permission {
	if f == nil || step.IsCoreID(id) {
		return Default
	}

	isolating := len(f.isolate) > 0
	if isolating && !matchAny(f.isolate, id) && !matchAny(f.isolate, ancestorIDs...) {
		return Excluded
	}

	if len(f.skip) > 0 {
		if matchAny(f.skip, id) {
			return Skipped
		}
		if isolating {
			return IsolatedAndNotSkipped
		}
		return NotSkipped
	}

	if isolating {
		return Isolated
	}
	return Default
}

func matchAny(patterns []string, ids ...string) bool {
	for _, id := range ids {
		path := toPath(id)
		for _, p := range patterns {
			// Patterns were validated in New.
			if ok, _ := doublestar.Match(p, path); ok {
				return true
			}
		}
	}
	return false
}

// Options are the six inclusion flags.
type Options struct {
	SkipSteps        []string
	IsolateSteps     []string
	SkipPreSteps     []string
	IsolatePreSteps  []string
	SkipPostSteps    []string
	IsolatePostSteps []string
}

// Filters holds one Filter per run group.
type Filters struct {
	Pre  *Filter
	Main *Filter
	Post *Filter
}

// NewFilters compiles the filters of all three groups.
func NewFilters(opts Options) (*Filters, error) {
	pre, err := New(opts.SkipPreSteps, opts.IsolatePreSteps)
	if err != nil {
		return nil, err
	}
	main, err := New(opts.SkipSteps, opts.IsolateSteps)
	if err != nil {
		return nil, err
	}
	post, err := New(opts.SkipPostSteps, opts.IsolatePostSteps)
	if err != nil {
		return nil, err
	}
	return &Filters{Pre: pre, Main: main, Post: post}, nil
}
