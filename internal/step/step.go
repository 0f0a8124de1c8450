// Package step defines the unit of work kiln schedules and the Runner
// contract a step's run function receives.
//
// Steps are immutable after construction and are compared by pointer
// identity. Bookkeeping that other packages need about a step (which plugin
// produced it, its parent in a nested run, its filter permission) lives in
// side tables keyed by *Step rather than on the step itself.
package step

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Iron-Ham/kiln/internal/process"
)

// CorePrefix namespaces kiln's own steps and plugins. Core ids are never
// skipped or isolated.
const CorePrefix = "Kiln.Core"

// IsCoreID reports whether id is in the core namespace, ignoring case.
func IsCoreID(id string) bool {
	lower := strings.ToLower(id)
	prefix := strings.ToLower(CorePrefix)
	return lower == prefix || strings.HasPrefix(lower, prefix+".")
}

// Resources are optional scheduling hints. Zero means "unspecified".
type Resources struct {
	CPU    float64 `json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory float64 `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// RunFunc is the body of a step.
type RunFunc func(ctx context.Context, r Runner) error

// Step is a unit of executable work.
type Step struct {
	// ID is stable and dot-namespaced, e.g. "Web.Bundle". Skip and isolate
	// patterns match against it.
	ID string

	// Label is the human-readable name shown by the UI. Empty means ID.
	Label string

	Resources Resources

	// Needs reports whether this step depends on other. Nil means the step
	// has no dependencies.
	Needs func(other *Step) bool

	Run RunFunc
}

// Option configures a Step at construction.
type Option func(*Step)

// WithLabel sets the display label.
func WithLabel(label string) Option {
	return func(s *Step) { s.Label = label }
}

// WithResources sets the resource hints.
func WithResources(r Resources) Option {
	return func(s *Step) { s.Resources = r }
}

// WithNeeds sets the dependency predicate.
func WithNeeds(needs func(other *Step) bool) Option {
	return func(s *Step) { s.Needs = needs }
}

// DependsOn makes the step depend on exactly the given steps.
func DependsOn(deps ...*Step) Option {
	set := make(map[*Step]struct{}, len(deps))
	for _, d := range deps {
		if d != nil {
			set[d] = struct{}{}
		}
	}
	return WithNeeds(func(other *Step) bool {
		_, ok := set[other]
		return ok
	})
}

// New creates a step.
func New(id string, run RunFunc, opts ...Option) *Step {
	s := &Step{ID: id, Run: run}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the label, falling back to the id.
func (s *Step) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.ID
}

// String implements fmt.Stringer.
func (s *Step) String() string {
	return s.ID
}

// Dependencies returns the candidates s depends on, in candidate order.
// A step never depends on itself.
func Dependencies(s *Step, candidates []*Step) []*Step {
	if s.Needs == nil {
		return nil
	}
	var deps []*Step
	for _, c := range candidates {
		if c != s && s.Needs(c) {
			deps = append(deps, c)
		}
	}
	return deps
}

// FindCycle returns a dependency cycle among steps, first step repeated at
// the end, or nil when the dependencies form a DAG. Only dependencies
// within steps are considered.
func FindCycle(steps []*Step) []*Step {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Step]int, len(steps))
	var path []*Step

	var visit func(s *Step) []*Step
	visit = func(s *Step) []*Step {
		state[s] = visiting
		path = append(path, s)
		for _, dep := range Dependencies(s, steps) {
			switch state[dep] {
			case visiting:
				start := slices.Index(path, dep)
				return append(slices.Clone(path[start:]), dep)
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[s] = done
		return nil
	}

	for _, s := range steps {
		if state[s] == unvisited {
			if cycle := visit(s); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// LogLevel orders message verbosity. A configured threshold suppresses
// messages with a higher level.
type LogLevel int

const (
	LevelErrors LogLevel = iota
	LevelWarnings
	LevelInfo
	LevelDebug
)

var levelNames = map[LogLevel]string{
	LevelErrors:   "errors",
	LevelWarnings: "warnings",
	LevelInfo:     "info",
	LevelDebug:    "debug",
}

// String returns the flag spelling of the level.
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Allows reports whether a message at level msg passes threshold l.
func (l LogLevel) Allows(msg LogLevel) bool {
	return msg <= l
}

// ParseLogLevel parses the flag spelling of a level. Singular forms and
// "warn"/"error" are accepted too.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "errors", "error":
		return LevelErrors, nil
	case "warnings", "warning", "warn":
		return LevelWarnings, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (valid: errors, warnings, info, debug)", s)
}

// ValidLogLevels lists the accepted level names.
func ValidLogLevels() []string {
	return []string{"errors", "warnings", "info", "debug"}
}

// Stdio is the I/O handed to an indefinite step.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// IndefiniteFunc runs until ctx is canceled or the work ends on its own.
type IndefiniteFunc func(ctx context.Context, stdio Stdio) error

// Runner is passed to a step's run function.
type Runner interface {
	// Exec runs a subprocess and waits for it. Output is captured and, at
	// debug verbosity, streamed into the step's log.
	Exec(ctx context.Context, name string, args []string, opts ...process.Option) (*process.Result, error)

	// Log emits a message attributed to the step.
	Log(msg string, level LogLevel)

	// Status sets transient status text shown next to the running step.
	// It is never written to the log.
	Status(msg string)

	// Indefinite registers long-running work that starts once every group
	// has finished.
	Indefinite(fn IndefiniteFunc)

	// RunNested runs child steps to completion. The first failure aborts
	// the remaining children and is returned.
	RunNested(ctx context.Context, steps ...*Step) error
}
