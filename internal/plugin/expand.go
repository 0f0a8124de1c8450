package plugin

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/kiln/internal/errors"
)

// MaxDepth bounds composition nesting. A plugin that composes itself,
// directly or through others, fails expansion once the chain reaches it.
const MaxDepth = 64

// Ancestry maps each expanded plugin to the composition that used it.
// When a plugin is used by several compositions the first one wins.
type Ancestry struct {
	parents map[*Plugin]*Plugin
}

// NewAncestry creates an empty table.
func NewAncestry() *Ancestry {
	return &Ancestry{parents: make(map[*Plugin]*Plugin)}
}

// Parent returns the composition that used p, or nil for a root.
func (a *Ancestry) Parent(p *Plugin) *Plugin {
	if a == nil {
		return nil
	}
	return a.parents[p]
}

// Chain returns p followed by its ancestors up to the topmost composition.
func (a *Ancestry) Chain(p *Plugin) []*Plugin {
	var chain []*Plugin
	seen := make(map[*Plugin]bool)
	for cur := p; cur != nil && !seen[cur]; cur = a.Parent(cur) {
		seen[cur] = true
		chain = append(chain, cur)
	}
	return chain
}

// IDs returns the ids of Chain(p).
func (a *Ancestry) IDs(p *Plugin) []string {
	chain := a.Chain(p)
	ids := make([]string, len(chain))
	for i, c := range chain {
		ids[i] = c.ID
	}
	return ids
}

type composer struct {
	children []*Plugin
	seen     map[*Plugin]bool
}

func (c *composer) Use(children ...*Plugin) {
	for _, child := range children {
		if child == nil || c.seen[child] {
			continue
		}
		c.seen[child] = true
		c.children = append(c.children, child)
	}
}

type expander struct {
	ancestry *Ancestry
	leaves   []*Plugin
	seen     map[*Plugin]bool
	ids      map[string]*Plugin
}

// Expand flattens roots into their leaf plugins in depth-first declaration
// order. Nil roots are ignored and each leaf appears once. Steps and hooks
// are attributed by plugin id, so two distinct plugins sharing an id are
// rejected with ErrInvalidPlugin.
func Expand(roots ...*Plugin) ([]*Plugin, *Ancestry, error) {
	e := &expander{
		ancestry: NewAncestry(),
		seen:     make(map[*Plugin]bool),
		ids:      make(map[string]*Plugin),
	}
	for _, root := range roots {
		if root == nil {
			continue
		}
		if err := e.expand(root, nil); err != nil {
			return nil, nil, err
		}
	}
	return e.leaves, e.ancestry, nil
}

// expand walks p. path holds the compositions above p, outermost first.
func (e *expander) expand(p *Plugin, path []*Plugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if other, ok := e.ids[p.ID]; ok && other != p {
		return errors.NewDiagnosticError(fmt.Sprintf("Duplicate plugin %q", p.ID)).
			WithContent(fmt.Sprintf("Two different plugins use the id %q.", p.ID)).
			WithSuggestion("Give each plugin a unique id, or reuse the same plugin value.").
			WithCause(errors.ErrInvalidPlugin)
	}
	e.ids[p.ID] = p

	if len(path) > 0 {
		parent := path[len(path)-1]
		if parent.Target == TargetProject && p.Target == TargetWorkspace {
			return errors.NewDiagnosticError(fmt.Sprintf("Invalid plugin %q", p.ID)).
				WithContent(fmt.Sprintf("Project plugin %q cannot use workspace plugin %q.", parent.ID, p.ID)).
				WithSuggestion("Compose the workspace plugin from a workspace plugin instead.").
				WithCause(errors.ErrInvalidPlugin)
		}
		if _, ok := e.ancestry.parents[p]; !ok {
			e.ancestry.parents[p] = parent
		}
	}

	if len(path) >= MaxDepth {
		return errors.NewDiagnosticError("Plugin composition too deep").
			WithContent(fmt.Sprintf("Composition exceeded %d levels: %s", MaxDepth, describeChain(append(path, p)))).
			WithSuggestion("Check for a plugin that uses itself, directly or through another plugin.").
			WithCause(errors.ErrCompositionTooDeep)
	}

	if !p.IsComposed() {
		if !e.seen[p] {
			e.seen[p] = true
			e.leaves = append(e.leaves, p)
		}
		return nil
	}

	c := &composer{seen: make(map[*Plugin]bool)}
	p.compose(c)

	childPath := append(path[:len(path):len(path)], p)
	for _, child := range c.children {
		if err := e.expand(child, childPath); err != nil {
			return err
		}
	}
	return nil
}

// describeChain renders the last few ids of an over-deep chain.
func describeChain(path []*Plugin) string {
	const tail = 6
	ids := make([]string, 0, tail+1)
	start := 0
	if len(path) > tail {
		start = len(path) - tail
		ids = append(ids, "...")
	}
	for _, p := range path[start:] {
		ids = append(ids, p.ID)
	}
	return strings.Join(ids, " > ")
}
