package orchestrator

import (
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/step"
)

// StepInfo describes one planned step for introspection.
type StepInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Group      string            `json:"group" yaml:"group"`
	Permission filter.Permission `json:"permission" yaml:"permission"`
	// Plugins is the producing plugin followed by the compositions that
	// pulled it in.
	Plugins   []string        `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Needs     []string        `json:"needs,omitempty" yaml:"needs,omitempty"`
	Resources *step.Resources `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Describe lists every planned step in run order with the permission the
// group's filter gives it. filters may be nil.
func (p *Plan) Describe(filters *filter.Filters) []StepInfo {
	if filters == nil {
		filters = &filter.Filters{}
	}
	var out []StepInfo
	for _, g := range p.Groups() {
		f := groupFilter(filters, g.Name)
		for _, s := range g.Steps {
			ancestors := p.Ancestors(s)
			info := StepInfo{
				ID:         s.ID,
				Group:      g.Name,
				Permission: f.Check(s.ID, ancestors...),
				Plugins:    ancestors,
			}
			if s.Label != "" && s.Label != s.ID {
				info.Label = s.Label
			}
			for _, dep := range step.Dependencies(s, g.Steps) {
				info.Needs = append(info.Needs, dep.ID)
			}
			if s.Resources != (step.Resources{}) {
				res := s.Resources
				info.Resources = &res
			}
			out = append(out, info)
		}
	}
	return out
}
