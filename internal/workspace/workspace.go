// Package workspace models the monorepo kiln operates on: a named root
// directory holding an ordered list of projects.
package workspace

import (
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/kiln/internal/config"
)

// OutputDirName is the per-workspace directory kiln writes logs and
// metadata into.
const OutputDirName = ".kiln"

// Project is one buildable unit in the workspace.
type Project struct {
	Name string
	Kind string
	// Root is absolute.
	Root string
}

// Workspace is the set of projects a task runs over.
type Workspace struct {
	Name     string
	Root     string
	Projects []*Project
}

// New creates a workspace. An empty name defaults to the base of root.
func New(name, root string, projects ...*Project) *Workspace {
	if name == "" {
		name = filepath.Base(root)
	}
	return &Workspace{Name: name, Root: root, Projects: projects}
}

// FromConfig builds the workspace declared in cfg. Relative roots resolve
// against baseDir.
func FromConfig(cfg *config.WorkspaceConfig, baseDir string) *Workspace {
	root := cfg.ResolveRoot(baseDir)
	ws := New(cfg.Name, root)
	for _, pc := range cfg.Projects {
		projectRoot := pc.Root
		if projectRoot == "" {
			projectRoot = pc.Name
		}
		if !filepath.IsAbs(projectRoot) {
			projectRoot = filepath.Join(root, projectRoot)
		}
		ws.Projects = append(ws.Projects, &Project{
			Name: pc.Name,
			Kind: pc.Kind,
			Root: projectRoot,
		})
	}
	return ws
}

// Project returns the project with the given name, ignoring case.
func (w *Workspace) Project(name string) (*Project, bool) {
	for _, p := range w.Projects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// OutputDir returns <root>/.kiln.
func (w *Workspace) OutputDir() string {
	return filepath.Join(w.Root, OutputDirName)
}

// LogDir returns <root>/.kiln/logs.
func (w *Workspace) LogDir() string {
	return filepath.Join(w.OutputDir(), "logs")
}
