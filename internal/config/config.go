package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete kiln configuration
type Config struct {
	Workspace WorkspaceConfig `mapstructure:"workspace" json:"workspace" yaml:"workspace"`
	Run       RunConfig       `mapstructure:"run" json:"run" yaml:"run"`
	UI        UIConfig        `mapstructure:"ui" json:"ui" yaml:"ui"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// WorkspaceConfig describes the workspace and its projects
type WorkspaceConfig struct {
	// Name of the workspace. Defaults to the base name of Root.
	Name string `mapstructure:"name" json:"name" yaml:"name"`
	// Root directory of the workspace. Relative paths resolve against the
	// directory kiln was started in; "~" expands to the home directory.
	Root string `mapstructure:"root" json:"root" yaml:"root"`
	// Projects in the workspace, in declaration order
	Projects []ProjectConfig `mapstructure:"projects" json:"projects" yaml:"projects"`
}

// ProjectConfig describes one project in the workspace
type ProjectConfig struct {
	Name string `mapstructure:"name" json:"name" yaml:"name"`
	// Kind is free-form ("package", "web-app", "service", ...)
	Kind string `mapstructure:"kind" json:"kind,omitempty" yaml:"kind,omitempty"`
	// Root of the project, relative to the workspace root. Defaults to Name.
	Root string `mapstructure:"root" json:"root,omitempty" yaml:"root,omitempty"`
	// Commands become steps through the built-in shell plugin
	Commands []CommandConfig `mapstructure:"commands" json:"commands,omitempty" yaml:"commands,omitempty"`
}

// CommandConfig declares a shell command run as a step
type CommandConfig struct {
	// ID is the step id suffix; the full id is "<Project>.<ID>"
	ID string `mapstructure:"id" json:"id" yaml:"id"`
	// Task the command belongs to: build, dev, test, lint or type-check
	Task string `mapstructure:"task" json:"task" yaml:"task"`
	// Run is the command line, executed with "sh -c"
	Run string `mapstructure:"run" json:"run" yaml:"run"`
	// Label shown in the UI. Defaults to the step id.
	Label string `mapstructure:"label" json:"label,omitempty" yaml:"label,omitempty"`
	// Needs lists ids of commands, in the same project and task, that must
	// succeed first. "Other.ID" references a command in another project.
	Needs []string `mapstructure:"needs" json:"needs,omitempty" yaml:"needs,omitempty"`
	// Indefinite commands keep running after all groups finish (dev servers, watchers)
	Indefinite bool `mapstructure:"indefinite" json:"indefinite,omitempty" yaml:"indefinite,omitempty"`
	// Watch globs, relative to the project root, restart an indefinite command on change
	Watch []string `mapstructure:"watch" json:"watch,omitempty" yaml:"watch,omitempty"`
	// TTY runs the command under a pseudo-terminal
	TTY bool `mapstructure:"tty" json:"tty,omitempty" yaml:"tty,omitempty"`
	// Env holds extra KEY=VALUE pairs
	Env []string `mapstructure:"env" json:"env,omitempty" yaml:"env,omitempty"`
	// CPU and Memory are scheduling hints
	CPU    float64 `mapstructure:"cpu" json:"cpu,omitempty" yaml:"cpu,omitempty"`
	Memory float64 `mapstructure:"memory" json:"memory,omitempty" yaml:"memory,omitempty"`
}

// RunConfig controls step execution
type RunConfig struct {
	// Concurrency caps simultaneously running steps (0 = number of CPUs)
	Concurrency int `mapstructure:"concurrency" json:"concurrency" yaml:"concurrency"`
	// LogLevel is the terminal verbosity: errors, warnings, info, debug
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	// Interactive selects the renderer: auto, always, never
	Interactive string `mapstructure:"interactive" json:"interactive" yaml:"interactive"`
}

// UIConfig controls the terminal renderer
type UIConfig struct {
	// RedrawIntervalMs is how often the persistent section is redrawn
	RedrawIntervalMs int `mapstructure:"redraw_interval_ms" json:"redraw_interval_ms" yaml:"redraw_interval_ms"`
	// SpinnerIntervalMs is how often the spinner advances a frame
	SpinnerIntervalMs int `mapstructure:"spinner_interval_ms" json:"spinner_interval_ms" yaml:"spinner_interval_ms"`
	// IndefiniteHistoryBytes bounds the output kept for a backgrounded indefinite step
	IndefiniteHistoryBytes int `mapstructure:"indefinite_history_bytes" json:"indefinite_history_bytes" yaml:"indefinite_history_bytes"`
}

// LoggingConfig controls the debug log file
type LoggingConfig struct {
	// Enabled writes a JSON debug log to <workspace>/.kiln/logs/debug.log
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	// Level is the minimum level written: debug, info, warn, error
	Level string `mapstructure:"level" json:"level" yaml:"level"`
	// MaxSizeMB is the size at which the log rotates
	MaxSizeMB int `mapstructure:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig controls Prometheus metrics export
type MetricsConfig struct {
	// TextfilePath, when set, receives the run's metrics in the Prometheus
	// text format (suitable for the node_exporter textfile collector)
	TextfilePath string `mapstructure:"textfile_path" json:"textfile_path" yaml:"textfile_path"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: ".",
		},
		Run: RunConfig{
			Concurrency: 0,
			LogLevel:    "info",
			Interactive: "auto",
		},
		UI: UIConfig{
			RedrawIntervalMs:       30,
			SpinnerIntervalMs:      60,
			IndefiniteHistoryBytes: 4 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{},
	}
}

// RedrawInterval returns the redraw interval as a time.Duration
func (c *UIConfig) RedrawInterval() time.Duration {
	return time.Duration(c.RedrawIntervalMs) * time.Millisecond
}

// SpinnerInterval returns the spinner interval as a time.Duration
func (c *UIConfig) SpinnerInterval() time.Duration {
	return time.Duration(c.SpinnerIntervalMs) * time.Millisecond
}

// ResolveRoot returns the absolute workspace root.
// If Root is empty, baseDir is used. A leading ~ expands to the home
// directory and relative paths resolve against baseDir.
func (w *WorkspaceConfig) ResolveRoot(baseDir string) string {
	path := w.Root
	if path == "" {
		path = "."
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Workspace defaults
	viper.SetDefault("workspace.name", defaults.Workspace.Name)
	viper.SetDefault("workspace.root", defaults.Workspace.Root)

	// Run defaults
	viper.SetDefault("run.concurrency", defaults.Run.Concurrency)
	viper.SetDefault("run.log_level", defaults.Run.LogLevel)
	viper.SetDefault("run.interactive", defaults.Run.Interactive)

	// UI defaults
	viper.SetDefault("ui.redraw_interval_ms", defaults.UI.RedrawIntervalMs)
	viper.SetDefault("ui.spinner_interval_ms", defaults.UI.SpinnerIntervalMs)
	viper.SetDefault("ui.indefinite_history_bytes", defaults.UI.IndefiniteHistoryBytes)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.textfile_path", defaults.Metrics.TextfilePath)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kiln")
	}
	// Fall back to ~/.config/kiln
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kiln"
	}
	return filepath.Join(home, ".config", "kiln")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ProjectConfigName is the workspace-local config file looked up in the
// current directory before the user config file.
const ProjectConfigName = "kiln"

// ValidInteractiveModes returns the accepted run.interactive values
func ValidInteractiveModes() []string {
	return []string{"auto", "always", "never"}
}

// ValidTasks returns the task names commands can be attached to
func ValidTasks() []string {
	return []string{"build", "dev", "test", "lint", "type-check"}
}
