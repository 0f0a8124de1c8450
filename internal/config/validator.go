package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "ui.redraw_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// identRegex validates project names and command ids.
// Dots are reserved as the step id namespace separator.
var identRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidLogLevels returns the list of valid debug log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidRunLogLevels returns the list of valid terminal verbosity levels
func ValidRunLogLevels() []string {
	return []string{"errors", "warnings", "info", "debug"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Workspace config
	errors = append(errors, c.validateWorkspace()...)

	// Validate Run config
	errors = append(errors, c.validateRun()...)

	// Validate UI config
	errors = append(errors, c.validateUI()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateWorkspace validates projects and their commands
func (c *Config) validateWorkspace() []ValidationError {
	var errors []ValidationError

	projects := make(map[string]*ProjectConfig, len(c.Workspace.Projects))
	for i := range c.Workspace.Projects {
		p := &c.Workspace.Projects[i]
		field := fmt.Sprintf("workspace.projects[%d]", i)

		if !identRegex.MatchString(p.Name) {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Value:   p.Name,
				Message: "must start with a letter and contain only letters, digits, hyphens, and underscores",
			})
			continue
		}
		key := strings.ToLower(p.Name)
		if _, dup := projects[key]; dup {
			errors = append(errors, ValidationError{
				Field:   field + ".name",
				Value:   p.Name,
				Message: "duplicate project name",
			})
			continue
		}
		projects[key] = p
	}

	for i := range c.Workspace.Projects {
		p := &c.Workspace.Projects[i]
		errors = append(errors, validateCommands(p, fmt.Sprintf("workspace.projects[%d]", i), projects)...)
	}

	return errors
}

// validateCommands validates one project's command list
func validateCommands(p *ProjectConfig, prefix string, projects map[string]*ProjectConfig) []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for j, cmd := range p.Commands {
		field := fmt.Sprintf("%s.commands[%d]", prefix, j)

		if !identRegex.MatchString(cmd.ID) {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   cmd.ID,
				Message: "must start with a letter and contain only letters, digits, hyphens, and underscores",
			})
		}
		if !slices.Contains(ValidTasks(), cmd.Task) {
			errors = append(errors, ValidationError{
				Field:   field + ".task",
				Value:   cmd.Task,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTasks(), ", ")),
			})
		}
		if strings.TrimSpace(cmd.Run) == "" {
			errors = append(errors, ValidationError{
				Field:   field + ".run",
				Value:   cmd.Run,
				Message: "must not be empty",
			})
		}

		key := cmd.Task + "/" + strings.ToLower(cmd.ID)
		if seen[key] {
			errors = append(errors, ValidationError{
				Field:   field + ".id",
				Value:   cmd.ID,
				Message: fmt.Sprintf("duplicate command id for task %q", cmd.Task),
			})
		}
		seen[key] = true

		for _, need := range cmd.Needs {
			if !commandExists(p, need, cmd.Task, projects) {
				errors = append(errors, ValidationError{
					Field:   field + ".needs",
					Value:   need,
					Message: fmt.Sprintf("no %s command with this id", cmd.Task),
				})
			}
		}

		if len(cmd.Watch) > 0 && !cmd.Indefinite {
			errors = append(errors, ValidationError{
				Field:   field + ".watch",
				Value:   cmd.Watch,
				Message: "requires indefinite: true",
			})
		}
		for _, pattern := range cmd.Watch {
			if !doublestar.ValidatePattern(pattern) {
				errors = append(errors, ValidationError{
					Field:   field + ".watch",
					Value:   pattern,
					Message: "invalid glob pattern",
				})
			}
		}

		if cmd.CPU < 0 || cmd.Memory < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   fmt.Sprintf("cpu=%v memory=%v", cmd.CPU, cmd.Memory),
				Message: "resource hints must be non-negative",
			})
		}
	}

	return errors
}

// commandExists resolves a needs reference: "ID" within the same project,
// or "Project.ID" across projects.
func commandExists(p *ProjectConfig, ref, task string, projects map[string]*ProjectConfig) bool {
	target := p
	id := ref
	if project, rest, ok := strings.Cut(ref, "."); ok {
		target = projects[strings.ToLower(project)]
		id = rest
	}
	if target == nil {
		return false
	}
	for _, cmd := range target.Commands {
		if cmd.Task == task && strings.EqualFold(cmd.ID, id) {
			return true
		}
	}
	return false
}

// validateRun validates the RunConfig
func (c *Config) validateRun() []ValidationError {
	var errors []ValidationError

	// Concurrency must be non-negative; 0 means number of CPUs
	if c.Run.Concurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "run.concurrency",
			Value:   c.Run.Concurrency,
			Message: "must be non-negative (0 uses the number of CPUs)",
		})
	}

	const maxConcurrency = 1024
	if c.Run.Concurrency > maxConcurrency {
		errors = append(errors, ValidationError{
			Field:   "run.concurrency",
			Value:   c.Run.Concurrency,
			Message: fmt.Sprintf("exceeds maximum of %d", maxConcurrency),
		})
	}

	if c.Run.LogLevel != "" && !slices.Contains(ValidRunLogLevels(), c.Run.LogLevel) {
		errors = append(errors, ValidationError{
			Field:   "run.log_level",
			Value:   c.Run.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRunLogLevels(), ", ")),
		})
	}

	if c.Run.Interactive != "" && !slices.Contains(ValidInteractiveModes(), c.Run.Interactive) {
		errors = append(errors, ValidationError{
			Field:   "run.interactive",
			Value:   c.Run.Interactive,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidInteractiveModes(), ", ")),
		})
	}

	return errors
}

// validateUI validates the UIConfig
func (c *Config) validateUI() []ValidationError {
	var errors []ValidationError

	// Timer intervals below 5ms would spin the render loop
	const minIntervalMs = 5
	if c.UI.RedrawIntervalMs < minIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "ui.redraw_interval_ms",
			Value:   c.UI.RedrawIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minIntervalMs),
		})
	}
	if c.UI.SpinnerIntervalMs < minIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "ui.spinner_interval_ms",
			Value:   c.UI.SpinnerIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minIntervalMs),
		})
	}

	const minHistory = 1024
	if c.UI.IndefiniteHistoryBytes < minHistory {
		errors = append(errors, ValidationError{
			Field:   "ui.indefinite_history_bytes",
			Value:   c.UI.IndefiniteHistoryBytes,
			Message: fmt.Sprintf("must be at least %d", minHistory),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
