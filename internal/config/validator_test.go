package config

import (
	"strings"
	"testing"
)

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "run.concurrency",
		Value:   -1,
		Message: "must be non-negative",
	}

	expected := "run.concurrency: must be non-negative (got: -1)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() = %q, want empty", errs.Error())
		}
	})

	t.Run("single", func(t *testing.T) {
		errs := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
		if errs.Error() != "a: bad (got: 1)" {
			t.Errorf("Error() = %q", errs.Error())
		}
	})

	t.Run("multiple", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "a", Value: 1, Message: "bad"},
			{Field: "b", Value: 2, Message: "worse"},
		}
		got := errs.Error()
		if !strings.HasPrefix(got, "2 validation errors:") {
			t.Errorf("Error() = %q", got)
		}
		if !strings.Contains(got, "1. a: bad") || !strings.Contains(got, "2. b: worse") {
			t.Errorf("Error() = %q", got)
		}
	})
}

func TestConfig_Validate_Run(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"zero concurrency", func(c *Config) { c.Run.Concurrency = 0 }, "run.concurrency", false},
		{"negative concurrency", func(c *Config) { c.Run.Concurrency = -2 }, "run.concurrency", true},
		{"huge concurrency", func(c *Config) { c.Run.Concurrency = 5000 }, "run.concurrency", true},
		{"debug level", func(c *Config) { c.Run.LogLevel = "debug" }, "run.log_level", false},
		{"slog level is not a run level", func(c *Config) { c.Run.LogLevel = "warn" }, "run.log_level", true},
		{"never interactive", func(c *Config) { c.Run.Interactive = "never" }, "run.interactive", false},
		{"bad interactive", func(c *Config) { c.Run.Interactive = "yes" }, "run.interactive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_UI(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"redraw too fast", func(c *Config) { c.UI.RedrawIntervalMs = 1 }, "ui.redraw_interval_ms", true},
		{"spinner zero", func(c *Config) { c.UI.SpinnerIntervalMs = 0 }, "ui.spinner_interval_ms", true},
		{"history too small", func(c *Config) { c.UI.IndefiniteHistoryBytes = 10 }, "ui.indefinite_history_bytes", true},
		{"history ok", func(c *Config) { c.UI.IndefiniteHistoryBytes = 1 << 20 }, "ui.indefinite_history_bytes", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if got := hasFieldError(cfg.Validate(), tt.field); got != tt.wantErr {
				t.Errorf("error on %s = %v, want %v", tt.field, got, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", ""} {
			cfg := Default()
			cfg.Logging.Level = level
			if hasFieldError(cfg.Validate(), "logging.level") {
				t.Errorf("level %q should be valid", level)
			}
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "INFO"
		if !hasFieldError(cfg.Validate(), "logging.level") {
			t.Error("expected error for uppercase log level")
		}
	})

	t.Run("max size bounds", func(t *testing.T) {
		for _, size := range []int{0, -1, 1001} {
			cfg := Default()
			cfg.Logging.MaxSizeMB = size
			if !hasFieldError(cfg.Validate(), "logging.max_size_mb") {
				t.Errorf("expected error for max_size_mb=%d", size)
			}
		}
	})

	t.Run("negative backups", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.MaxBackups = -1
		if !hasFieldError(cfg.Validate(), "logging.max_backups") {
			t.Error("expected error for negative max_backups")
		}
	})
}

func validWorkspace() *Config {
	cfg := Default()
	cfg.Workspace.Projects = []ProjectConfig{
		{
			Name: "web",
			Commands: []CommandConfig{
				{ID: "compile", Task: "build", Run: "tsc"},
				{ID: "bundle", Task: "build", Run: "esbuild", Needs: []string{"compile"}},
				{ID: "serve", Task: "dev", Run: "vite", Indefinite: true, Watch: []string{"src/**/*.ts"}},
			},
		},
		{
			Name: "api",
			Commands: []CommandConfig{
				{ID: "compile", Task: "build", Run: "go build ./...", Needs: []string{"web.bundle"}},
			},
		},
	}
	return cfg
}

func TestConfig_Validate_Workspace(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if errs := validWorkspace().Validate(); len(errs) != 0 {
			t.Errorf("Validate() = %v", errs)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"dotted project name", func(c *Config) { c.Workspace.Projects[0].Name = "web.app" }, "workspace.projects[0].name"},
		{"duplicate project", func(c *Config) { c.Workspace.Projects[1].Name = "WEB" }, "workspace.projects[1].name"},
		{"empty command id", func(c *Config) { c.Workspace.Projects[0].Commands[0].ID = "" }, "workspace.projects[0].commands[0].id"},
		{"unknown task", func(c *Config) { c.Workspace.Projects[0].Commands[0].Task = "deploy" }, "workspace.projects[0].commands[0].task"},
		{"empty run", func(c *Config) { c.Workspace.Projects[0].Commands[0].Run = "  " }, "workspace.projects[0].commands[0].run"},
		{"duplicate command", func(c *Config) { c.Workspace.Projects[0].Commands[1].ID = "Compile" }, "workspace.projects[0].commands[1].id"},
		{"unknown need", func(c *Config) { c.Workspace.Projects[0].Commands[1].Needs = []string{"lint"} }, "workspace.projects[0].commands[1].needs"},
		{"need in other task", func(c *Config) { c.Workspace.Projects[0].Commands[1].Needs = []string{"serve"} }, "workspace.projects[0].commands[1].needs"},
		{"need in unknown project", func(c *Config) { c.Workspace.Projects[1].Commands[0].Needs = []string{"docs.bundle"} }, "workspace.projects[1].commands[0].needs"},
		{"watch without indefinite", func(c *Config) { c.Workspace.Projects[0].Commands[2].Indefinite = false }, "workspace.projects[0].commands[2].watch"},
		{"bad watch glob", func(c *Config) { c.Workspace.Projects[0].Commands[2].Watch = []string{"src/[a-"} }, "workspace.projects[0].commands[2].watch"},
		{"negative cpu", func(c *Config) { c.Workspace.Projects[0].Commands[0].CPU = -1 }, "workspace.projects[0].commands[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkspace()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.field) {
				t.Errorf("Validate() = %v, want error on %s", errs, tt.field)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Run.Concurrency = -1
	cfg.UI.RedrawIntervalMs = 0
	cfg.Logging.MaxBackups = -1

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Errorf("len(Validate()) = %d, want 3: %v", len(errs), errs)
	}
}
