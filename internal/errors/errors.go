// Package errors provides centralized error definitions and error handling utilities
// for kiln. It defines domain-specific errors, the diagnostic error type rendered
// by the CLI, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures inside the execution engine:
//   - StepError: a step's run function failed
//   - DependencyFailedError: a queued step was aborted because a dependency failed
//   - CanceledError: the run was interrupted
//
// Diagnostic errors represent configuration and usage problems:
//   - DiagnosticError: title, optional content, optional suggestion
//   - MissingCapabilityError: a plugin looked up a hook nobody registered
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewDiagnosticError("Invalid plugin").
//	    WithContent("plugin has neither a run nor a compose function").
//	    WithSuggestion("Create plugins with plugin.NewProjectPlugin or plugin.ComposeProjectPlugin.")
//
//	err := errors.NewStepError("Web.Compile", cause)
//
// Checking errors:
//
//	var diag *errors.DiagnosticError
//	if errors.As(err, &diag) { ... }
//
//	if errors.Is(err, errors.ErrDependencyFailed) { ... }
//
// # Error Classification
//
//   - UserFacing: errors safe to display to users without a stack dump
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Execution-related sentinel errors
var (
	// ErrStepFailed indicates that a step's run function returned an error.
	ErrStepFailed = New("step failed")
	// ErrDependencyFailed indicates that a step was aborted because a step it
	// depends on failed.
	ErrDependencyFailed = New("dependency failed")
	// ErrNestingTooDeep indicates runaway recursion through nested steps.
	ErrNestingTooDeep = New("nested steps too deep")
)

// Configuration-related sentinel errors
var (
	// ErrInvalidPlugin indicates a malformed plugin value.
	ErrInvalidPlugin = New("invalid plugin")
	// ErrCompositionTooDeep indicates a plugin that (likely) composes itself.
	ErrCompositionTooDeep = New("plugin composition too deep")
	// ErrMissingCapability indicates a hook lookup for a key nobody registered.
	ErrMissingCapability = New("missing capability")
	// ErrInvalidPattern indicates a malformed skip or isolate pattern.
	ErrInvalidPattern = New("invalid step pattern")
	// ErrDependencyCycle indicates steps of one group that need each other.
	ErrDependencyCycle = New("dependency cycle")
)

// General sentinel errors
var (
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// KilnError is the base interface for all kiln errors.
type KilnError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users without further context.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Execution Errors
// -----------------------------------------------------------------------------

// StepError represents a failure raised from a step's run function.
//
// Example:
//
//	err := errors.NewStepError("Web.Compile", cause).WithGroup("main")
//	fmt.Println(err) // "step error [step=Web.Compile, group=main]: step failed: exit status 1"
type StepError struct {
	baseError
	StepID string
	Group  string
}

// NewStepError creates a new StepError wrapping the cause returned by the step.
func NewStepError(stepID string, cause error) *StepError {
	return &StepError{
		baseError: baseError{
			message:    "step failed",
			cause:      cause,
			severity:   SeverityError,
			userFacing: false,
		},
		StepID: stepID,
	}
}

// WithGroup adds the run group name (pre, main, post) to the error context.
func (e *StepError) WithGroup(group string) *StepError {
	e.Group = group
	return e
}

// Error returns the formatted error message.
func (e *StepError) Error() string {
	var parts []string
	if e.StepID != "" {
		parts = append(parts, fmt.Sprintf("step=%s", e.StepID))
	}
	if e.Group != "" {
		parts = append(parts, fmt.Sprintf("group=%s", e.Group))
	}

	prefix := "step error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("step error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StepError) Is(target error) bool {
	if _, ok := target.(*StepError); ok {
		return true
	}
	if target == ErrStepFailed {
		return true
	}
	return e.baseError.Is(target)
}

// DependencyFailedError reports a step that never ran because a step it
// depends on failed.
type DependencyFailedError struct {
	baseError
	StepID       string
	DependencyID string
}

// NewDependencyFailedError creates a new DependencyFailedError.
func NewDependencyFailedError(stepID, dependencyID string) *DependencyFailedError {
	return &DependencyFailedError{
		baseError: baseError{
			message:    "aborted",
			severity:   SeverityWarning,
			userFacing: true,
		},
		StepID:       stepID,
		DependencyID: dependencyID,
	}
}

// Error returns the formatted error message.
func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("step %s aborted: dependency %s failed", e.StepID, e.DependencyID)
}

// Is checks if this error matches the target.
func (e *DependencyFailedError) Is(target error) bool {
	if _, ok := target.(*DependencyFailedError); ok {
		return true
	}
	return target == ErrDependencyFailed
}

// CanceledError reports a run that stopped because its context was canceled,
// usually by SIGINT or SIGTERM. It wraps whatever error the interrupted
// work returned, if any.
type CanceledError struct {
	baseError
	Task string
}

// NewCanceledError creates a new CanceledError for the named task.
func NewCanceledError(task string, cause error) *CanceledError {
	return &CanceledError{
		baseError: baseError{
			message:    "interrupted",
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Task: task,
	}
}

// Error returns the formatted error message.
func (e *CanceledError) Error() string {
	if e.Task == "" {
		return e.message
	}
	return e.Task + " " + e.message
}

// Is checks if this error matches the target.
func (e *CanceledError) Is(target error) bool {
	if _, ok := target.(*CanceledError); ok {
		return true
	}
	if target == ErrCanceled {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Diagnostic Errors
// -----------------------------------------------------------------------------

// DiagnosticError is a configuration or usage error the CLI renders as a
// friendly explanation instead of a raw error dump.
//
// Example:
//
//	err := errors.NewDiagnosticError("Invalid skip pattern").
//	    WithContent(`pattern "Web.[" is not a valid pattern`).
//	    WithSuggestion("Patterns are dot-delimited step ids; use * to match one segment.")
type DiagnosticError struct {
	baseError
	Title      string
	Content    string
	Suggestion string
}

// NewDiagnosticError creates a new DiagnosticError with the given title.
func NewDiagnosticError(title string) *DiagnosticError {
	return &DiagnosticError{
		baseError: baseError{
			message:    title,
			severity:   SeverityError,
			userFacing: true,
		},
		Title: title,
	}
}

// WithContent adds detailed content to the diagnostic.
func (e *DiagnosticError) WithContent(content string) *DiagnosticError {
	e.Content = content
	return e
}

// WithSuggestion adds an actionable suggestion to the diagnostic.
func (e *DiagnosticError) WithSuggestion(suggestion string) *DiagnosticError {
	e.Suggestion = suggestion
	return e
}

// WithCause adds a cause to the diagnostic.
func (e *DiagnosticError) WithCause(cause error) *DiagnosticError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *DiagnosticError) Error() string {
	msg := e.Title
	if e.Content != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Content)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *DiagnosticError) Is(target error) bool {
	if _, ok := target.(*DiagnosticError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MissingCapabilityError reports a hook lookup for a key that no installed
// plugin contributed, or that was contributed with a different type.
type MissingCapabilityError struct {
	*DiagnosticError
	Key string
}

// NewMissingCapabilityError creates a new MissingCapabilityError for key.
// want describes the expected hook type and may be empty.
func NewMissingCapabilityError(key, want string) *MissingCapabilityError {
	content := fmt.Sprintf("no plugin registered the %q hook", key)
	if want != "" {
		content = fmt.Sprintf("no plugin registered the %q hook as %s", key, want)
	}
	return &MissingCapabilityError{
		DiagnosticError: NewDiagnosticError("Missing capability").
			WithContent(content).
			WithCause(ErrMissingCapability).
			WithSuggestion("Add the plugin that provides this hook before the plugins that use it."),
		Key: key,
	}
}

// Is checks if this error matches the target.
func (e *MissingCapabilityError) Is(target error) bool {
	if _, ok := target.(*MissingCapabilityError); ok {
		return true
	}
	return e.DiagnosticError.Is(target)
}

// As lets errors.As extract the embedded *DiagnosticError.
func (e *MissingCapabilityError) As(target any) bool {
	if t, ok := target.(**DiagnosticError); ok {
		*t = e.DiagnosticError
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - KilnError types with userFacing=true
//   - DiagnosticError (always user facing)
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var diag *DiagnosticError
	if errors.As(err, &diag) {
		return true
	}

	var ke KilnError
	if errors.As(err, &ke) {
		return ke.IsUserFacing()
	}

	return false
}

// IsDiagnostic returns true if err is, or wraps, a DiagnosticError.
func IsDiagnostic(err error) bool {
	var diag *DiagnosticError
	return errors.As(err, &diag)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement KilnError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var ke KilnError
	if errors.As(err, &ke) {
		return ke.Severity()
	}

	return SeverityError
}
