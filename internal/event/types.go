package event

import (
	"time"

	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/step"
)

// Event types published on the bus.
const (
	TypeRunStarted     = "run.started"
	TypeRunFinished    = "run.finished"
	TypeGroupStarted   = "group.started"
	TypeGroupFinished  = "group.finished"
	TypeStepStarted    = "step.started"
	TypeStepSucceeded  = "step.succeeded"
	TypeStepFailed     = "step.failed"
	TypeStepSkipped    = "step.skipped"
	TypeStepLog        = "step.log"
	TypeStepStatus     = "step.status"
	TypeStepIndefinite = "step.indefinite"
)

// Event is implemented by everything published on the bus.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Run lifecycle
// -----------------------------------------------------------------------------

// RunStartedEvent is published once before the first group starts.
type RunStartedEvent struct {
	baseEvent
	RunID     string
	Task      string
	Workspace string
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID, task, workspace string) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent(TypeRunStarted),
		RunID:     runID,
		Task:      task,
		Workspace: workspace,
	}
}

// RunFinishedEvent is published once after the last group, or after the
// first failing group.
type RunFinishedEvent struct {
	baseEvent
	RunID    string
	Task     string
	Duration time.Duration
	Err      error
}

// NewRunFinishedEvent creates a RunFinishedEvent.
func NewRunFinishedEvent(runID, task string, duration time.Duration, err error) RunFinishedEvent {
	return RunFinishedEvent{
		baseEvent: newBaseEvent(TypeRunFinished),
		RunID:     runID,
		Task:      task,
		Duration:  duration,
		Err:       err,
	}
}

// Success reports whether the run finished without error.
func (e RunFinishedEvent) Success() bool { return e.Err == nil }

// -----------------------------------------------------------------------------
// Group lifecycle
// -----------------------------------------------------------------------------

// GroupStartedEvent is published before a group's steps are scheduled.
type GroupStartedEvent struct {
	baseEvent
	Group string
	Steps []*step.Step
}

// NewGroupStartedEvent creates a GroupStartedEvent.
func NewGroupStartedEvent(group string, steps []*step.Step) GroupStartedEvent {
	return GroupStartedEvent{
		baseEvent: newBaseEvent(TypeGroupStarted),
		Group:     group,
		Steps:     steps,
	}
}

// GroupFinishedEvent is published once every step of a group has settled
// or the group was aborted.
type GroupFinishedEvent struct {
	baseEvent
	Group    string
	Duration time.Duration
	Err      error
}

// NewGroupFinishedEvent creates a GroupFinishedEvent.
func NewGroupFinishedEvent(group string, duration time.Duration, err error) GroupFinishedEvent {
	return GroupFinishedEvent{
		baseEvent: newBaseEvent(TypeGroupFinished),
		Group:     group,
		Duration:  duration,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Step lifecycle
// -----------------------------------------------------------------------------

// StepRef locates a step within a run. Parent is nil for top level steps;
// Depth is 0 for them and grows by one per RunNested level.
type StepRef struct {
	Step   *step.Step
	Group  string
	Parent *step.Step
	Depth  int
}

// Nested reports whether the step was started by another step.
func (r StepRef) Nested() bool { return r.Parent != nil }

// StepStartedEvent is published when a step's run function is entered.
type StepStartedEvent struct {
	baseEvent
	StepRef
}

// NewStepStartedEvent creates a StepStartedEvent.
func NewStepStartedEvent(ref StepRef) StepStartedEvent {
	return StepStartedEvent{baseEvent: newBaseEvent(TypeStepStarted), StepRef: ref}
}

// StepSucceededEvent is published when a step returns without error.
type StepSucceededEvent struct {
	baseEvent
	StepRef
	Duration time.Duration
}

// NewStepSucceededEvent creates a StepSucceededEvent.
func NewStepSucceededEvent(ref StepRef, duration time.Duration) StepSucceededEvent {
	return StepSucceededEvent{
		baseEvent: newBaseEvent(TypeStepSucceeded),
		StepRef:   ref,
		Duration:  duration,
	}
}

// StepFailedEvent is published when a step returns an error, panics, or is
// aborted because a dependency failed.
type StepFailedEvent struct {
	baseEvent
	StepRef
	Duration time.Duration
	Err      error
}

// NewStepFailedEvent creates a StepFailedEvent.
func NewStepFailedEvent(ref StepRef, duration time.Duration, err error) StepFailedEvent {
	return StepFailedEvent{
		baseEvent: newBaseEvent(TypeStepFailed),
		StepRef:   ref,
		Duration:  duration,
		Err:       err,
	}
}

// StepSkippedEvent is published for steps a filter or Needs predicate kept
// from running.
type StepSkippedEvent struct {
	baseEvent
	StepRef
	Permission filter.Permission
	Reason     string
}

// NewStepSkippedEvent creates a StepSkippedEvent.
func NewStepSkippedEvent(ref StepRef, perm filter.Permission, reason string) StepSkippedEvent {
	return StepSkippedEvent{
		baseEvent:  newBaseEvent(TypeStepSkipped),
		StepRef:    ref,
		Permission: perm,
		Reason:     reason,
	}
}

// -----------------------------------------------------------------------------
// Step output
// -----------------------------------------------------------------------------

// StepLogEvent carries a message a step logged through its Runner.
type StepLogEvent struct {
	baseEvent
	StepRef
	Level   step.LogLevel
	Message string
}

// NewStepLogEvent creates a StepLogEvent.
func NewStepLogEvent(ref StepRef, level step.LogLevel, message string) StepLogEvent {
	return StepLogEvent{
		baseEvent: newBaseEvent(TypeStepLog),
		StepRef:   ref,
		Level:     level,
		Message:   message,
	}
}

// StepStatusEvent carries a step's transient status line. An empty Status
// clears it.
type StepStatusEvent struct {
	baseEvent
	StepRef
	Status string
}

// NewStepStatusEvent creates a StepStatusEvent.
func NewStepStatusEvent(ref StepRef, status string) StepStatusEvent {
	return StepStatusEvent{
		baseEvent: newBaseEvent(TypeStepStatus),
		StepRef:   ref,
		Status:    status,
	}
}

// StepIndefiniteEvent is published when a step registers work that keeps
// running after the finite groups complete.
type StepIndefiniteEvent struct {
	baseEvent
	StepRef
}

// NewStepIndefiniteEvent creates a StepIndefiniteEvent.
func NewStepIndefiniteEvent(ref StepRef) StepIndefiniteEvent {
	return StepIndefiniteEvent{baseEvent: newBaseEvent(TypeStepIndefinite), StepRef: ref}
}
