package orchestrator

import (
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/step"
)

// debugLog mirrors step messages and run boundaries into the debug log.
// Step and group lifecycle is logged where it happens.
func debugLog(logger *logging.Logger) event.Handler {
	return func(e event.Event) {
		switch ev := e.(type) {
		case event.RunStartedEvent:
			logger.Info("run started", "workspace", ev.Workspace)

		case event.RunFinishedEvent:
			if ev.Err != nil {
				logger.Error("run finished", "duration", ev.Duration, "error", ev.Err)
				return
			}
			logger.Info("run finished", "duration", ev.Duration)

		case event.StepSkippedEvent:
			logger.WithGroup(ev.Group).WithStep(ev.Step.ID).Info("step skipped",
				"permission", ev.Permission.String(),
				"reason", ev.Reason,
			)

		case event.StepIndefiniteEvent:
			logger.WithGroup(ev.Group).WithStep(ev.Step.ID).Debug("indefinite work registered")

		case event.StepLogEvent:
			l := logger.WithStep(ev.Step.ID)
			if ev.Parent != nil {
				l = l.With("parent", ev.Parent.ID)
			}
			switch ev.Level {
			case step.LevelErrors:
				l.Error(ev.Message)
			case step.LevelWarnings:
				l.Warn(ev.Message)
			case step.LevelInfo:
				l.Info(ev.Message)
			default:
				l.Debug(ev.Message)
			}
		}
	}
}
