// Package event provides the synchronous pub-sub bus that carries run
// progress from the orchestrator to its observers.
//
// The orchestrator publishes; the renderer, the debug log and the metrics
// collector subscribe. Neither side knows about the other.
//
// # Event Categories
//
// Run lifecycle:
//   - [RunStartedEvent], [RunFinishedEvent]
//
// Group lifecycle (pre, main, post):
//   - [GroupStartedEvent], [GroupFinishedEvent]
//
// Step lifecycle:
//   - [StepStartedEvent], [StepSucceededEvent], [StepFailedEvent], [StepSkippedEvent]
//
// Step output:
//   - [StepLogEvent], [StepStatusEvent], [StepIndefiniteEvent]
//
// # Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//	bus.Subscribe(event.TypeStepFailed, func(e event.Event) {
//		failed := e.(event.StepFailedEvent)
//		fmt.Println(failed.Step.ID, failed.Err)
//	})
//	bus.Publish(event.NewStepFailedEvent(ref, time.Second, err))
//
// Handlers are invoked synchronously on the publishing goroutine. Steps run
// concurrently, so handlers must be safe for concurrent use. A panicking
// handler is recovered and logged; delivery to the other handlers continues.
package event
