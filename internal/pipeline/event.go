package pipeline

import (
	"context"
	"time"
)

// EventKind identifies a point in a run's lifecycle.
type EventKind string

// Event kinds, emitted in this order per stage and once at the end of a run.
const (
	EventStageStarted  EventKind = "stage.started"
	EventStageFinished EventKind = "stage.finished"
	EventRunFinished   EventKind = "run.finished"
)

// Event describes a stage or run transition.
type Event struct {
	Kind     EventKind
	RunID    string
	Target   string
	Stage    string // Empty for EventRunFinished
	Status   string // Set on finished events
	State    State  // Run state after the transition
	Duration time.Duration
	Content  any // Stage summary for EventStageFinished
	Err      error
}

// Listener observes a run. The pipeline blocks on OnEvent, so the next stage
// does not start until the listener returns.
type Listener interface {
	OnEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}
