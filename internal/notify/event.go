// Package notify delivers pipeline events to a webhook as signed CloudEvents.
package notify

import (
	"packager/internal/pipeline"
	"packager/pkg/cloudevent"
	"slices"
)

// Event types for packaging run callbacks
const (
	EventTypeStageStarted  = "packager.stage.started"
	EventTypeStageFinished = "packager.stage.finished"
	EventTypeRunFinished   = "packager.run.finished"
)

// Source is the CloudEvents source attribute of every event sent.
const Source = "packager"

var eventTypes = map[pipeline.EventKind]string{
	pipeline.EventStageStarted:  EventTypeStageStarted,
	pipeline.EventStageFinished: EventTypeStageFinished,
	pipeline.EventRunFinished:   EventTypeRunFinished,
}

// FilteredEvents returns true if the event type should be sent based on the filter.
// If the filter is empty, all events are allowed.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for pipeline events.
type EventBuilder struct {
	source string
	meta   map[string]string
}

// NewEventBuilder creates a new EventBuilder. meta is attached to every event.
func NewEventBuilder(source string, meta map[string]string) *EventBuilder {
	return &EventBuilder{source: source, meta: meta}
}

// Build converts e into a CloudEvent whose subject is the run ID. It returns
// nil for event kinds that have no CloudEvent type.
func (b *EventBuilder) Build(e pipeline.Event) *cloudevent.CloudEvent {
	eventType, ok := eventTypes[e.Kind]
	if !ok {
		return nil
	}

	data := map[string]any{
		"runId":  e.RunID,
		"target": e.Target,
		"state":  string(e.State),
	}
	if e.Stage != "" {
		data["stage"] = e.Stage
	}
	if e.Status != "" {
		data["status"] = e.Status
	}
	if e.Kind != pipeline.EventStageStarted {
		data["durationMs"] = e.Duration.Milliseconds()
	}
	if e.Content != nil {
		data["content"] = e.Content
	}
	if e.Err != nil {
		data["error"] = e.Err.Error()
	}
	if len(b.meta) > 0 {
		data["meta"] = b.meta
	}

	return cloudevent.New(eventType, b.source, e.RunID, data)
}
