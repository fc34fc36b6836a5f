package migration

// Event names emitted through the progress sink.
const (
	EventMigrationStart     = "migration:start"
	EventMigrationComplete  = "migration:complete"
	EventEntityStart        = "entity:start"
	EventEntityProgress     = "entity:progress"
	EventEntityComplete     = "entity:complete"
	EventValidationStart    = "validation:start"
	EventValidationComplete = "validation:complete"
	EventQualityAlert       = "quality:alert"
)

// Event is a named progress notification with an optional payload. Payload
// keys are stable per event name.
type Event struct {
	Name    string         `json:"name"`
	Table   string         `json:"table,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ProgressSink receives progress events from the orchestrator. Presentation
// layers subscribe through this interface; the orchestrator itself has no UI
// concerns and never blocks on a sink.
type ProgressSink interface {
	Publish(event Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// SinkFunc adapts a function to the ProgressSink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(event Event) { f(event) }
