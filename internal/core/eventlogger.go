package core

// EventLogger receives audit events from the dispatcher, pollers and the
// coordinator. Event types are the models.Event* constants; a failed write is
// logged and never fails the operation that emitted it.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
