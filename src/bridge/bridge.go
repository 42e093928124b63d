package bridge

// Ingest is a source of externally published events. Implementations relay
// events from out-of-process producers (batch jobs, schedulers) into the hub.
type Ingest interface {
	// Start begins listening for published events.
	Start() error

	// Stop shuts down the ingest connection.
	Stop() error

	// Available reports whether the ingest is connected and operational.
	Available() bool
}

// EventSink is implemented by the hub service: ingested events land here.
type EventSink interface {
	Broadcast(eventType string, data map[string]any, requiredRoles ...string) int
	Unicast(userID, eventType string, data map[string]any) int
}
