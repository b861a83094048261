package models

// EventKind discriminates real-time dashboard events.
type EventKind string

const (
	// EventJobUpdated carries a full Job snapshot after an accepted transition.
	EventJobUpdated EventKind = "job_updated"
	// EventQueryLogged carries a QueryLogEntry snapshot.
	EventQueryLogged EventKind = "query_logged"
	// EventHealthChanged carries a health summary after the overall status flips.
	EventHealthChanged EventKind = "health_changed"
	// EventConnection reports link state of the real-time channel itself.
	EventConnection EventKind = "connection"
)

// Event is one message on the real-time channel. Data is always the full
// current snapshot of the affected entity, so a dropped event can be healed
// by re-fetching rather than replaying.
type Event struct {
	Kind EventKind `json:"kind"`
	Data any       `json:"data"`

	// Gap is set when the subscriber's queue overflowed and older events were
	// dropped before this one. Consumers should re-fetch authoritative state.
	Gap bool `json:"gap,omitempty"`
}

// ConnectionInfo is the payload of connection events.
type ConnectionInfo struct {
	Status    string `json:"status"` // "connected", "disconnected", "pong"
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}
