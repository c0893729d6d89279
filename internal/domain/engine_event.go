package domain

// EngineEventKind classifies what the session bridge observed.
type EngineEventKind string

const (
	// EngineEventReady: an engine peer authenticated.
	EngineEventReady EngineEventKind = "ready"
	// EngineEventTranscript: the authenticated peer delivered recognized text.
	EngineEventTranscript EngineEventKind = "transcript"
	// EngineEventError: the authenticated peer reported a recognition error.
	EngineEventError EngineEventKind = "engine_error"
	// EngineEventDisconnected: the authenticated peer went away.
	EngineEventDisconnected EngineEventKind = "disconnected"
	// EngineEventProcessExited: the supervised engine process exited on its own.
	EngineEventProcessExited EngineEventKind = "process_exited"
)

// EngineEvent is one bridge observation, delivered in arrival order.
type EngineEvent struct {
	Kind   EngineEventKind
	Text   string
	Detail string
	PeerID string
}
