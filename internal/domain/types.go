package domain

import "errors"

// SessionState models the hold-to-dictate lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateArmed      SessionState = "armed"
	SessionStateRecording  SessionState = "recording"
	SessionStateFinalizing SessionState = "finalizing"
)

// KeyEdge is the direction of a raw key transition.
type KeyEdge string

const (
	KeyEdgeDown KeyEdge = "down"
	KeyEdgeUp   KeyEdge = "up"
)

// KeyEvent is one raw key transition from the input feed.
type KeyEvent struct {
	Code uint16
	Edge KeyEdge
}

// FocusTarget identifies the window that had focus when a session armed.
type FocusTarget struct {
	Title string `json:"title"`
	PID   int    `json:"pid"`
}

// Empty reports whether the target names no window.
func (t FocusTarget) Empty() bool {
	return t.PID <= 0 && t.Title == ""
}

// StatusReason provides a structured reason for transcript-status notifications.
type StatusReason string

const (
	StatusEngineStarting  StatusReason = "engine_starting"
	StatusEngineReady     StatusReason = "engine_ready"
	StatusEngineLost      StatusReason = "engine_lost"
	StatusListening       StatusReason = "listening"
	StatusProcessing      StatusReason = "processing"
	StatusNoSpeech        StatusReason = "no_speech"
	StatusTimeout         StatusReason = "timeout"
	StatusInserted        StatusReason = "inserted"
	StatusInsertFailed    StatusReason = "insert_failed"
	StatusEngineError     StatusReason = "engine_error"
	StatusDictationOff    StatusReason = "dictation_disabled"
	StatusDictationOn     StatusReason = "dictation_enabled"
	StatusEngineRestarted StatusReason = "engine_restarted"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeEngine    ErrorCode = "engine"
	ErrorCodeProtocol  ErrorCode = "protocol"
	ErrorCodeTimeout   ErrorCode = "timeout"
	ErrorCodeInjection ErrorCode = "injection"
	ErrorCodeClipboard ErrorCode = "clipboard"
	ErrorCodeFocus     ErrorCode = "focus"
)

var (
	ErrInvalidToken     = errors.New("invalid session token")
	ErrAuthTimeout      = errors.New("authentication timed out")
	ErrNotConnected     = errors.New("recognition engine is not connected")
	ErrEngineNotRunning = errors.New("recognition engine process is not running")
	ErrFinalizeTimeout  = errors.New("no transcript before finalize deadline")
	ErrEmptyTranscript  = errors.New("transcript is empty")
	ErrDeliveryBusy     = errors.New("a text delivery is already in flight")
	ErrPasteFailed      = errors.New("paste gesture failed")
)

// Status summarizes the current runtime status.
type Status struct {
	State            SessionState `json:"state"`
	DictationEnabled bool         `json:"dictationEnabled"`
	EngineConnected  bool         `json:"engineConnected"`
	EngineRunning    bool         `json:"engineRunning"`
	DeliveryInFlight bool         `json:"deliveryInFlight"`
}
