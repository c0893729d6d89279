package ports

import (
	"context"

	"holdscribe/internal/domain"
)

// KeySource delivers raw key edges for every key, in arrival order.
type KeySource interface {
	Start(ctx context.Context) (<-chan domain.KeyEvent, error)
	Stop()
}

// EngineBridge is the command side of the session bridge used by the controller.
type EngineBridge interface {
	// Connected reports whether an authenticated engine peer is attached.
	Connected() bool
	// EngineRunning reports whether the engine process handle is live.
	EngineRunning() bool
	// Ready reports whether a session can start: a peer is connected and, when the
	// bridge supervises the engine, its process is still running.
	Ready() bool
	// SendStart and SendStop report false when no authenticated peer could receive them.
	SendStart() bool
	SendStop() bool
	// Relaunch kills and restarts the engine process immediately.
	Relaunch(ctx context.Context) error
}

// Clipboard reads and writes plain text on the system clipboard.
type Clipboard interface {
	Text(ctx context.Context) (string, error)
	SetText(ctx context.Context, text string) error
}

// Paster sends the platform paste gesture to the focused window.
type Paster interface {
	Paste(ctx context.Context) error
}

// FocusProbe queries and restores window focus. It is an optional capability:
// callers must tolerate a nil FocusProbe and errors from either method.
type FocusProbe interface {
	ActiveWindow(ctx context.Context) (domain.FocusTarget, error)
	Activate(ctx context.Context, target domain.FocusTarget) error
}

// TextInjector delivers cleaned text into the target window.
type TextInjector interface {
	Inject(ctx context.Context, text string, target *domain.FocusTarget) error
}

// EngineProcess is a running recognition engine.
type EngineProcess interface {
	// Wait blocks until the process exits.
	Wait() error
	Kill() error
	PID() int
}

// EngineLauncher starts the recognition engine pointed at the bootstrap URL.
type EngineLauncher interface {
	Launch(ctx context.Context, bootstrapURL string) (EngineProcess, error)
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title string, message string) error
}

// EventSink emits backend state/events to the UI. Transcript text never crosses it.
type EventSink interface {
	SessionStateChanged(state domain.SessionState)
	TranscriptStatus(reason domain.StatusReason)
	SessionError(code domain.ErrorCode, detail string)
}
