package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"holdscribe/internal/bootstrap"
	"holdscribe/internal/domain"
	hlog "holdscribe/internal/log"
)

const (
	eventSession = "holdscribe:session"
	eventStatus  = "holdscribe:status"
	eventError   = "holdscribe:error"
)

const shutdownTimeout = 5 * time.Second

var errNotInitialized = errors.New("application is not initialized")

// App is the Wails application root. It hosts the overlay and forwards controller
// events to it.
type App struct {
	mu       sync.RWMutex
	ctx      context.Context
	services *bootstrap.Services

	cancel  context.CancelFunc
	runDone chan struct{}
}

func NewApp() *App {
	return &App{}
}

// attach installs the runtime graph. It must happen before Wails starts.
func (a *App) attach(services *bootstrap.Services) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.services = services
}

func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	services := a.services
	a.mu.Unlock()

	if services == nil {
		a.SessionError(domain.ErrorCodeStartup, errNotInitialized.Error())
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.cancel = cancel
	a.runDone = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := services.Run(runCtx); err != nil {
			hlog.Error("runtime stopped with error", "error", err)
			a.SessionError(domain.ErrorCodeStartup, err.Error())
		}
	}()
	a.SessionStateChanged(domain.SessionStateIdle)
}

func (a *App) shutdown(_ context.Context) {
	a.mu.Lock()
	cancel := a.cancel
	done := a.runDone
	a.ctx = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		hlog.Warn("runtime did not stop before shutdown timeout")
	}
}

// GetStatus returns the current dictation status.
func (a *App) GetStatus() domain.Status {
	services := a.runtimeServices()
	if services == nil {
		return domain.Status{State: domain.SessionStateIdle}
	}
	return services.Controller.Status()
}

// SetDictationEnabled turns hold-to-dictate on or off.
func (a *App) SetDictationEnabled(enabled bool) error {
	services := a.runtimeServices()
	if services == nil {
		return errNotInitialized
	}
	services.Controller.SetDictationEnabled(enabled)
	return nil
}

// RestartEngine kills the recognition engine and launches a fresh one.
func (a *App) RestartEngine() error {
	services := a.runtimeServices()
	if services == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return services.Controller.RestartEngine(ctx)
}

// OpenEnginePage opens the bootstrap page in the default browser, for engines
// started by hand.
func (a *App) OpenEnginePage() error {
	services := a.runtimeServices()
	ctx := a.runtimeContext()
	if services == nil || ctx == nil {
		return errNotInitialized
	}
	runtime.BrowserOpenURL(ctx, services.Bridge.BootstrapURL())
	return nil
}

// GetRuntimeInfo returns non-sensitive config for the UI. The session token is never included.
func (a *App) GetRuntimeInfo() map[string]string {
	services := a.runtimeServices()
	if services == nil {
		return map[string]string{"error": errNotInitialized.Error()}
	}
	cfg := services.Config
	return map[string]string{
		"engine":       "Web Speech (Chrome)",
		"bootstrapUrl": services.Bridge.BootstrapURL(),
		"armThreshold": cfg.Gesture.ArmThreshold.String(),
		"configFile":   cfg.Paths.ConfigFile,
		"logFile":      cfg.Paths.LogFile,
		"browserPath":  cfg.Engine.BrowserPath,
	}
}

func (a *App) runtimeServices() *bootstrap.Services {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.services
}

func (a *App) runtimeContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// SessionStateChanged emits session lifecycle updates to the overlay.
func (a *App) SessionStateChanged(state domain.SessionState) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, eventSession, map[string]string{
		"state":   string(state),
		"message": stateMessage(state),
	})
}

// TranscriptStatus emits a transcript outcome. Transcript text never reaches the UI.
func (a *App) TranscriptStatus(reason domain.StatusReason) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, eventStatus, map[string]string{
		"reason":  string(reason),
		"message": statusMessage(reason),
	})
}

// SessionError emits backend errors to the overlay.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	runtime.EventsEmit(ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func stateMessage(state domain.SessionState) string {
	switch state {
	case domain.SessionStateIdle:
		return ""
	case domain.SessionStateArmed:
		return "Keep holding..."
	case domain.SessionStateRecording:
		return "Listening"
	case domain.SessionStateFinalizing:
		return "Processing"
	default:
		return ""
	}
}

func statusMessage(reason domain.StatusReason) string {
	switch reason {
	case domain.StatusEngineStarting:
		return "Starting speech engine..."
	case domain.StatusEngineReady:
		return "Speech engine ready"
	case domain.StatusEngineLost:
		return "Speech engine disconnected"
	case domain.StatusListening:
		return "Listening"
	case domain.StatusProcessing:
		return "Processing"
	case domain.StatusNoSpeech:
		return "No speech detected"
	case domain.StatusTimeout:
		return "No transcript received"
	case domain.StatusInserted:
		return "Text inserted"
	case domain.StatusInsertFailed:
		return "Could not insert text"
	case domain.StatusEngineError:
		return "Speech engine error"
	case domain.StatusDictationOff:
		return "Dictation disabled"
	case domain.StatusDictationOn:
		return "Dictation enabled"
	case domain.StatusEngineRestarted:
		return "Speech engine restarted"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeEngine:
		return "Speech engine error"
	case domain.ErrorCodeProtocol:
		return "Speech engine protocol error"
	case domain.ErrorCodeTimeout:
		return "Transcript timed out"
	case domain.ErrorCodeInjection:
		return "Paste failed"
	case domain.ErrorCodeClipboard:
		return "Clipboard access failed"
	case domain.ErrorCodeFocus:
		return "Could not restore focus"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
