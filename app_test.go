package main

import (
	"context"
	"errors"
	"testing"

	"holdscribe/internal/domain"
)

func TestStatusMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StatusReason]string{
		domain.StatusEngineStarting:  "Starting speech engine...",
		domain.StatusEngineReady:     "Speech engine ready",
		domain.StatusEngineLost:      "Speech engine disconnected",
		domain.StatusListening:       "Listening",
		domain.StatusProcessing:      "Processing",
		domain.StatusNoSpeech:        "No speech detected",
		domain.StatusTimeout:         "No transcript received",
		domain.StatusInserted:        "Text inserted",
		domain.StatusInsertFailed:    "Could not insert text",
		domain.StatusEngineError:     "Speech engine error",
		domain.StatusDictationOff:    "Dictation disabled",
		domain.StatusDictationOn:     "Dictation enabled",
		domain.StatusEngineRestarted: "Speech engine restarted",
	}

	for reason, want := range cases {
		reason := reason
		want := want
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := statusMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := statusMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestStateMessage(t *testing.T) {
	t.Parallel()

	if got := stateMessage(domain.SessionStateRecording); got != "Listening" {
		t.Fatalf("unexpected recording message: %q", got)
	}
	if got := stateMessage(domain.SessionStateIdle); got != "" {
		t.Fatalf("expected empty idle message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:   "Startup failed",
		domain.ErrorCodeEngine:    "Speech engine error",
		domain.ErrorCodeProtocol:  "Speech engine protocol error",
		domain.ErrorCodeTimeout:   "Transcript timed out",
		domain.ErrorCodeInjection: "Paste failed",
		domain.ErrorCodeClipboard: "Clipboard access failed",
		domain.ErrorCodeFocus:     "Could not restore focus",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestAppWithoutServices(t *testing.T) {
	t.Parallel()

	app := NewApp()
	status := app.GetStatus()
	if status.State != domain.SessionStateIdle || status.DictationEnabled {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := app.SetDictationEnabled(false); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := app.RestartEngine(); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := app.OpenEnginePage(); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if info := app.GetRuntimeInfo(); info["error"] == "" {
		t.Fatalf("expected error in runtime info: %v", info)
	}
}

func TestEventsDroppedBeforeStartup(t *testing.T) {
	t.Parallel()

	app := NewApp()
	app.SessionStateChanged(domain.SessionStateArmed)
	app.TranscriptStatus(domain.StatusInserted)
	app.SessionError(domain.ErrorCodeEngine, "boom")
	app.shutdown(context.Background())
}
