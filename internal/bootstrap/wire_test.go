package bootstrap

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"holdscribe/internal/config"
	"holdscribe/internal/domain"
	hlog "holdscribe/internal/log"
)

func TestMain(m *testing.M) {
	hlog.Setup("ERROR", io.Discard)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOLDSCRIBE_ENGINE_AUTOSTART", "false")
	cfg, err := config.LoadFile(dir+"/missing.yaml", dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Notify.Enabled = false
	cfg.Session.StatusLogInterval = 0
	return cfg
}

func TestBuildBindsLoopback(t *testing.T) {
	cfg := testConfig(t)

	services, err := Build(cfg, &recordingSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer services.Bridge.Close()

	if services.Controller == nil || services.Bridge == nil || services.Keys == nil {
		t.Fatalf("expected wired services: %+v", services)
	}
	if services.Bridge.BootstrapURL() == "" || services.Bridge.ChannelURL() == "" {
		t.Fatalf("expected bound urls")
	}
}

func TestBuildFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Bridge.BootstrapPort = ln.Addr().(*net.TCPAddr).Port

	if _, err := Build(cfg, &recordingSink{}); err == nil {
		t.Fatalf("expected bind error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	services, err := Build(cfg, &recordingSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	keys := &fakeKeys{}
	services.Keys = keys
	services.paster = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- services.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !keys.started() {
		if time.Now().After(deadline) {
			t.Fatalf("key source never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
	if !keys.stopped() {
		t.Fatalf("expected key source stopped")
	}
	if services.Bridge.EngineRunning() {
		t.Fatalf("expected engine stopped")
	}
}

type fakeKeys struct {
	mu   sync.Mutex
	ch   chan domain.KeyEvent
	stop bool
}

func (k *fakeKeys) Start(context.Context) (<-chan domain.KeyEvent, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ch = make(chan domain.KeyEvent)
	return k.ch, nil
}

func (k *fakeKeys) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stop = true
}

func (k *fakeKeys) started() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ch != nil
}

func (k *fakeKeys) stopped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stop
}

type recordingSink struct{}

func (recordingSink) SessionStateChanged(domain.SessionState) {}
func (recordingSink) TranscriptStatus(domain.StatusReason)    {}
func (recordingSink) SessionError(domain.ErrorCode, string)   {}
