// Package keyhook feeds raw global key edges from libuiohook (via gohook).
package keyhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"

	"holdscribe/internal/domain"
)

// Source implements ports.KeySource on top of the global gohook event stream.
type Source struct {
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func New(logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{logger: logger}
}

// Start installs the global hook. The returned channel closes when ctx is
// cancelled or Stop is called.
func (s *Source) Start(ctx context.Context) (<-chan domain.KeyEvent, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.New("key hook already running")
	}
	s.running = true
	s.mu.Unlock()

	raw := hook.Start()
	out := make(chan domain.KeyEvent, 64)

	go func() {
		defer close(out)
		defer s.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				key, ok := translate(ev.Kind, ev.Keycode)
				if !ok {
					continue
				}
				select {
				case out <- key:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	s.logger.Info("global key hook started")
	return out, nil
}

// Stop removes the global hook. It is idempotent.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	hook.End()
	s.logger.Info("global key hook stopped")
}

// translate maps a hook event to a key edge. gohook reports the physical press as
// KeyHold and the synthesized character as KeyDown; only presses and releases count.
func translate(kind uint8, code uint16) (domain.KeyEvent, bool) {
	switch kind {
	case hook.KeyHold:
		return domain.KeyEvent{Code: code, Edge: domain.KeyEdgeDown}, true
	case hook.KeyUp:
		return domain.KeyEvent{Code: code, Edge: domain.KeyEdgeUp}, true
	default:
		return domain.KeyEvent{}, false
	}
}
