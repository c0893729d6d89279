package platform

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// linuxRegisterDelay gives the uinput device time to appear before the first event.
const linuxRegisterDelay = 2 * time.Second

// KeybdPaster sends Ctrl+V (Cmd+V on macOS) through a virtual keyboard.
type KeybdPaster struct {
	goos string

	once    sync.Once
	ready   chan struct{}
	initErr error

	mu sync.Mutex
	kb keybd_event.KeyBonding
}

func NewKeybdPaster() *KeybdPaster {
	return &KeybdPaster{goos: runtime.GOOS, ready: make(chan struct{})}
}

// Prepare creates the virtual keyboard. It is safe to call more than once and is
// worth calling at startup so the first paste does not pay the registration delay.
func (p *KeybdPaster) Prepare() error {
	p.once.Do(func() {
		defer close(p.ready)
		kb, err := keybd_event.NewKeyBonding()
		if err != nil {
			p.initErr = fmt.Errorf("create virtual keyboard: %w", err)
			return
		}
		if p.goos == "linux" {
			time.Sleep(linuxRegisterDelay)
		}
		p.kb = kb
	})
	<-p.ready
	return p.initErr
}

func (p *KeybdPaster) Paste(ctx context.Context) error {
	select {
	case <-p.ready:
	default:
		go func() { _ = p.Prepare() }()
		select {
		case <-p.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.initErr != nil {
		return p.initErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.kb.Clear()
	p.kb.SetKeys(keybd_event.VK_V)
	if p.goos == "darwin" {
		p.kb.HasSuper(true)
	} else {
		p.kb.HasCTRL(true)
	}
	if err := p.kb.Launching(); err != nil {
		return fmt.Errorf("send paste shortcut: %w", err)
	}
	return nil
}
