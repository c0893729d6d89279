package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"holdscribe/internal/domain"
	"holdscribe/internal/ports"
)

// Delays are the settle pauses around focus restore and paste.
type Delays struct {
	FocusSettle    time.Duration
	PreWrite       time.Duration
	PostWrite      time.Duration
	PostPaste      time.Duration
	RestoreTimeout time.Duration
}

// DefaultDelays returns the pacing used by the desktop runtime.
func DefaultDelays() Delays {
	return Delays{
		FocusSettle:    150 * time.Millisecond,
		PreWrite:       50 * time.Millisecond,
		PostWrite:      50 * time.Millisecond,
		PostPaste:      100 * time.Millisecond,
		RestoreTimeout: 2 * time.Second,
	}
}

// Injector pastes text into the focused application through the clipboard and
// always puts the previous clipboard contents back.
type Injector struct {
	clipboard ports.Clipboard
	paster    ports.Paster
	focus     ports.FocusProbe
	clock     clockwork.Clock
	delays    Delays
	logger    *slog.Logger
}

// NewInjector builds an Injector. focus may be nil when the platform cannot restore focus.
func NewInjector(clipboard ports.Clipboard, paster ports.Paster, focus ports.FocusProbe, clk clockwork.Clock, delays Delays, logger *slog.Logger) *Injector {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		clipboard: clipboard,
		paster:    paster,
		focus:     focus,
		clock:     clk,
		delays:    delays,
		logger:    logger,
	}
}

// Inject restores focus to target (best effort), then pastes text via the clipboard.
// Clipboard contents are restored on every path once they have been captured.
func (i *Injector) Inject(ctx context.Context, text string, target *domain.FocusTarget) (err error) {
	if text == "" {
		return nil
	}

	if target != nil && !target.Empty() && i.focus != nil {
		if focusErr := i.focus.Activate(ctx, *target); focusErr != nil {
			i.logger.Warn("focus restore failed", "error", focusErr)
		}
		if err := i.sleep(ctx, i.delays.FocusSettle); err != nil {
			return err
		}
	}

	previous, err := i.clipboard.Text(ctx)
	if err != nil {
		return fmt.Errorf("capture clipboard: %w", err)
	}

	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.restoreTimeout())
		defer cancel()
		if restoreErr := i.clipboard.SetText(restoreCtx, previous); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("restore clipboard: %w", restoreErr))
		}
	}()

	if err := i.sleep(ctx, i.delays.PreWrite); err != nil {
		return err
	}
	if err := i.clipboard.SetText(ctx, text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := i.sleep(ctx, i.delays.PostWrite); err != nil {
		return err
	}
	if err := i.paster.Paste(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPasteFailed, err)
	}
	i.logger.Debug("text injected", "length", len(text))
	return i.sleep(ctx, i.delays.PostPaste)
}

// sleep waits for d on the injector's clock, returning early if ctx is cancelled.
func (i *Injector) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-i.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Injector) restoreTimeout() time.Duration {
	if i.delays.RestoreTimeout <= 0 {
		return 2 * time.Second
	}
	return i.delays.RestoreTimeout
}
