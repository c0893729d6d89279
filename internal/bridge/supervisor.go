package bridge

import (
	"context"
	"errors"

	"holdscribe/internal/domain"
	"holdscribe/internal/ports"
)

// StartEngine launches the engine process unless one is already running.
func (b *Bridge) StartEngine(ctx context.Context) error {
	b.mu.Lock()
	running := b.process != nil
	b.mu.Unlock()
	if running {
		return nil
	}
	return b.launch(ctx)
}

// Ready reports whether a session can start. A supervising bridge also needs a
// live engine process: a peer whose browser has exited is stale.
func (b *Bridge) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peer == nil {
		return false
	}
	return b.launcher == nil || b.process != nil
}

// EngineRunning reports whether the engine process handle is live.
func (b *Bridge) EngineRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.process != nil
}

// Relaunch kills the current engine and starts a new one immediately, bypassing
// the backoff. Any pending automatic relaunch is cancelled and the killed process
// will not schedule another.
func (b *Bridge) Relaunch(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bridge is closed")
	}
	b.cancelRelaunchLocked()
	old := b.process
	b.process = nil
	b.procGen++
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("killing engine for relaunch", "pid", old.PID())
		if err := old.Kill(); err != nil {
			b.logger.Warn("engine kill failed", "error", err)
		}
	}
	return b.launch(ctx)
}

func (b *Bridge) launch(ctx context.Context) error {
	if b.launcher == nil {
		return domain.ErrEngineNotRunning
	}

	b.launchMu.Lock()
	defer b.launchMu.Unlock()

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return errors.New("bridge is closed")
	}

	proc, err := b.launcher.Launch(ctx, b.BootstrapURL())
	if err != nil {
		b.logger.Error("engine launch failed", "error", err)
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = proc.Kill()
		return errors.New("bridge is closed")
	}
	previous := b.process
	b.procGen++
	gen := b.procGen
	b.process = proc
	b.mu.Unlock()

	if previous != nil {
		_ = previous.Kill()
	}

	go b.watch(proc, gen)
	return nil
}

// watch waits for proc to exit and, unless it was superseded, schedules one relaunch.
func (b *Bridge) watch(proc ports.EngineProcess, gen uint64) {
	err := proc.Wait()

	b.mu.Lock()
	// A superseded or already-reaped process never schedules a relaunch.
	if b.closed || gen != b.procGen || b.process != proc {
		b.mu.Unlock()
		return
	}
	b.process = nil
	scheduled := b.scheduleRelaunchLocked()
	b.mu.Unlock()

	b.logger.Warn("engine process exited", "pid", proc.PID(), "error", err, "relaunch_scheduled", scheduled)
	b.emit(domain.EngineEvent{Kind: domain.EngineEventProcessExited})
}

// scheduleRelaunchLocked arms the backoff relaunch. At most one is ever pending.
// Caller holds b.mu.
func (b *Bridge) scheduleRelaunchLocked() bool {
	if b.relaunchTimer != nil {
		return false
	}
	b.relaunchSeq++
	seq := b.relaunchSeq
	b.relaunchTimer = b.clock.AfterFunc(b.cfg.RelaunchBackoff, func() {
		b.mu.Lock()
		if seq != b.relaunchSeq {
			b.mu.Unlock()
			return
		}
		b.relaunchTimer = nil
		skip := b.closed || b.process != nil
		b.mu.Unlock()
		if skip {
			return
		}
		if err := b.launch(context.Background()); err != nil {
			b.logger.Error("scheduled engine relaunch failed", "error", err)
		}
	})
	return true
}

// cancelRelaunchLocked drops any pending backoff relaunch. Caller holds b.mu.
func (b *Bridge) cancelRelaunchLocked() {
	if b.relaunchTimer != nil {
		b.relaunchTimer.Stop()
		b.relaunchTimer = nil
	}
	b.relaunchSeq++
}
