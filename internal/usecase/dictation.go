package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"holdscribe/internal/delivery"
	"holdscribe/internal/domain"
	"holdscribe/internal/gesture"
	"holdscribe/internal/ports"
)

// Config controls session pacing.
type Config struct {
	ModifierKeycodes []uint16
	ArmThreshold     time.Duration

	FinalizeTimeout     time.Duration
	NotReadyGrace       time.Duration
	ErrorResetDelay     time.Duration
	EmptyResetDelay     time.Duration
	TimeoutResetDelay   time.Duration
	DeliveredResetDelay time.Duration
	StatusLogInterval   time.Duration
	GuardMaxHold        time.Duration
}

// DefaultConfig returns the pacing used by the desktop runtime.
func DefaultConfig() Config {
	return Config{
		ModifierKeycodes:    gesture.DefaultModifierCodes,
		ArmThreshold:        gesture.DefaultArmThreshold,
		FinalizeTimeout:     8 * time.Second,
		NotReadyGrace:       time.Second,
		ErrorResetDelay:     2 * time.Second,
		EmptyResetDelay:     800 * time.Millisecond,
		TimeoutResetDelay:   800 * time.Millisecond,
		DeliveredResetDelay: 50 * time.Millisecond,
		StatusLogInterval:   10 * time.Second,
		GuardMaxHold:        10 * time.Second,
	}
}

// Deps are the collaborators of a DictationController. Focus and Notifier are optional.
type Deps struct {
	Bridge   ports.EngineBridge
	Injector ports.TextInjector
	Focus    ports.FocusProbe
	Notifier ports.Notifier
	Events   ports.EventSink
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// DictationController owns the dictation session. Every piece of session state is
// touched only by the loop goroutine in Run; timers, injections and UI requests
// post closures back onto that loop.
type DictationController struct {
	machine  *gesture.Machine
	bridge   ports.EngineBridge
	injector ports.TextInjector
	focus    ports.FocusProbe
	notifier ports.Notifier
	events   ports.EventSink
	clock    clockwork.Clock
	logger   *slog.Logger
	guard    *delivery.Guard
	cfg      Config

	inbox chan func()
	done  chan struct{}
	spawn func(func())
	ctx   context.Context

	// Loop-owned state.
	enabled       bool
	sessionSeq    uint64
	focusTarget   *domain.FocusTarget
	awaiting      bool
	injecting     bool
	relaunching   bool
	readyNotified bool
	armTimer      clockwork.Timer
	finalizeTimer clockwork.Timer
	finalizeGen   uint64
	resetTimer    clockwork.Timer
	resetGen      uint64
	statusTimer   clockwork.Timer

	statusMu sync.RWMutex
	status   domain.Status
}

func NewDictationController(deps Deps, cfg Config) *DictationController {
	defaults := DefaultConfig()
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = defaults.FinalizeTimeout
	}
	if cfg.GuardMaxHold <= 0 {
		cfg.GuardMaxHold = defaults.GuardMaxHold
	}
	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DictationController{
		machine:  gesture.New(cfg.ModifierKeycodes, cfg.ArmThreshold),
		bridge:   deps.Bridge,
		injector: deps.Injector,
		focus:    deps.Focus,
		notifier: deps.Notifier,
		events:   deps.Events,
		clock:    clk,
		logger:   logger,
		guard:    delivery.NewGuard(clk, cfg.GuardMaxHold),
		cfg:      cfg,
		inbox:    make(chan func(), 64),
		done:     make(chan struct{}),
		spawn:    func(f func()) { go f() },
		ctx:      context.Background(),
		enabled:  true,
		status:   domain.Status{State: domain.SessionStateIdle, DictationEnabled: true},
	}
}

// Run processes key edges, engine events and internal events one at a time until
// ctx is cancelled.
func (c *DictationController) Run(ctx context.Context, keys <-chan domain.KeyEvent, engine <-chan domain.EngineEvent) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.stopTimers()

	c.scheduleStatusLog()
	c.logger.Info("dictation controller started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("dictation controller stopped")
			return nil
		case key, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			c.handleKey(key)
		case ev, ok := <-engine:
			if !ok {
				engine = nil
				continue
			}
			c.handleEngineEvent(ev)
		case fn := <-c.inbox:
			fn()
		}
	}
}

// Status returns a snapshot safe to call from any goroutine.
func (c *DictationController) Status() domain.Status {
	c.statusMu.RLock()
	status := c.status
	c.statusMu.RUnlock()
	if c.bridge != nil {
		status.EngineConnected = c.bridge.Connected()
		status.EngineRunning = c.bridge.EngineRunning()
	}
	return status
}

// SetDictationEnabled turns hold-to-dictate on or off. Disabling resets any session.
func (c *DictationController) SetDictationEnabled(enabled bool) {
	c.post(func() {
		if c.enabled == enabled {
			return
		}
		c.enabled = enabled
		c.logger.Info("dictation toggled", "enabled", enabled)
		if !enabled {
			if c.machine.State() != domain.SessionStateIdle {
				c.reset()
			}
			c.events.TranscriptStatus(domain.StatusDictationOff)
		} else {
			c.events.TranscriptStatus(domain.StatusDictationOn)
		}
		c.publishStatus()
	})
}

// RestartEngine kills and relaunches the recognition engine immediately.
func (c *DictationController) RestartEngine(ctx context.Context) error {
	err := c.bridge.Relaunch(ctx)
	c.post(func() {
		if err != nil {
			c.events.SessionError(domain.ErrorCodeEngine, err.Error())
			return
		}
		c.events.TranscriptStatus(domain.StatusEngineRestarted)
	})
	return err
}

// post queues fn for the loop. It drops fn once the loop has exited.
func (c *DictationController) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *DictationController) handleKey(key domain.KeyEvent) {
	if !c.enabled {
		// Releases still reach the machine so a press held across the toggle ends cleanly.
		if key.Edge == domain.KeyEdgeUp {
			c.apply(c.machine.KeyUp(key.Code))
		}
		return
	}
	switch key.Edge {
	case domain.KeyEdgeDown:
		c.apply(c.machine.KeyDown(key.Code))
	case domain.KeyEdgeUp:
		c.apply(c.machine.KeyUp(key.Code))
	}
}

func (c *DictationController) apply(effects []gesture.Effect) {
	for _, effect := range effects {
		switch effect.Kind {
		case gesture.EffectStateChanged:
			c.onStateChanged(effect.State)
		case gesture.EffectStartArmTimer:
			c.stopTimer(&c.armTimer)
			generation := effect.Generation
			c.armTimer = c.clock.AfterFunc(effect.Delay, func() {
				c.post(func() {
					c.armTimer = nil
					c.apply(c.machine.ArmTimerFired(generation))
				})
			})
		case gesture.EffectCancelArmTimer:
			c.stopTimer(&c.armTimer)
		case gesture.EffectStartRecording:
			c.startRecording()
		case gesture.EffectStopRecording:
			c.stopRecording()
		}
	}
}

func (c *DictationController) onStateChanged(state domain.SessionState) {
	c.logger.Debug("session state changed", "state", state)
	switch state {
	case domain.SessionStateArmed:
		c.sessionSeq++
		c.focusTarget = nil
		c.captureFocus(c.sessionSeq)
	case domain.SessionStateIdle:
		c.focusTarget = nil
		c.awaiting = false
	}
	c.publishStatus()
	c.events.SessionStateChanged(state)
}

// captureFocus snapshots the foreground window off-loop. Failure leaves no target.
func (c *DictationController) captureFocus(seq uint64) {
	if c.focus == nil {
		return
	}
	ctx := c.ctx
	c.spawn(func() {
		target, err := c.focus.ActiveWindow(ctx)
		c.post(func() {
			if err != nil {
				c.logger.Debug("focus capture failed", "error", err)
				return
			}
			if seq != c.sessionSeq || c.machine.State() == domain.SessionStateIdle || target.Empty() {
				return
			}
			c.focusTarget = &target
			c.logger.Debug("focus target captured", "pid", target.PID)
		})
	})
}

func (c *DictationController) startRecording() {
	if c.bridge.Ready() && c.bridge.SendStart() {
		c.events.TranscriptStatus(domain.StatusListening)
		return
	}

	c.logger.Warn("engine not ready, dropping session", "running", c.bridge.EngineRunning())
	c.events.TranscriptStatus(domain.StatusEngineStarting)
	if !c.bridge.EngineRunning() {
		c.relaunchEngine()
	}
	c.scheduleReset(c.cfg.NotReadyGrace)
}

func (c *DictationController) relaunchEngine() {
	if c.relaunching {
		return
	}
	c.relaunching = true
	ctx := c.ctx
	c.spawn(func() {
		err := c.bridge.Relaunch(ctx)
		c.post(func() {
			c.relaunching = false
			if err != nil {
				c.logger.Error("engine relaunch failed", "error", err)
				c.events.SessionError(domain.ErrorCodeEngine, err.Error())
			}
		})
	})
}

func (c *DictationController) stopRecording() {
	if !c.bridge.Connected() || !c.bridge.SendStop() {
		c.logger.Warn("stop not delivered, engine not connected")
		c.reset()
		return
	}

	c.awaiting = true
	c.events.TranscriptStatus(domain.StatusProcessing)

	c.stopTimer(&c.finalizeTimer)
	c.finalizeGen++
	generation := c.finalizeGen
	c.finalizeTimer = c.clock.AfterFunc(c.cfg.FinalizeTimeout, func() {
		c.post(func() { c.finalizeExpired(generation) })
	})
}

func (c *DictationController) finalizeExpired(generation uint64) {
	if generation != c.finalizeGen || c.machine.State() != domain.SessionStateFinalizing || !c.awaiting {
		return
	}
	c.finalizeTimer = nil
	c.awaiting = false
	c.logger.Warn("finalize deadline passed", "error", domain.ErrFinalizeTimeout)
	c.events.TranscriptStatus(domain.StatusTimeout)
	c.events.SessionError(domain.ErrorCodeTimeout, domain.ErrFinalizeTimeout.Error())
	c.scheduleReset(c.cfg.TimeoutResetDelay)
}

func (c *DictationController) handleEngineEvent(ev domain.EngineEvent) {
	switch ev.Kind {
	case domain.EngineEventReady:
		c.events.TranscriptStatus(domain.StatusEngineReady)
		c.notifyReadyOnce()
	case domain.EngineEventTranscript:
		c.onTranscript(ev.Text)
	case domain.EngineEventError:
		c.onEngineError(ev.Detail)
	case domain.EngineEventDisconnected, domain.EngineEventProcessExited:
		c.logger.Warn("engine unavailable", "event", ev.Kind)
		c.events.TranscriptStatus(domain.StatusEngineLost)
	}
	c.publishStatus()
}

func (c *DictationController) notifyReadyOnce() {
	if c.readyNotified || c.notifier == nil {
		return
	}
	c.readyNotified = true
	notifier := c.notifier
	logger := c.logger
	c.spawn(func() {
		if err := notifier.Notify("holdscribe", "Speech engine is ready. Hold Ctrl to dictate."); err != nil {
			logger.Debug("ready notification failed", "error", err)
		}
	})
}

func (c *DictationController) onTranscript(text string) {
	if c.machine.State() != domain.SessionStateFinalizing || !c.awaiting {
		c.logger.Info("ignoring transcript outside finalizing", "state", c.machine.State(), "length", len(text))
		return
	}
	if !c.guard.TryAcquire() {
		c.logger.Info("ignoring duplicate transcript", "error", domain.ErrDeliveryBusy)
		return
	}
	c.awaiting = false
	c.stopTimer(&c.finalizeTimer)
	c.finalizeGen++

	cleaned := delivery.Cleanup(text)
	if cleaned == "" {
		c.logger.Info("empty transcript", "error", domain.ErrEmptyTranscript)
		c.events.TranscriptStatus(domain.StatusNoSpeech)
		c.scheduleReset(c.cfg.EmptyResetDelay)
		c.publishStatus()
		return
	}

	c.injecting = true
	c.publishStatus()
	seq := c.sessionSeq
	var target *domain.FocusTarget
	if c.focusTarget != nil {
		copied := *c.focusTarget
		target = &copied
	}
	ctx := c.ctx
	c.spawn(func() {
		err := c.injector.Inject(ctx, cleaned, target)
		c.post(func() { c.deliveryDone(seq, len(cleaned), err) })
	})
}

func (c *DictationController) deliveryDone(seq uint64, length int, err error) {
	c.injecting = false
	if err != nil {
		code := domain.ErrorCodeClipboard
		if errors.Is(err, domain.ErrPasteFailed) {
			code = domain.ErrorCodeInjection
		}
		c.logger.Error("text delivery failed", "error", err)
		c.events.TranscriptStatus(domain.StatusInsertFailed)
		c.events.SessionError(code, err.Error())
	} else {
		c.logger.Info("text delivered", "length", length)
		c.events.TranscriptStatus(domain.StatusInserted)
	}

	if seq == c.sessionSeq && c.machine.State() == domain.SessionStateFinalizing {
		c.scheduleReset(c.cfg.DeliveredResetDelay)
	} else {
		c.guard.Release()
	}
	c.publishStatus()
}

func (c *DictationController) onEngineError(detail string) {
	if strings.TrimSpace(detail) == "" {
		detail = "recognition engine error"
	}
	c.events.TranscriptStatus(domain.StatusEngineError)
	c.events.SessionError(domain.ErrorCodeEngine, detail)
	if c.machine.State() == domain.SessionStateIdle || c.injecting {
		return
	}
	c.awaiting = false
	c.stopTimer(&c.finalizeTimer)
	c.finalizeGen++
	c.scheduleReset(c.cfg.ErrorResetDelay)
}

// scheduleReset replaces any pending reset with one after delay.
func (c *DictationController) scheduleReset(delay time.Duration) {
	c.stopTimer(&c.resetTimer)
	c.resetGen++
	if delay <= 0 {
		c.reset()
		return
	}
	generation := c.resetGen
	c.resetTimer = c.clock.AfterFunc(delay, func() {
		c.post(func() {
			if generation == c.resetGen {
				c.resetTimer = nil
				c.reset()
			}
		})
	})
}

// reset returns the session to Idle and clears every per-session deadline.
func (c *DictationController) reset() {
	c.stopTimer(&c.resetTimer)
	c.resetGen++
	c.stopTimer(&c.finalizeTimer)
	c.finalizeGen++
	c.stopTimer(&c.armTimer)
	c.awaiting = false
	if !c.injecting {
		c.guard.Release()
	}
	c.apply(c.machine.Reset())
}

func (c *DictationController) scheduleStatusLog() {
	if c.cfg.StatusLogInterval <= 0 {
		return
	}
	c.statusTimer = c.clock.AfterFunc(c.cfg.StatusLogInterval, func() {
		c.post(func() {
			status := c.Status()
			c.logger.Info("status",
				"state", status.State,
				"enabled", status.DictationEnabled,
				"connected", status.EngineConnected,
				"engine_running", status.EngineRunning,
				"delivery_in_flight", status.DeliveryInFlight,
			)
			c.scheduleStatusLog()
		})
	})
}

func (c *DictationController) publishStatus() {
	c.statusMu.Lock()
	c.status.State = c.machine.State()
	c.status.DictationEnabled = c.enabled
	c.status.DeliveryInFlight = c.injecting || c.guard.InFlight()
	c.statusMu.Unlock()
}

func (c *DictationController) stopTimers() {
	for _, t := range []*clockwork.Timer{&c.armTimer, &c.finalizeTimer, &c.resetTimer, &c.statusTimer} {
		c.stopTimer(t)
	}
}

func (c *DictationController) stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
