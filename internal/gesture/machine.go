// Package gesture turns raw key edges into the dictation lifecycle.
//
// Machine is a pure transition function over in-memory flags: each input returns
// the side effects the caller must perform (publish a state change, schedule or
// cancel the arm timer, start or stop recording). It never owns a timer itself,
// so tests can drive it without a clock.
package gesture

import (
	"time"

	"holdscribe/internal/domain"
)

// DefaultArmThreshold is how long the modifier must be held before recording starts.
const DefaultArmThreshold = 1200 * time.Millisecond

// DefaultModifierCodes are left and right Control in the uiohook keycode space.
var DefaultModifierCodes = []uint16{29, 3613}

// EffectKind enumerates the side effects a transition can request.
type EffectKind int

const (
	EffectStateChanged EffectKind = iota + 1
	EffectStartArmTimer
	EffectCancelArmTimer
	EffectStartRecording
	EffectStopRecording
)

func (k EffectKind) String() string {
	switch k {
	case EffectStateChanged:
		return "state_changed"
	case EffectStartArmTimer:
		return "start_arm_timer"
	case EffectCancelArmTimer:
		return "cancel_arm_timer"
	case EffectStartRecording:
		return "start_recording"
	case EffectStopRecording:
		return "stop_recording"
	default:
		return "unknown"
	}
}

// Effect is one side effect requested by a transition.
type Effect struct {
	Kind EffectKind
	// State is set for EffectStateChanged.
	State domain.SessionState
	// Generation identifies the arm timer for EffectStartArmTimer; a firing must echo it back.
	Generation uint64
	// Delay is the arm timer duration for EffectStartArmTimer.
	Delay time.Duration
}

// InputKind enumerates machine inputs.
type InputKind int

const (
	InputKeyDown InputKind = iota + 1
	InputKeyUp
	InputArmTimerFired
	InputReset
)

// Input is one event fed to Apply.
type Input struct {
	Kind       InputKind
	Code       uint16
	Generation uint64
}

// Machine holds the gesture state and flags.
type Machine struct {
	modifiers    map[uint16]struct{}
	armThreshold time.Duration

	state           domain.SessionState
	modifierHeld    bool
	otherKeyPressed bool
	armPending      bool
	armGeneration   uint64
	// suppressed blocks re-arming until the modifier held at the last reset is released.
	suppressed bool
}

// New builds a machine in the Idle state.
func New(modifierCodes []uint16, armThreshold time.Duration) *Machine {
	if len(modifierCodes) == 0 {
		modifierCodes = DefaultModifierCodes
	}
	if armThreshold <= 0 {
		armThreshold = DefaultArmThreshold
	}
	modifiers := make(map[uint16]struct{}, len(modifierCodes))
	for _, code := range modifierCodes {
		modifiers[code] = struct{}{}
	}
	return &Machine{
		modifiers:    modifiers,
		armThreshold: armThreshold,
		state:        domain.SessionStateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() domain.SessionState { return m.state }

// IsModifier reports whether code is one of the designated modifier keys.
func (m *Machine) IsModifier(code uint16) bool {
	_, ok := m.modifiers[code]
	return ok
}

// Apply dispatches a generic input.
func (m *Machine) Apply(in Input) []Effect {
	switch in.Kind {
	case InputKeyDown:
		return m.KeyDown(in.Code)
	case InputKeyUp:
		return m.KeyUp(in.Code)
	case InputArmTimerFired:
		return m.ArmTimerFired(in.Generation)
	case InputReset:
		return m.Reset()
	default:
		return nil
	}
}

// KeyDown handles a key press edge.
func (m *Machine) KeyDown(code uint16) []Effect {
	if m.IsModifier(code) {
		// Auto-repeat delivers more presses while held; only Idle arms.
		if m.state != domain.SessionStateIdle || m.suppressed {
			return nil
		}
		m.modifierHeld = true
		m.otherKeyPressed = false
		m.state = domain.SessionStateArmed
		m.armGeneration++
		m.armPending = true
		return []Effect{
			{Kind: EffectStateChanged, State: m.state},
			{Kind: EffectStartArmTimer, Generation: m.armGeneration, Delay: m.armThreshold},
		}
	}

	if !m.modifierHeld {
		return nil
	}
	m.otherKeyPressed = true
	if m.state == domain.SessionStateArmed {
		// Modifier plus another key is a shortcut, not a dictation trigger.
		return m.Reset()
	}
	return nil
}

// ArmTimerFired handles the arm threshold elapsing for the given timer generation.
func (m *Machine) ArmTimerFired(generation uint64) []Effect {
	if generation != m.armGeneration || !m.armPending {
		return nil
	}
	m.armPending = false
	if m.state != domain.SessionStateArmed || !m.modifierHeld || m.otherKeyPressed {
		return nil
	}
	m.state = domain.SessionStateRecording
	return []Effect{
		{Kind: EffectStateChanged, State: m.state},
		{Kind: EffectStartRecording},
	}
}

// KeyUp handles a key release edge. Only the modifier release drives a transition.
func (m *Machine) KeyUp(code uint16) []Effect {
	if !m.IsModifier(code) {
		return nil
	}
	m.modifierHeld = false
	m.suppressed = false

	switch m.state {
	case domain.SessionStateArmed:
		return m.Reset()
	case domain.SessionStateRecording:
		m.state = domain.SessionStateFinalizing
		return []Effect{
			{Kind: EffectStateChanged, State: m.state},
			{Kind: EffectStopRecording},
		}
	default:
		return nil
	}
}

// Reset cancels a pending arm timer, clears the flags and forces Idle. Safe from any state.
// A modifier still held at reset cannot arm again until it is released.
func (m *Machine) Reset() []Effect {
	var effects []Effect
	if m.armPending {
		effects = append(effects, Effect{Kind: EffectCancelArmTimer, Generation: m.armGeneration})
		m.armPending = false
	}
	m.armGeneration++
	m.otherKeyPressed = false
	m.suppressed = m.modifierHeld
	m.modifierHeld = false
	m.state = domain.SessionStateIdle
	return append(effects, Effect{Kind: EffectStateChanged, State: m.state})
}
