package gesture

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdscribe/internal/domain"
)

const (
	ctrl  uint16 = 29
	ctrlR uint16 = 3613
	keyC  uint16 = 46
)

// harness drives a Machine with a logical clock and records emitted effects.
type harness struct {
	m       *Machine
	now     time.Duration
	armAt   time.Duration
	armGen  uint64
	armLive bool
	effects []Effect
}

func newHarness() *harness {
	return &harness{m: New([]uint16{ctrl, ctrlR}, DefaultArmThreshold)}
}

func (h *harness) apply(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectStartArmTimer:
			h.armLive = true
			h.armGen = e.Generation
			h.armAt = h.now + e.Delay
		case EffectCancelArmTimer:
			h.armLive = false
		}
	}
	h.effects = append(h.effects, effects...)
}

func (h *harness) advance(d time.Duration) {
	h.now += d
	if h.armLive && h.now >= h.armAt {
		h.armLive = false
		h.apply(h.m.ArmTimerFired(h.armGen))
	}
}

func (h *harness) down(code uint16) { h.apply(h.m.KeyDown(code)) }
func (h *harness) up(code uint16)   { h.apply(h.m.KeyUp(code)) }

func (h *harness) count(kind EffectKind) int {
	n := 0
	for _, e := range h.effects {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) states() []domain.SessionState {
	var out []domain.SessionState
	for _, e := range h.effects {
		if e.Kind == EffectStateChanged {
			out = append(out, e.State)
		}
	}
	return out
}

func TestHoldPastThresholdStartsRecording(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	assert.Equal(t, domain.SessionStateArmed, h.m.State())

	h.advance(DefaultArmThreshold - time.Millisecond)
	assert.Equal(t, domain.SessionStateArmed, h.m.State())

	h.advance(time.Millisecond)
	assert.Equal(t, domain.SessionStateRecording, h.m.State())
	assert.Equal(t, 1, h.count(EffectStartRecording))

	h.up(ctrl)
	assert.Equal(t, domain.SessionStateFinalizing, h.m.State())
	assert.Equal(t, 1, h.count(EffectStopRecording))
	assert.Equal(t, []domain.SessionState{
		domain.SessionStateArmed,
		domain.SessionStateRecording,
		domain.SessionStateFinalizing,
	}, h.states())
}

func TestEarlyReleaseReturnsToIdleWithoutRecording(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	h.advance(500 * time.Millisecond)
	h.up(ctrl)

	assert.Equal(t, domain.SessionStateIdle, h.m.State())
	assert.Equal(t, 1, h.count(EffectCancelArmTimer))

	h.advance(2 * time.Second)
	assert.Equal(t, 0, h.count(EffectStartRecording))
}

func TestOtherKeyDuringArmCancels(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	h.advance(100 * time.Millisecond)
	h.down(keyC)

	assert.Equal(t, domain.SessionStateIdle, h.m.State())
	h.advance(5 * time.Second)
	assert.Equal(t, 0, h.count(EffectStartRecording))

	// Releasing the still-held modifier after the shortcut is a no-op.
	h.up(ctrl)
	assert.Equal(t, domain.SessionStateIdle, h.m.State())
}

func TestRepeatAfterShortcutDoesNotRearm(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	h.advance(300 * time.Millisecond)
	h.down(keyC)
	h.up(keyC)
	require.Equal(t, domain.SessionStateIdle, h.m.State())

	// Auto-repeat of the still-held modifier.
	h.down(ctrl)
	h.advance(DefaultArmThreshold)
	assert.Equal(t, domain.SessionStateIdle, h.m.State())
	assert.Equal(t, 0, h.count(EffectStartRecording))
	assert.Equal(t, 1, h.count(EffectStartArmTimer))

	h.up(ctrl)
	h.down(ctrl)
	h.advance(DefaultArmThreshold)
	assert.Equal(t, domain.SessionStateRecording, h.m.State())
	assert.Equal(t, 1, h.count(EffectStartRecording))
}

func TestKeyRepeatDoesNotRestartArmTimer(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	for i := 0; i < 10; i++ {
		h.advance(100 * time.Millisecond)
		h.down(ctrl)
	}
	assert.Equal(t, 1, h.count(EffectStartArmTimer))

	h.advance(200 * time.Millisecond)
	assert.Equal(t, domain.SessionStateRecording, h.m.State())

	h.down(ctrl)
	assert.Equal(t, domain.SessionStateRecording, h.m.State())
}

func TestOtherKeysIgnoredWhenModifierNotHeld(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(keyC)
	h.up(keyC)
	assert.Empty(t, h.effects)
}

func TestOtherKeyDuringRecordingDoesNotCancel(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.down(ctrl)
	h.advance(DefaultArmThreshold)
	h.down(keyC)
	assert.Equal(t, domain.SessionStateRecording, h.m.State())
}

func TestReleaseWhileFinalizingOrIdleIsNoop(t *testing.T) {
	t.Parallel()

	m := New(nil, 0)
	assert.Nil(t, m.KeyUp(ctrl))

	m.KeyDown(ctrl)
	gen := m.armGeneration
	m.ArmTimerFired(gen)
	m.KeyUp(ctrl)
	require.Equal(t, domain.SessionStateFinalizing, m.State())
	assert.Nil(t, m.KeyUp(ctrl))
	assert.Equal(t, domain.SessionStateFinalizing, m.State())
}

func TestStaleArmTimerIgnored(t *testing.T) {
	t.Parallel()

	m := New(nil, 0)
	m.KeyDown(ctrl)
	stale := m.armGeneration
	m.KeyUp(ctrl)
	m.KeyDown(ctrl)

	assert.Nil(t, m.ArmTimerFired(stale))
	assert.Equal(t, domain.SessionStateArmed, m.State())
}

func TestResetIsIdempotent(t *testing.T) {
	t.Parallel()

	m := New(nil, 0)
	first := m.Reset()
	second := m.Reset()
	assert.Equal(t, first, second)
	assert.Equal(t, []Effect{{Kind: EffectStateChanged, State: domain.SessionStateIdle}}, second)

	m.KeyDown(ctrl)
	effects := m.Reset()
	require.Len(t, effects, 2)
	assert.Equal(t, EffectCancelArmTimer, effects[0].Kind)
	assert.Equal(t, domain.SessionStateIdle, m.State())
}

func TestApplyTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		inputs []Input
		want   domain.SessionState
	}{
		{"down arms", []Input{{Kind: InputKeyDown, Code: ctrl}}, domain.SessionStateArmed},
		{"right ctrl arms", []Input{{Kind: InputKeyDown, Code: ctrlR}}, domain.SessionStateArmed},
		{"down fire records", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputArmTimerFired, Generation: 1}}, domain.SessionStateRecording},
		{"down up idles", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputKeyUp, Code: ctrl}}, domain.SessionStateIdle},
		{"down other idles", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputKeyDown, Code: keyC}}, domain.SessionStateIdle},
		{"record release finalizes", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputArmTimerFired, Generation: 1}, {Kind: InputKeyUp, Code: ctrl}}, domain.SessionStateFinalizing},
		{"finalizing reset idles", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputArmTimerFired, Generation: 1}, {Kind: InputKeyUp, Code: ctrl}, {Kind: InputReset}}, domain.SessionStateIdle},
		{"finalizing ignores new press", []Input{{Kind: InputKeyDown, Code: ctrl}, {Kind: InputArmTimerFired, Generation: 1}, {Kind: InputKeyUp, Code: ctrl}, {Kind: InputKeyDown, Code: ctrl}}, domain.SessionStateFinalizing},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := New([]uint16{ctrl, ctrlR}, 0)
			for _, in := range tc.inputs {
				m.Apply(in)
			}
			assert.Equal(t, tc.want, m.State())
		})
	}
}

// Recording is reached iff the modifier was held for the threshold with no other key.
func TestRandomSequencesRecordingIffHeldUninterrupted(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		h := newHarness()
		held := false
		var heldFor time.Duration
		interrupted := false
		recordedExpected := false

		for step := 0; step < 20 && h.m.State() != domain.SessionStateRecording; step++ {
			switch rng.Intn(4) {
			case 0:
				// A hold cut short by a shortcut stays inert until released.
				if h.m.State() == domain.SessionStateIdle && !(held && interrupted) {
					held, heldFor, interrupted = true, 0, false
				}
				h.down(ctrl)
			case 1:
				held = false
				h.up(ctrl)
			case 2:
				if held {
					interrupted = true
				}
				h.down(keyC)
			case 3:
				d := time.Duration(rng.Intn(900)) * time.Millisecond
				if held && !interrupted && heldFor < DefaultArmThreshold && heldFor+d >= DefaultArmThreshold {
					recordedExpected = true
				}
				if held {
					heldFor += d
				}
				h.advance(d)
			}
		}

		recorded := h.count(EffectStartRecording) > 0
		require.Equal(t, recordedExpected, recorded, "iteration %d", iter)
		require.LessOrEqual(t, h.count(EffectStartRecording), 1)
	}
}

func TestEffectKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "start_recording", EffectStartRecording.String())
	assert.Equal(t, "unknown", EffectKind(99).String())
}
