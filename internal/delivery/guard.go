package delivery

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Guard is the single-slot delivery lock. At most one injection may hold it, and a
// holder that never releases loses it once maxHold has elapsed.
//
// Guard is not safe for concurrent use; the dictation controller loop owns it.
type Guard struct {
	clock    clockwork.Clock
	maxHold  time.Duration
	inFlight bool
	deadline time.Time
}

// NewGuard builds a Guard. maxHold <= 0 means the flag only clears on Release.
func NewGuard(clk clockwork.Clock, maxHold time.Duration) *Guard {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Guard{clock: clk, maxHold: maxHold}
}

// InFlight reports whether a delivery currently holds the guard.
func (g *Guard) InFlight() bool {
	if g.inFlight && g.maxHold > 0 && !g.clock.Now().Before(g.deadline) {
		g.inFlight = false
	}
	return g.inFlight
}

// TryAcquire sets the flag and returns true, or returns false if it is already held.
func (g *Guard) TryAcquire() bool {
	if g.InFlight() {
		return false
	}
	g.inFlight = true
	if g.maxHold > 0 {
		g.deadline = g.clock.Now().Add(g.maxHold)
	}
	return true
}

// Release clears the flag. It is idempotent.
func (g *Guard) Release() {
	g.inFlight = false
	g.deadline = time.Time{}
}
