package delivery

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestGuardSingleSlot(t *testing.T) {
	t.Parallel()

	g := NewGuard(clockwork.NewFakeClock(), 0)
	assert.False(t, g.InFlight())
	assert.True(t, g.TryAcquire())
	assert.True(t, g.InFlight())
	assert.False(t, g.TryAcquire())

	g.Release()
	g.Release()
	assert.False(t, g.InFlight())
	assert.True(t, g.TryAcquire())
}

func TestGuardExpiresAfterMaxHold(t *testing.T) {
	t.Parallel()

	clk := clockwork.NewFakeClock()
	g := NewGuard(clk, 10*time.Second)
	assert.True(t, g.TryAcquire())

	clk.Advance(9 * time.Second)
	assert.True(t, g.InFlight())

	clk.Advance(time.Second)
	assert.False(t, g.InFlight())
	assert.True(t, g.TryAcquire())
}
