package vclock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickAdvancesVirtualTime(t *testing.T) {
	t.Parallel()

	c := New(nil)
	require.Equal(t, time.Duration(0), c.VirtualNow())

	c.Tick(10 * time.Millisecond)
	c.Tick(10 * time.Millisecond)

	assert.Equal(t, 20*time.Millisecond, c.VirtualNow())
	assert.Equal(t, uint64(2), c.Ticks())
}

func TestTimeScaleScalesDeltas(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.SetTimeScale(2)
	c.Tick(10 * time.Millisecond)

	assert.Equal(t, 20*time.Millisecond, c.VirtualNow())

	c.SetTimeScale(0)
	c.Tick(time.Hour)
	assert.Equal(t, 20*time.Millisecond, c.VirtualNow(), "zero scale freezes virtual time")
}

func TestTimeoutFiresAtVirtualDeadline(t *testing.T) {
	t.Parallel()

	c := New(nil)

	var fired error
	c.RegisterTimeout(50*time.Millisecond, "*app.Database", func(err error) {
		fired = err
	})

	c.Tick(30 * time.Millisecond)
	require.NoError(t, fired)
	require.Equal(t, 1, c.Pending())

	c.Tick(30 * time.Millisecond)
	require.Error(t, fired)
	assert.Equal(t, 0, c.Pending())

	var timeoutErr *TimeoutError
	require.True(t, errors.As(fired, &timeoutErr))
	assert.Equal(t, "*app.Database", timeoutErr.Subject)
	assert.Contains(t, fired.Error(), "*app.Database", "expiry must name what was being waited on")
}

func TestNoTicksMeansNoExpiry(t *testing.T) {
	t.Parallel()

	c := New(nil)

	fired := false
	c.RegisterTimeout(time.Nanosecond, "x", func(error) { fired = true })

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired, "wall-clock time must not fire virtual timeouts")
	assert.Equal(t, 1, c.Pending())
}

func TestDisposePreventsFiring(t *testing.T) {
	t.Parallel()

	c := New(nil)

	fired := false
	reg := c.RegisterTimeout(10*time.Millisecond, "x", func(error) { fired = true })
	reg.Dispose()

	c.Tick(time.Second)
	assert.False(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestSettleBarrierReleasesOnTick(t *testing.T) {
	t.Parallel()

	c := New(nil)
	barrier := c.SettleBarrier()

	select {
	case <-barrier:
		t.Fatal("barrier released before any tick")
	default:
	}

	c.Tick(time.Millisecond)

	select {
	case <-barrier:
	default:
		t.Fatal("barrier not released by tick")
	}

	// A fresh barrier waits for the next tick.
	next := c.SettleBarrier()
	select {
	case <-next:
		t.Fatal("new barrier already released")
	default:
	}
}

func TestCleanupCancelsPendingAndResets(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.SetLive(false)
	c.Tick(time.Second)

	var got error
	c.RegisterTimeout(time.Hour, "pending-subject", func(err error) { got = err })

	c.Cleanup()

	var cleanupErr *CleanupError
	require.True(t, errors.As(got, &cleanupErr))
	assert.Equal(t, "pending-subject", cleanupErr.Subject)

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, time.Duration(0), c.VirtualNow())
	assert.True(t, c.Live(), "cleanup resets to a fresh, live coordinator")

	// Reusable after cleanup.
	fired := false
	c.RegisterTimeout(time.Millisecond, "again", func(error) { fired = true })
	c.Tick(time.Second)
	assert.True(t, fired)
}

func TestLiveFlag(t *testing.T) {
	t.Parallel()

	c := New(nil)
	assert.True(t, c.Live())

	c.SetLive(false)
	assert.False(t, c.Live())
}
