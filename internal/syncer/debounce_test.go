package syncer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForValue(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced apply")
		return 0
	}
}

func assertNoFire(t *testing.T, ch <-chan int64) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected apply with value %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSynchronizer_BurstCoalescesToLatest(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	s := New(1*time.Second, fakeClock)
	t.Cleanup(s.Stop)

	applied := make(chan int64, 4)
	schedule := func(balance int64) {
		s.Schedule("balance", func() { applied <- balance })
	}

	// Calls at t=0, 100, 150, 900ms. Each call re-arms the window, so the
	// single fire lands at t=1900ms with the t=900ms payload.
	schedule(1000)
	fakeClock.Advance(100 * time.Millisecond)
	schedule(1200)
	fakeClock.Advance(50 * time.Millisecond)
	schedule(1500)
	fakeClock.Advance(750 * time.Millisecond)
	schedule(1600)

	// t=1899ms: still pending.
	fakeClock.Advance(999 * time.Millisecond)
	assertNoFire(t, applied)
	assert.True(t, s.Pending("balance"))

	// t=1900ms: exactly one apply, carrying the latest payload.
	fakeClock.Advance(1 * time.Millisecond)
	assert.Equal(t, int64(1600), waitForValue(t, applied))
	assertNoFire(t, applied)

	// Entry cleared after firing.
	require.Eventually(t, func() bool { return !s.Pending("balance") },
		time.Second, 10*time.Millisecond)
}

func TestSynchronizer_IndependentKeys(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	s := New(time.Second, fakeClock)
	t.Cleanup(s.Stop)

	applied := make(chan int64, 2)
	s.Schedule("balance", func() { applied <- 1 })
	s.Schedule("experience", func() { applied <- 2 })

	fakeClock.Advance(time.Second)

	got := map[int64]bool{waitForValue(t, applied): true, waitForValue(t, applied): true}
	assert.True(t, got[1] && got[2], "both keys fire once each")
}

func TestSynchronizer_SchedulesAgainAfterFire(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	s := New(time.Second, fakeClock)
	t.Cleanup(s.Stop)

	applied := make(chan int64, 2)
	s.Schedule("balance", func() { applied <- 1 })
	fakeClock.Advance(time.Second)
	assert.Equal(t, int64(1), waitForValue(t, applied))

	s.Schedule("balance", func() { applied <- 2 })
	fakeClock.Advance(time.Second)
	assert.Equal(t, int64(2), waitForValue(t, applied))
}

func TestSynchronizer_StaleCallbackCannotApplyEarly(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	s := New(time.Second, fakeClock)
	t.Cleanup(s.Stop)

	applied := make(chan int64, 2)
	s.Schedule("balance", func() { applied <- 1 })
	fakeClock.Advance(500 * time.Millisecond)
	s.Schedule("balance", func() { applied <- 2 })

	// A callback from the superseded deadline may already be in flight when
	// the re-arm happens; its sequence is stale, so it must be a no-op.
	s.fire("balance", 1)
	assertNoFire(t, applied)
	assert.True(t, s.Pending("balance"), "re-armed window survives the stale fire")

	// The re-armed window still delivers the latest payload at full length.
	fakeClock.Advance(time.Second)
	assert.Equal(t, int64(2), waitForValue(t, applied))
}

func TestSynchronizer_StopDiscardsPending(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	s := New(time.Second, fakeClock)

	applied := make(chan int64, 1)
	s.Schedule("balance", func() { applied <- 1 })
	s.Stop()

	fakeClock.Advance(time.Second)
	assertNoFire(t, applied)

	// Scheduling after Stop is a no-op.
	s.Schedule("balance", func() { applied <- 2 })
	fakeClock.Advance(time.Second)
	assertNoFire(t, applied)
}

func TestSynchronizer_ZeroWindowUsesDefault(t *testing.T) {
	s := New(0, clockwork.NewFakeClock())
	t.Cleanup(s.Stop)
	assert.Equal(t, DefaultWindow, s.window)
}
