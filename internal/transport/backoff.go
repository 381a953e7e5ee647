package transport

import (
	"math/rand"
	"time"
)

const (
	// DefaultBaseDelay is the first reconnect delay.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay caps exponential growth.
	DefaultMaxDelay = 30 * time.Second
	// DefaultJitter is the upper bound of the random variance added to every
	// delay, so many clients recovering from a shared outage do not retry in
	// lockstep.
	DefaultJitter = 1 * time.Second
)

// Backoff computes reconnection delays: Base doubled per consecutive failure,
// capped at Max, plus jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// DefaultBackoff returns the standard reconnect policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay, Jitter: DefaultJitter}
}

// Delay returns the wait before reconnect attempt number failures+1.
func (b Backoff) Delay(failures int) time.Duration {
	delay := b.Max
	// Shifting beyond 62 bits overflows; everything that large is capped anyway.
	if failures < 63 {
		d := b.Base << uint(failures)
		if d > 0 && d < b.Max {
			delay = d
		}
	}
	if b.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return delay
}
