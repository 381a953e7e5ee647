// Package syncer coalesces bursty per-key cache updates into bounded-rate
// applications. Semantics are trailing-edge with reset-per-call: every
// Schedule re-arms the key's window and replaces the stored apply function,
// so a burst yields exactly one application carrying the latest payload.
package syncer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
)

// DefaultWindow bounds cache update frequency under event storms.
const DefaultWindow = 1 * time.Second

type entry struct {
	timer clockwork.Timer
	apply func()
	seq   uint64
}

// Synchronizer schedules debounced apply functions keyed by logical cache key.
type Synchronizer struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	pending map[string]*entry
	stopped bool
}

// New creates a Synchronizer with the given debounce window. A window of 0
// uses DefaultWindow.
func New(window time.Duration, clock clockwork.Clock) *Synchronizer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Synchronizer{
		clock:   clock,
		window:  window,
		pending: make(map[string]*entry),
	}
}

// Schedule arms (or re-arms) the debounce window for key. The apply function
// replaces any previously stored one for the key; when the window elapses it
// runs exactly once and the entry is cleared.
func (s *Synchronizer) Schedule(key string, apply func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if e, ok := s.pending[key]; ok {
		// Re-arm with a fresh timer and a bumped sequence so a callback from
		// the superseded deadline, already in flight, cannot apply early.
		e.apply = apply
		e.seq++
		seq := e.seq
		e.timer.Stop()
		e.timer = s.clock.AfterFunc(s.window, func() { s.fire(key, seq) })
		metrics.SyncCoalescedTotal.Inc()
		return
	}

	e := &entry{apply: apply, seq: 1}
	s.pending[key] = e
	e.timer = s.clock.AfterFunc(s.window, func() { s.fire(key, 1) })
}

func (s *Synchronizer) fire(key string, seq uint64) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok || e.seq != seq {
		s.mu.Unlock()
		return
	}
	apply := e.apply
	delete(s.pending, key)
	s.mu.Unlock()

	metrics.SyncAppliedTotal.WithLabelValues(key).Inc()
	apply()
}

// Pending reports whether a window is currently armed for key.
func (s *Synchronizer) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Stop cancels all pending windows. Scheduled but unfired apply functions are
// discarded; further Schedule calls are no-ops.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, key)
	}
}
