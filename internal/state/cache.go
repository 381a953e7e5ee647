// Package state holds the locally cached player state fed by realtime events.
// Writes arrive through the debounced synchronizer, so readers see a
// bounded-rate, eventually correct view.
package state

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Snapshot is the cached player state at a point in time.
type Snapshot struct {
	Balance     int64
	Experience  int64
	Reputation  int64
	UnreadCount int
	UpdatedAt   time.Time
}

// Cache guards the player state snapshot. Every update stamps UpdatedAt.
type Cache struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock clockwork.Clock
}

func NewCache(clock clockwork.Clock) *Cache {
	return &Cache{clock: clock}
}

// Update applies a mutation to the snapshot under the write lock.
func (c *Cache) Update(mutate func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.snap)
	c.snap.UpdatedAt = c.clock.Now()
}

// Snapshot returns a copy of the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}
