// Package notify aggregates user-facing notifications from realtime events.
// Two suppression layers keep the list quiet under event storms: recent-key
// dedup drops identical arrivals inside a short window, and similarity
// grouping merges same-titled records into one entry with a running count.
// The list is capped, most-recent-first, and persisted on every mutation.
package notify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
	"github.com/Znerken/Omerta-RPG-sub001/internal/storage"
)

const (
	// Capacity caps the notification list; the oldest record is evicted.
	Capacity = 50

	// DefaultDedupWindow drops identical (category, payload signature)
	// arrivals inside this window entirely.
	DefaultDedupWindow = 5 * time.Second

	// DefaultGroupWindow merges same (category, title) records created
	// inside this window into one entry with a running count.
	DefaultGroupWindow = 30 * time.Second

	// signatureLimit truncates the payload signature so oversized payloads
	// cannot bloat dedup keys.
	signatureLimit = 64

	// recentKeyLimit bounds the recent-key suppression cache.
	recentKeyLimit = 256

	storageKey = "notifications"
)

// defaultGroupCategories lists the noisy families subject to similarity
// grouping. Everything else inserts a fresh record per event.
var defaultGroupCategories = map[string]bool{
	protocol.TypeFriendStatus: true,
	protocol.TypeChatMessage:  true,
}

// Store is the durable local storage the aggregator persists into.
type Store interface {
	Save(key string, value any) error
	Load(key string, out any) error
}

type persistedState struct {
	Enabled bool      `json:"notificationsEnabled"`
	Records []*Record `json:"records"`
}

// Options tune the aggregator windows and presentation hook.
type Options struct {
	DedupWindow     time.Duration
	GroupWindow     time.Duration
	GroupCategories map[string]bool
	// OnPopup presents a transient notification. It is only called while the
	// enabled preference is set; records accumulate either way.
	OnPopup func(Record)
}

// Aggregator owns the notification list and its suppression state.
type Aggregator struct {
	mu              sync.Mutex
	clock           clockwork.Clock
	store           Store
	records         []*Record // most-recent-first
	enabled         bool
	recent          *lru.Cache[string, time.Time]
	dedupWindow     time.Duration
	groupWindow     time.Duration
	groupCategories map[string]bool
	onPopup         func(Record)
}

// NewAggregator rehydrates persisted state and returns a ready aggregator.
// Storage failures are logged and fall back to an empty, enabled state;
// notification history is not safety-critical.
func NewAggregator(store Store, clock clockwork.Clock, opts Options) *Aggregator {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.GroupWindow <= 0 {
		opts.GroupWindow = DefaultGroupWindow
	}
	if opts.GroupCategories == nil {
		opts.GroupCategories = defaultGroupCategories
	}

	recent, _ := lru.New[string, time.Time](recentKeyLimit)

	a := &Aggregator{
		clock:           clock,
		store:           store,
		enabled:         true,
		recent:          recent,
		dedupWindow:     opts.DedupWindow,
		groupWindow:     opts.GroupWindow,
		groupCategories: opts.GroupCategories,
		onPopup:         opts.OnPopup,
	}
	a.rehydrate()
	return a
}

func (a *Aggregator) rehydrate() {
	var st persistedState
	err := a.store.Load(storageKey, &st)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		metrics.StorageFailuresTotal.WithLabelValues("load").Inc()
		slog.Warn("Failed to load notification state, starting empty", "error", err)
		return
	}
	a.records = st.Records
	a.enabled = st.Enabled
}

// Notify runs an event through both suppression layers and records it.
// Returns true if the event produced or updated a visible record.
func (a *Aggregator) Notify(category, title, message string, payload any) bool {
	a.mu.Lock()

	now := a.clock.Now()
	key := dedupKey(category, payload)

	// Layer (a): recent-key suppression.
	if last, ok := a.recent.Get(key); ok && now.Sub(last) < a.dedupWindow {
		a.mu.Unlock()
		metrics.NotificationsDedupedTotal.Inc()
		slog.Debug("Notification suppressed by recent-key dedup", "category", category, "key", key)
		return false
	}
	a.recent.Add(key, now)

	// Layer (b): similarity grouping.
	if a.groupCategories[category] {
		if rec := a.findGroupTarget(category, title, now); rec != nil {
			rec.Count++
			rec.CreatedAt = now
			rec.Read = false
			a.moveToFront(rec)
			metrics.NotificationsGroupedTotal.Inc()
			popup := *rec
			a.persistLocked()
			a.mu.Unlock()
			a.present(popup)
			return true
		}
	}

	rec := &Record{
		ID:        uuid.New(),
		Category:  category,
		Title:     title,
		Message:   message,
		Count:     1,
		CreatedAt: now,
		DedupKey:  key,
	}
	a.records = append([]*Record{rec}, a.records...)
	if len(a.records) > Capacity {
		a.records = a.records[:Capacity]
		metrics.NotificationsEvictedTotal.Inc()
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(category).Inc()

	popup := *rec
	a.persistLocked()
	a.mu.Unlock()
	a.present(popup)
	return true
}

func (a *Aggregator) findGroupTarget(category, title string, now time.Time) *Record {
	for _, rec := range a.records {
		if rec.Category == category && rec.Title == title && now.Sub(rec.CreatedAt) <= a.groupWindow {
			return rec
		}
	}
	return nil
}

func (a *Aggregator) moveToFront(target *Record) {
	for i, rec := range a.records {
		if rec == target {
			copy(a.records[1:i+1], a.records[:i])
			a.records[0] = target
			return
		}
	}
}

func (a *Aggregator) present(rec Record) {
	a.mu.Lock()
	enabled := a.enabled
	popup := a.onPopup
	a.mu.Unlock()
	if enabled && popup != nil {
		popup(rec)
	}
}

// Records returns a copy of the list, most recent first.
func (a *Aggregator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	for i, rec := range a.records {
		out[i] = *rec
	}
	return out
}

// UnreadCount returns the number of unread records.
func (a *Aggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	count := 0
	for _, rec := range a.records {
		if !rec.Read {
			count++
		}
	}
	return count
}

// MarkAsRead marks one record read. Returns false if the id is unknown.
func (a *Aggregator) MarkAsRead(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.records {
		if rec.ID == id {
			rec.Read = true
			a.persistLocked()
			return true
		}
	}
	return false
}

// MarkAllAsRead marks every record read.
func (a *Aggregator) MarkAllAsRead() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.records {
		rec.Read = true
	}
	a.persistLocked()
}

// Clear drops all records.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
	a.persistLocked()
}

// SetEnabled flips the popup preference. Records keep accumulating silently
// while disabled.
func (a *Aggregator) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	a.persistLocked()
}

// Enabled reports the popup preference.
func (a *Aggregator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *Aggregator) persistLocked() {
	st := persistedState{Enabled: a.enabled, Records: a.records}
	if err := a.store.Save(storageKey, st); err != nil {
		metrics.StorageFailuresTotal.WithLabelValues("save").Inc()
		slog.Warn("Failed to persist notification state", "error", err)
	}
}

// dedupKey builds the composite suppression key from the category and a
// truncated payload signature.
func dedupKey(category string, payload any) string {
	sig, err := json.Marshal(payload)
	if err != nil {
		sig = []byte("unserializable")
	}
	if len(sig) > signatureLimit {
		sig = sig[:signatureLimit]
	}
	return category + ":" + string(sig)
}
