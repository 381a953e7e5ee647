package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectAttemptsTotal tracks connection attempts by result
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connect_attempts_total",
			Help: "Total connection attempts by result (success/error/reused)",
		},
		[]string{"result"},
	)

	// ConnectionUp tracks whether the logical connection is currently open
	ConnectionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connection_up",
			Help: "1 if the realtime connection is open, 0 otherwise",
		},
	)

	// ReconnectsScheduledTotal tracks reconnect timers armed after unexpected closure
	ReconnectsScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_scheduled_total",
			Help: "Total reconnect attempts scheduled after unexpected closure",
		},
	)

	// HeartbeatsSentTotal tracks keepalive envelopes sent
	HeartbeatsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeats_sent_total",
			Help: "Total heartbeat envelopes sent",
		},
	)

	// SendFailuresTotal tracks sends attempted without an open socket
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_send_failures_total",
			Help: "Total sends dropped because no open socket was available",
		},
	)

	// DecodeFailuresTotal tracks malformed inbound frames dropped
	DecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_decode_failures_total",
			Help: "Total malformed inbound frames logged and dropped",
		},
	)
)

// Dispatch Metrics
var (
	// EnvelopesDispatchedTotal tracks envelopes fanned out by type
	EnvelopesDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_envelopes_dispatched_total",
			Help: "Total envelopes fanned out to subscribers by envelope type",
		},
		[]string{"type"},
	)

	// HandlerPanicsTotal tracks subscriber panics recovered during dispatch
	HandlerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_handler_panics_total",
			Help: "Total subscriber panics recovered during dispatch",
		},
	)

	// SubscribersCurrent tracks registered subscribers
	SubscribersCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscribers_current",
			Help: "Current number of registered subscribers",
		},
	)
)

// Cache Synchronizer Metrics
var (
	// SyncCoalescedTotal tracks schedule calls absorbed into a pending window
	SyncCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_sync_coalesced_total",
			Help: "Total cache updates coalesced into an already pending debounce window",
		},
	)

	// SyncAppliedTotal tracks debounce windows that fired by cache key
	SyncAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_sync_applied_total",
			Help: "Total debounced cache updates applied by key",
		},
		[]string{"key"},
	)
)

// Notification Metrics
var (
	// NotificationsCreatedTotal tracks new notification records by category
	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_created_total",
			Help: "Total notification records created by category",
		},
		[]string{"category"},
	)

	// NotificationsDedupedTotal tracks notifications dropped by recent-key suppression
	NotificationsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_notifications_deduped_total",
			Help: "Total notifications dropped by recent-key suppression",
		},
	)

	// NotificationsGroupedTotal tracks notifications merged into an existing record
	NotificationsGroupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_notifications_grouped_total",
			Help: "Total notifications merged into an existing record by similarity grouping",
		},
	)

	// NotificationsEvictedTotal tracks records evicted at capacity
	NotificationsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_notifications_evicted_total",
			Help: "Total notification records evicted at list capacity",
		},
	)

	// StorageFailuresTotal tracks durable storage read/write failures
	StorageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_storage_failures_total",
			Help: "Total durable storage failures by operation (load/save)",
		},
		[]string{"operation"},
	)
)

// Simulator Metrics
var (
	// SimClientsCurrent tracks connected simulator clients
	SimClientsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simserver_clients_current",
			Help: "Current number of clients connected to the event simulator",
		},
	)

	// SimEventsGeneratedTotal tracks synthetic events pushed by type
	SimEventsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simserver_events_generated_total",
			Help: "Total synthetic events pushed to clients by envelope type",
		},
		[]string{"type"},
	)

	// SimSlowClientsEvictedTotal tracks clients dropped for not draining their send buffer
	SimSlowClientsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simserver_slow_clients_evicted_total",
			Help: "Total clients evicted because their send buffer stayed full",
		},
	)
)
