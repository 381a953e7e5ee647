// Package client assembles the realtime SDK: one connection manager, a
// dispatcher fanning envelopes out to the standard consumers, a debounced
// cache synchronizer, and the notification aggregator.
package client

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/dispatch"
	"github.com/Znerken/Omerta-RPG-sub001/internal/notify"
	"github.com/Znerken/Omerta-RPG-sub001/internal/state"
	"github.com/Znerken/Omerta-RPG-sub001/internal/syncer"
	"github.com/Znerken/Omerta-RPG-sub001/internal/transport"
)

// Options configure a Client.
type Options struct {
	Endpoint  string
	SubjectID string
	Token     string

	// Store persists notification history; typically a storage.FileStore.
	Store notify.Store
	// OnPopup presents transient notifications while the preference is on.
	OnPopup func(notify.Record)

	// DebounceWindow bounds cache update frequency; 0 uses the default.
	DebounceWindow time.Duration
	// Transport tunes the connection; Endpoint/SubjectID/Token above win.
	Transport transport.Options
}

// Client is the realtime layer handed to the rest of the application.
type Client struct {
	manager  *transport.Manager
	registry *dispatch.Registry
	syncer   *syncer.Synchronizer
	cache    *state.Cache
	notifier *notify.Aggregator

	unregister []func()
}

// New wires the SDK together. The connection is not dialed until Start.
func New(opts Options, clock clockwork.Clock) (*Client, error) {
	c := &Client{
		registry: dispatch.NewRegistry(),
		syncer:   syncer.New(opts.DebounceWindow, clock),
		cache:    state.NewCache(clock),
		notifier: notify.NewAggregator(opts.Store, clock, notify.Options{OnPopup: opts.OnPopup}),
	}

	transportOpts := opts.Transport
	transportOpts.Endpoint = opts.Endpoint
	transportOpts.SubjectID = opts.SubjectID
	transportOpts.Token = opts.Token

	manager, err := transport.NewManager(transportOpts, c.registry, clock)
	if err != nil {
		return nil, err
	}
	c.manager = manager
	c.registerConsumers()
	return c, nil
}

// Start opens the connection. Reconnection after failures is automatic.
func (c *Client) Start(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

// Stop tears everything down: the connection (clean disconnect), pending
// debounce windows, and the standard consumers.
func (c *Client) Stop(reason string) {
	c.manager.Close(reason)
	c.syncer.Stop()
	for _, unregister := range c.unregister {
		unregister()
	}
	c.unregister = nil
}

// IsConnected reports the transport state.
func (c *Client) IsConnected() bool { return c.manager.IsConnected() }

// Register subscribes an additional envelope handler alongside the standard
// consumers. The returned function unregisters it.
func (c *Client) Register(handler dispatch.Handler) func() {
	return c.registry.Register(handler)
}

// State returns the cached player state snapshot.
func (c *Client) State() state.Snapshot { return c.cache.Snapshot() }

// Notifications exposes the aggregator for read/clear/preference actions.
func (c *Client) Notifications() *notify.Aggregator { return c.notifier }
