// Package transport owns the one logical realtime connection per subject
// identity: dialing, the identification handshake, keepalives, and jittered
// exponential reconnection after unexpected closure. Inbound envelopes are
// decoded here and handed to the dispatcher; operational failures never
// surface beyond the IsConnected flag and logs.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
)

const (
	// DefaultHeartbeatInterval paces the keepalive envelope while open.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultConnectTimeout bounds a handshake stuck in "connecting".
	DefaultConnectTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second
)

// ErrTornDown is returned by Connect after the connection was intentionally
// torn down (logout or explicit close).
var ErrTornDown = errors.New("transport: connection torn down")

// State is the logical connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// Sink receives every decoded inbound envelope in arrival order.
type Sink interface {
	Dispatch(protocol.Envelope)
}

// Options configure a Manager.
type Options struct {
	// Endpoint is the websocket URL of the realtime gateway.
	Endpoint string
	// SubjectID is the opaque identity bound to the logical connection.
	SubjectID string
	// Token optionally authenticates the identify envelope.
	Token string

	Backoff           Backoff
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	Dialer            *websocket.Dialer
}

// Manager maintains the single resilient logical connection for one identity.
type Manager struct {
	opts  Options
	clock clockwork.Clock
	sink  Sink

	group singleflight.Group

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64
	failures   int
	retryTimer clockwork.Timer

	// writeMu serializes frame writes; gorilla/websocket allows one
	// concurrent writer.
	writeMu sync.Mutex
}

// NewManager validates options and returns a Manager in the Disconnected
// state. Nothing is dialed until Connect.
func NewManager(opts Options, sink Sink, clock clockwork.Clock) (*Manager, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("transport: endpoint is required")
	}
	if opts.SubjectID == "" {
		return nil, fmt.Errorf("transport: subject id is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("transport: sink is required")
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{opts: opts, clock: clock, sink: sink}, nil
}

// Connect opens the socket for this identity. It is idempotent: a healthy
// open socket is reused, and concurrent calls collapse into one dial attempt.
// On failure a reconnect is scheduled regardless of the returned error.
func (m *Manager) Connect(ctx context.Context) error {
	_, err, _ := m.group.Do("connect", func() (any, error) {
		return nil, m.connect(ctx)
	})
	return err
}

func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateTornDown:
		m.mu.Unlock()
		return ErrTornDown
	case StateOpen:
		m.mu.Unlock()
		metrics.ConnectAttemptsTotal.WithLabelValues("reused").Inc()
		return nil
	}

	// A manual connect supersedes any pending retry timer.
	m.cancelRetryLocked()

	// Single-owner discipline: never attach a second socket for the identity.
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateConnecting
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := m.opts.Dialer.DialContext(dialCtx, m.opts.Endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		metrics.ConnectAttemptsTotal.WithLabelValues("error").Inc()
		m.mu.Lock()
		if m.state == StateTornDown {
			m.mu.Unlock()
			return ErrTornDown
		}
		m.state = StateDisconnected
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		slog.Warn("Connection attempt failed", "endpoint", m.opts.Endpoint, "error", err)
		return fmt.Errorf("dial %s: %w", m.opts.Endpoint, err)
	}

	m.mu.Lock()
	if m.state == StateTornDown {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrTornDown
	}
	m.conn = conn
	m.state = StateOpen
	m.failures = 0
	m.mu.Unlock()

	metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
	metrics.ConnectionUp.Set(1)
	slog.Info("Connected", "endpoint", m.opts.Endpoint, "subject_id", m.opts.SubjectID)

	frame, err := protocol.NewIdentify(m.opts.SubjectID, m.opts.Token)
	if err == nil {
		err = m.writeFrame(conn, frame)
	}
	if err != nil {
		m.handleClosed(gen, fmt.Errorf("send identify: %w", err))
		return fmt.Errorf("send identify: %w", err)
	}

	go m.readLoop(conn, gen)
	go m.heartbeatLoop(gen)
	return nil
}

// Reconnect cancels any pending retry timer and connects immediately.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	m.cancelRetryLocked()
	m.mu.Unlock()
	return m.Connect(ctx)
}

// Send encodes and writes an envelope, best effort. Returns false when no
// open socket is available or the write fails; it never returns an error.
func (m *Manager) Send(envelopeType string, payload any) bool {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		metrics.SendFailuresTotal.Inc()
		return false
	}

	frame, err := protocol.Encode(envelopeType, payload)
	if err != nil {
		slog.Warn("Failed to encode outbound envelope", "type", envelopeType, "error", err)
		return false
	}
	if err := m.writeFrame(conn, frame); err != nil {
		metrics.SendFailuresTotal.Inc()
		return false
	}
	return true
}

// Close tears the connection down intentionally. A clean-disconnect envelope
// and close frame are sent best effort; no reconnect follows. The manager is
// terminal afterwards.
func (m *Manager) Close(reason string) {
	m.mu.Lock()
	if m.state == StateTornDown {
		m.mu.Unlock()
		return
	}
	m.cancelRetryLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateTornDown
	m.gen++
	m.mu.Unlock()

	metrics.ConnectionUp.Set(0)
	if conn != nil {
		if frame, err := protocol.NewDisconnect(reason); err == nil {
			_ = m.writeFrame(conn, frame)
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		m.writeMu.Lock()
		_ = conn.SetWriteDeadline(m.clock.Now().Add(m.opts.WriteTimeout))
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		m.writeMu.Unlock()
		_ = conn.Close()
	}
	slog.Info("Connection torn down", "reason", reason)
}

// IsConnected reports whether the socket is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// State returns the current logical connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		env, decodeErr := protocol.Decode(frame)
		if decodeErr != nil {
			// Malformed frames are dropped; the connection stays open.
			metrics.DecodeFailuresTotal.Inc()
			slog.Warn("Dropping malformed frame", "error", decodeErr)
			continue
		}
		m.sink.Dispatch(env)
	}
}

func (m *Manager) heartbeatLoop(gen uint64) {
	ticker := m.clock.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.Chan() {
		m.mu.Lock()
		stale := m.gen != gen || m.state != StateOpen
		m.mu.Unlock()
		if stale {
			return
		}
		if m.Send(protocol.TypeHeartbeat, nil) {
			metrics.HeartbeatsSentTotal.Inc()
		} else {
			// Transient inability to send; the read loop notices real closure.
			slog.Debug("Heartbeat skipped, no open socket")
		}
	}
}

// handleClosed reacts to an unexpected closure of the socket belonging to
// generation gen. Stale generations (already replaced or torn down) are
// ignored.
func (m *Manager) handleClosed(gen uint64, err error) {
	m.mu.Lock()
	if m.gen != gen || m.state == StateTornDown {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = StateDisconnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	metrics.ConnectionUp.Set(0)
	slog.Warn("Connection lost", "error", err)
}

func (m *Manager) scheduleReconnectLocked() {
	delay := m.opts.Backoff.Delay(m.failures)
	m.failures++
	metrics.ReconnectsScheduledTotal.Inc()
	slog.Info("Reconnect scheduled", "attempt", m.failures, "delay", delay)
	m.retryTimer = m.clock.AfterFunc(delay, func() {
		_ = m.Connect(context.Background())
	})
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) writeFrame(conn *websocket.Conn, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(m.clock.Now().Add(m.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
