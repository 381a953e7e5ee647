// Package simulator implements a development gateway that accepts realtime
// client connections and streams synthetic game events at a configurable rate.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
	"github.com/Znerken/Omerta-RPG-sub001/internal/version"
)

const identifyTimeout = 10 * time.Second

// Server serves the simulated realtime gateway over HTTP.
type Server struct {
	echo            *echo.Echo
	clock           clockwork.Clock
	eventsPerSecond float64
	upgrader        websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func NewServer(eventsPerSecond float64, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:            e,
		clock:           clock,
		eventsPerSecond: eventsPerSecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}

	e.GET("/ws", s.handleWebSocket)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(port string) error {
	return s.echo.Start(":" + port)
}

// Shutdown stops accepting connections and tears down every active session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	active := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		active = append(active, sess)
	}
	s.mu.Unlock()

	for _, sess := range active {
		sess.stop()
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
	})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrading connection: %w", err)
	}

	// The first frame must identify the client.
	_ = conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(frame)
	if err != nil || env.Type != protocol.TypeIdentify {
		slog.Warn("Rejecting connection without identification", "error", err)
		_ = conn.Close()
		return nil
	}
	var identity protocol.IdentifyPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &identity); err != nil {
			slog.Warn("Rejecting connection with malformed identification", "error", err)
			_ = conn.Close()
			return nil
		}
	}

	sess := newSession(conn, identity.SubjectID, s.clock)
	if !s.track(sess) {
		sess.stop()
		return nil
	}
	slog.Info("Client connected", "subject_id", identity.SubjectID)
	metrics.SimClientsCurrent.Inc()

	go s.runSession(sess)
	return nil
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) runSession(sess *session) {
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		metrics.SimClientsCurrent.Dec()
		slog.Info("Client gone", "subject_id", sess.subjectID)
	}()

	go s.generate(sess)
	sess.readLoop()
}

// generate paces synthetic events until the session ends.
func (s *Server) generate(sess *session) {
	limiter := rate.NewLimiter(rate.Limit(s.eventsPerSecond), 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sess.done
		cancel()
	}()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		sess.randomEvent()
	}
}
