package simulator

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Znerken/Omerta-RPG-sub001/internal/metrics"
	"github.com/Znerken/Omerta-RPG-sub001/internal/protocol"
)

const (
	writeDeadline     = 5 * time.Second
	messageBufferSize = 16
)

// session is one connected client: a single writer goroutine draining sendCh,
// a reader answering heartbeats, and a paced synthetic event generator.
type session struct {
	conn      *websocket.Conn
	subjectID string
	clock     clockwork.Clock

	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rng     *rand.Rand
	balance int64
}

func newSession(conn *websocket.Conn, subjectID string, clock clockwork.Clock) *session {
	s := &session{
		conn:      conn,
		subjectID: subjectID,
		clock:     clock,
		sendCh:    make(chan []byte, messageBufferSize),
		done:      make(chan struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		balance:   1000,
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case msg, ok := <-s.sendCh:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// queue hands the frame to the writer goroutine. A client too slow to drain
// its buffer is evicted rather than allowed to block the generator.
func (s *session) queue(frame []byte) {
	select {
	case s.sendCh <- frame:
	default:
		slog.Warn("Evicting slow client", "subject_id", s.subjectID)
		metrics.SimSlowClientsEvictedTotal.Inc()
		s.stop()
	}
}

func (s *session) push(envelopeType string, payload any) {
	frame, err := protocol.Encode(envelopeType, payload)
	if err != nil {
		slog.Error("Failed to encode simulated event", "type", envelopeType, "error", err)
		return
	}
	s.queue(frame)
	metrics.SimEventsGeneratedTotal.WithLabelValues(envelopeType).Inc()
}

// readLoop answers heartbeats and honors clean disconnects. Any read error
// ends the session.
func (s *session) readLoop() {
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.stop()
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			slog.Warn("Dropping malformed client frame", "subject_id", s.subjectID, "error", err)
			continue
		}
		switch env.Type {
		case protocol.TypeHeartbeat:
			s.push(protocol.TypePong, nil)
		case protocol.TypeDisconnect:
			slog.Info("Client disconnected cleanly", "subject_id", s.subjectID)
			s.stop()
			return
		default:
			slog.Debug("Ignoring client frame", "subject_id", s.subjectID, "type", env.Type)
		}
	}
}

// randomEvent pushes one synthetic event from the recognized families.
func (s *session) randomEvent() {
	switch s.rng.Intn(5) {
	case 0:
		amount := int64(s.rng.Intn(500) + 10)
		s.balance += amount
		s.push(protocol.TypeCashTransaction, protocol.CashTransaction{Amount: amount, NewBalance: s.balance})
	case 1:
		s.push(protocol.TypeExperienceGain, protocol.ExperienceGain{
			Amount:        int64(s.rng.Intn(50) + 1),
			NewExperience: int64(s.rng.Intn(10000)),
		})
	case 2:
		friends := []string{"sonny", "vito", "tom", "carlo"}
		s.push(protocol.TypeFriendStatus, protocol.FriendStatus{
			Friend: friends[s.rng.Intn(len(friends))],
			Online: s.rng.Intn(2) == 0,
		})
	case 3:
		s.push(protocol.TypeChatMessage, protocol.ChatMessage{
			From: "vito",
			Text: "the family needs you",
		})
	default:
		s.push(protocol.TypeUnreadCount, protocol.UnreadCount{Count: s.rng.Intn(10)})
	}
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	s.wg.Wait()
}
