package simulator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIdleConn returns a client-side connection whose server end never reads.
func newIdleConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	park := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		<-park
		_ = conn.Close()
	}))
	t.Cleanup(func() { close(park); srv.Close() })

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSession_SlowClientEvicted(t *testing.T) {
	// No writer goroutine, so the buffer fills deterministically.
	sess := &session{
		conn:      newIdleConn(t),
		subjectID: "42",
		clock:     clockwork.NewRealClock(),
		sendCh:    make(chan []byte, 1),
		done:      make(chan struct{}),
	}

	sess.queue([]byte(`{"type":"unread_count","data":{"count":1}}`))
	select {
	case <-sess.done:
		t.Fatal("session ended while the buffer still had room")
	default:
	}

	// Buffer full: the laggard is evicted instead of stalling the generator.
	sess.queue([]byte(`{"type":"unread_count","data":{"count":2}}`))
	select {
	case <-sess.done:
	default:
		t.Fatal("slow client was not evicted")
	}

	// Eviction is terminal and idempotent.
	assert.NotPanics(t, func() {
		sess.queue([]byte(`{"type":"unread_count","data":{"count":3}}`))
	})
}
