package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
)

// sender serializes writes per connection; handlers running for different
// clients fan out to the same target concurrently.
type sender struct {
	logger *slog.Logger
	locks  sync.Map // *websocket.Conn -> *sync.Mutex
}

func newSender(logger *slog.Logger) *sender {
	return &sender{logger: logger}
}

func (s *sender) write(ctx context.Context, conn *websocket.Conn, eventType string, payload any) {
	env, err := protocol.Encode(eventType, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode event", "type", eventType, "error", err)
		return
	}

	muAny, _ := s.locks.LoadOrStore(conn, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(env); err != nil {
		// one failed write only affects this recipient; heartbeats repair
		// missed sync state
		s.logger.DebugContext(ctx, "failed to write event", "type", eventType, "error", err)
	}
}

func (s *sender) closeWithCode(conn *websocket.Conn, code int) {
	muAny, _ := s.locks.LoadOrStore(conn, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()

	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(5*time.Second))
}

func (s *sender) forget(conn *websocket.Conn) {
	s.locks.Delete(conn)
}
