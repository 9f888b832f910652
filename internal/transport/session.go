// Package transport owns the websocket session to the signaling relay.
// One Session is created at login, injected into the per-room controllers,
// and torn down at logout; nothing in the process reaches for an ambient
// global connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/protocol"
)

var ErrSessionClosed = errors.New("session closed")

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
)

// HandlerFunc receives every decoded relay event in the order the relay
// sent it. It runs on the session's single read goroutine, so handlers
// observe per-sender FIFO delivery.
type HandlerFunc func(eventType string, payload any)

type Session struct {
	url    string
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   HandlerFunc

	closeOnce sync.Once
	done      chan struct{}
}

func NewSession(url string, logger *slog.Logger) *Session {
	return &Session{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (s *Session) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	s.conn = conn

	go s.readLoop(ctx)
	go s.pingLoop()

	return nil
}

// OnEvent replaces the event handler. Controllers register a dispatch
// function here before joining a room.
func (s *Session) OnEvent(handler HandlerFunc) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = handler
}

func (s *Session) Send(eventType string, payload any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	env, err := protocol.Encode(eventType, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to write %s: %w", eventType, err)
	}

	return nil
}

// Done is closed when the session ends, either by Close or by a read
// failure on the underlying connection.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.writeMu.Lock()
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.writeMu.Unlock()
			err = s.conn.Close()
		}
	})

	return err
}

func (s *Session) readLoop(ctx context.Context) {
	defer s.Close()

	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.WarnContext(ctx, "relay connection lost", "error", err)
			}
			return
		}

		payload, err := protocol.Decode(env)
		if err != nil {
			// a newer relay may emit kinds this build does not know; drop them
			s.logger.DebugContext(ctx, "dropping undecodable event", "type", env.Type, "error", err)
			continue
		}

		s.handlerMu.RLock()
		handler := s.handler
		s.handlerMu.RUnlock()

		if handler != nil {
			handler(env.Type, payload)
		}
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
