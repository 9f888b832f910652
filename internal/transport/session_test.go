package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castly/watchparty/internal/protocol"
)

// echoServer accepts one websocket connection, pushes every received
// envelope into received and answers the first one with a sync:seek.
func echoServer(t *testing.T, received chan<- protocol.Envelope) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env

			out, _ := protocol.Encode(protocol.EventSyncSeek, protocol.SyncSeekPayload{CurrentTime: 12})
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSessionRoundTrip(t *testing.T) {
	received := make(chan protocol.Envelope, 1)
	srv := echoServer(t, received)
	defer srv.Close()

	s := NewSession(wsURL(srv), slog.Default())
	events := make(chan any, 1)
	s.OnEvent(func(eventType string, payload any) {
		events <- payload
	})

	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	require.NoError(t, s.Send(protocol.EventRoomLeave, protocol.RoomLeavePayload{}))

	select {
	case env := <-received:
		assert.Equal(t, protocol.EventRoomLeave, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the event")
	}

	select {
	case payload := <-events:
		assert.Equal(t, protocol.SyncSeekPayload{CurrentTime: 12}, payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the reply")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	s := NewSession("ws://unused", slog.Default())
	require.NoError(t, s.Close())

	err := s.Send(protocol.EventRoomLeave, protocol.RoomLeavePayload{})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestDoneClosesOnServerDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	s := NewSession(wsURL(srv), slog.Default())
	require.NoError(t, s.Connect(context.Background()))
	defer s.Close()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not notice the disconnect")
	}
}
