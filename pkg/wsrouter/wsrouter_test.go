package wsrouter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetPayload struct {
	Name string `json:"name"`
}

func TestHandleDecodesPayload(t *testing.T) {
	r := New()

	var got greetPayload
	Handle(r, "greet", func(ctx context.Context, conn *websocket.Conn, payload greetPayload) error {
		got = payload
		return nil
	})

	err := r.routes["greet"](context.Background(), nil, json.RawMessage(`{"name":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
}

func TestHandleEmptyPayload(t *testing.T) {
	r := New()

	called := false
	Handle(r, "ping", func(ctx context.Context, conn *websocket.Conn, payload greetPayload) error {
		called = true
		return nil
	})

	err := r.routes["ping"](context.Background(), nil, json.RawMessage(nil))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	r := New()

	Handle(r, "greet", func(ctx context.Context, conn *websocket.Conn, payload greetPayload) error {
		t.Fatal("handler must not run on a payload that does not decode")
		return nil
	})

	err := r.routes["greet"](context.Background(), nil, json.RawMessage(`{"name":`))
	assert.Error(t, err)
}

func TestMessageTypeFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), messageTypeKey, "greet")
	assert.Equal(t, "greet", GetMessageTypeFromCtx(ctx))
	assert.Empty(t, GetMessageTypeFromCtx(context.Background()))
}
