// Package wsrouter routes typed JSON messages read from a websocket
// connection. Every message kind is registered explicitly; an unknown kind
// is answered with an error payload instead of being dispatched dynamically.
package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

type WSRouter struct {
	routes      map[string]HandlerFunc[any]
	middlewares []Middleware
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc[any])}
}

func (r *WSRouter) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

// Handle registers a handler for the message type. The raw payload is
// decoded into T before the handler runs; a payload that does not decode
// fails the handler without touching the connection state.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, payload any) error {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", payload)
		}

		var input T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("failed to decode %s payload: %w", messageType, err)
			}
		}

		return handler(ctx, conn, input)
	}
}

// ServeConn reads messages from the connection until a read error occurs,
// dispatching each through the middleware chain to its registered handler.
// Handler errors are reported to the peer and do not end the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, exists := r.routes[msg.Type]
		if !exists {
			conn.WriteJSON(map[string]string{"error": "unknown message type"})
			continue
		}

		for i := len(r.middlewares) - 1; i >= 0; i-- {
			handler = r.middlewares[i](handler)
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if err := handler(msgCtx, conn, json.RawMessage(msg.Payload)); err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
		}
	}
}
