package controller

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/pkg/ctxlogger"
	"github.com/castly/watchparty/pkg/wsrouter"
)

func (c controller) loggingMiddleware(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
	return func(ctx context.Context, conn *websocket.Conn, payload any) error {
		messageType := wsrouter.GetMessageTypeFromCtx(ctx)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", messageType))

		c.logger.DebugContext(ctx, "handling message")

		if err := next(ctx, conn, payload); err != nil {
			c.logger.DebugContext(ctx, "handler failed", "error", err)
			return err
		}

		return nil
	}
}
