package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/castly/watchparty/pkg/ctxlogger"
)

type ctxKey string

const connectionIdKey ctxKey = "connection_id"

func connectionIdFromCtx(ctx context.Context) string {
	connectionId, _ := ctx.Value(connectionIdKey).(string)
	return connectionId
}

func (c controller) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wsRouter := c.newWSRouter()

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := c.upgrader.Upgrade(w, req, nil)
		if err != nil {
			c.logger.ErrorContext(req.Context(), "failed to upgrade connection", "error", err)
			return
		}

		connectionId := uuid.NewString()
		if err := c.roomService.ConnectMember(conn, connectionId); err != nil {
			c.logger.ErrorContext(req.Context(), "failed to register connection", "error", err)
			conn.Close()
			return
		}

		ctx := ctxlogger.AppendCtx(req.Context(), slog.String("connection_id", connectionId))
		ctx = context.WithValue(ctx, connectionIdKey, connectionId)

		c.logger.InfoContext(ctx, "connection established")

		if err := wsRouter.ServeConn(ctx, conn); err != nil {
			c.logger.DebugContext(ctx, "connection closed", "error", err)
		}

		// the read loop is done; treat whatever remains as a disconnect
		resp, err := c.roomService.Disconnect(ctx, conn)
		if err != nil {
			c.logger.DebugContext(ctx, "failed to clean up connection", "error", err)
		} else {
			c.fanOutDeparture(ctx, resp)
		}
		c.sender.forget(conn)

		c.logger.InfoContext(ctx, "connection closed")
	})

	return r
}
