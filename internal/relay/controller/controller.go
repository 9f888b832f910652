// Package controller exposes the relay over HTTP: a websocket endpoint
// for the signaling contract and a health probe.
package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/castly/watchparty/internal/relay/service"
	"github.com/castly/watchparty/pkg/validator"
)

type iRoomService interface {
	ConnectMember(conn *websocket.Conn, connectionId string) error
	JoinRoom(context.Context, *service.JoinRoomParams) (service.JoinRoomResponse, error)
	ApproveJoin(context.Context, *service.ResolveJoinParams) (service.ResolveJoinResponse, error)
	RejectJoin(context.Context, *service.ResolveJoinParams) (service.ResolveJoinResponse, error)
	Disconnect(context.Context, *websocket.Conn) (service.DisconnectResponse, error)
	Kick(context.Context, *service.KickParams) (service.KickResponse, error)
	TransferHost(context.Context, *service.TransferHostParams) (service.TransferHostResponse, error)
	EndRoom(ctx context.Context, senderConnectionId string) (service.EndRoomResponse, error)
	UpdatePlayback(context.Context, *service.UpdatePlaybackParams) (service.UpdatePlaybackResponse, error)
	RelaySignal(context.Context, *service.RelaySignalParams) (service.RelaySignalResponse, error)
	UpdateMediaStatus(context.Context, *service.UpdateMediaStatusParams) (service.UpdateMediaStatusResponse, error)
	ApplyDirective(context.Context, *service.DirectiveParams) (service.DirectiveResponse, error)
	BroadcastChat(context.Context, *service.BroadcastChatParams) (service.BroadcastChatResponse, error)
	GetHostConn(ctx context.Context, senderConnectionId string) (service.GetHostConnResponse, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	sender      *sender
	logger      *slog.Logger
}

func NewController(roomService iRoomService, logger *slog.Logger) *controller {
	return &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.NewValidator(),
		sender:      newSender(logger),
		logger:      logger,
	}
}

func (c controller) writeToConn(ctx context.Context, conn *websocket.Conn, eventType string, payload any) {
	c.sender.write(ctx, conn, eventType, payload)
}

func (c controller) broadcast(ctx context.Context, conns []*websocket.Conn, eventType string, payload any) {
	for _, conn := range conns {
		c.sender.write(ctx, conn, eventType, payload)
	}
}
