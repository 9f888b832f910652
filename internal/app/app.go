// Package app wires a headless watch-party participant: one transport
// session, one room's controllers, and their teardown.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/castly/watchparty/internal/media"
	"github.com/castly/watchparty/internal/membership"
	"github.com/castly/watchparty/internal/mesh"
	"github.com/castly/watchparty/internal/playback"
	"github.com/castly/watchparty/internal/protocol"
	"github.com/castly/watchparty/internal/transport"
	"github.com/castly/watchparty/pkg/ctxlogger"
	"github.com/castly/watchparty/pkg/eventbus"
	"github.com/castly/watchparty/pkg/validator"
)

type AppConfig struct {
	RelayURL        string   `json:"relay_url"`
	RoomId          string   `json:"room_id"`
	AsHost          bool     `json:"as_host"`
	RequireApproval bool     `json:"require_approval"`
	UserId          string   `json:"user_id"`
	Username        string   `json:"username"`
	AvatarURL       string   `json:"avatar_url"`
	ContentId       string   `json:"content_id"`
	Title           string   `json:"title"`
	Season          int      `json:"season"`
	Episode         int      `json:"episode"`
	ICEServers      []string `json:"ice_servers"`
	NoMedia         bool     `json:"no_media"`
	LogLevel        string   `json:"log_level"`
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}),
	}
	logger := slog.New(&h)

	profile := protocol.Profile{
		UserId:    cfg.UserId,
		Username:  cfg.Username,
		AvatarURL: cfg.AvatarURL,
	}
	if validationErrors, ok := validator.NewValidator().Validate(profile); !ok {
		return fmt.Errorf("invalid profile: %+v", validationErrors)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	session := transport.NewSession(cfg.RelayURL, logger)
	if err := session.Connect(runCtx); err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	defer session.Close()

	bus := eventbus.New()
	defer bus.Close()

	memberCtl := membership.NewController(session, bus, profile, logger)
	coordinator := playback.NewCoordinator(session, memberCtl, media.NewClockPlayer(), bus, logger)

	var source media.Source
	if !cfg.NoMedia {
		// a failed device stays receive-only instead of failing the join
		source = media.NewSampleSource()
	}
	meshManager := mesh.NewManager(session, memberCtl, source, bus, &mesh.Config{
		ICEServers: cfg.ICEServers,
	}, logger)
	defer meshManager.Close()

	session.OnEvent(func(eventType string, payload any) {
		dispatch(runCtx, eventType, payload, memberCtl, coordinator, meshManager)
	})

	coordinator.Start(runCtx)
	defer coordinator.Stop()

	terminal := make(chan membership.Terminal, 1)
	bus.Subscribe(membership.TopicTerminal, func(payload any) {
		select {
		case terminal <- payload.(membership.Terminal):
		default:
		}
	})

	var content *protocol.ContentRef
	if cfg.ContentId != "" {
		content = &protocol.ContentRef{
			ContentId: cfg.ContentId,
			Title:     cfg.Title,
			Season:    cfg.Season,
			Episode:   cfg.Episode,
		}
	}
	if err := memberCtl.Join(runCtx, &membership.JoinParams{
		RoomId:          cfg.RoomId,
		AsHost:          cfg.AsHost,
		RequireApproval: cfg.RequireApproval,
		Content:         content,
	}); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-runCtx.Done():
		return runCtx.Err()
	case <-session.Done():
		return fmt.Errorf("relay session ended")
	case t := <-terminal:
		logger.InfoContext(runCtx, "leaving", "phase", t.Phase, "reason", t.Reason)
		return nil
	case <-sig:
		logger.InfoContext(runCtx, "shutting down")
		memberCtl.Leave(runCtx)
		return nil
	}
}

// dispatch fans every relay event out to its owning controller. The set
// of kinds is closed; anything unlisted is dropped by the decoder before
// it gets here.
func dispatch(
	ctx context.Context,
	eventType string,
	payload any,
	memberCtl *membership.Controller,
	coordinator *playback.Coordinator,
	meshManager *mesh.Manager,
) {
	switch eventType {
	case protocol.EventSyncPlay,
		protocol.EventSyncPause,
		protocol.EventSyncSeek,
		protocol.EventSyncSpeed,
		protocol.EventSyncBuffering,
		protocol.EventSyncState,
		protocol.EventSyncReport:
		coordinator.HandleEvent(ctx, eventType, payload)

	case protocol.EventSignal:
		p := payload.(protocol.SignalPayload)
		meshManager.HandleSignal(ctx, p.From, p.Signal, p.Profile)

	case protocol.EventRoomState,
		protocol.EventRoomEnded,
		protocol.EventRoomHostChanged,
		protocol.EventRoomJoinRequest,
		protocol.EventRoomJoinRejected,
		protocol.EventParticipantJoined,
		protocol.EventParticipantLeft,
		protocol.EventMediaStatus,
		protocol.EventHostMuteParticipant,
		protocol.EventHostVideoOffParticipant,
		protocol.EventHostMuteAll,
		protocol.EventHostVideoOffAll,
		protocol.EventHostKick,
		protocol.EventChatMessage:
		memberCtl.HandleEvent(ctx, eventType, payload)
	}
}
