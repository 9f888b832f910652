package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/castly/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	relayURL = configVar[string]{
		envKey:       "PARTY_RELAY_URL",
		flagKey:      "relay-url",
		defaultValue: "ws://localhost:8080/ws",
	}
	roomId = configVar[string]{
		envKey:       "PARTY_ROOM_ID",
		flagKey:      "room-id",
		defaultValue: "",
	}
	asHost = configVar[bool]{
		envKey:       "PARTY_AS_HOST",
		flagKey:      "as-host",
		defaultValue: false,
	}
	requireApproval = configVar[bool]{
		envKey:       "PARTY_REQUIRE_APPROVAL",
		flagKey:      "require-approval",
		defaultValue: false,
	}
	userId = configVar[string]{
		envKey:       "PARTY_USER_ID",
		flagKey:      "user-id",
		defaultValue: "",
	}
	username = configVar[string]{
		envKey:       "PARTY_USERNAME",
		flagKey:      "username",
		defaultValue: "viewer",
	}
	avatarURL = configVar[string]{
		envKey:       "PARTY_AVATAR_URL",
		flagKey:      "avatar-url",
		defaultValue: "",
	}
	contentId = configVar[string]{
		envKey:       "PARTY_CONTENT_ID",
		flagKey:      "content-id",
		defaultValue: "",
	}
	title = configVar[string]{
		envKey:       "PARTY_TITLE",
		flagKey:      "title",
		defaultValue: "",
	}
	season = configVar[int]{
		envKey:       "PARTY_SEASON",
		flagKey:      "season",
		defaultValue: 0,
	}
	episode = configVar[int]{
		envKey:       "PARTY_EPISODE",
		flagKey:      "episode",
		defaultValue: 0,
	}
	iceServers = configVar[string]{
		envKey:       "PARTY_ICE_SERVERS",
		flagKey:      "ice-servers",
		defaultValue: "stun:stun.l.google.com:19302",
	}
	noMedia = configVar[bool]{
		envKey:       "PARTY_NO_MEDIA",
		flagKey:      "no-media",
		defaultValue: false,
	}
	logLevel = configVar[string]{
		envKey:       "PARTY_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(relayURL.flagKey, relayURL.defaultValue, "Relay websocket URL")
	pflag.String(roomId.flagKey, roomId.defaultValue, "Room id to join")
	pflag.Bool(asHost.flagKey, asHost.defaultValue, "Create the room and host it")
	pflag.Bool(requireApproval.flagKey, requireApproval.defaultValue, "Created room admits guests only on host approval")
	pflag.String(userId.flagKey, userId.defaultValue, "Stable user id")
	pflag.String(username.flagKey, username.defaultValue, "Display name")
	pflag.String(avatarURL.flagKey, avatarURL.defaultValue, "Avatar URL")
	pflag.String(contentId.flagKey, contentId.defaultValue, "Content id")
	pflag.String(title.flagKey, title.defaultValue, "Content title")
	pflag.Int(season.flagKey, season.defaultValue, "Season number")
	pflag.Int(episode.flagKey, episode.defaultValue, "Episode number")
	pflag.String(iceServers.flagKey, iceServers.defaultValue, "Comma-separated STUN/TURN URLs")
	pflag.Bool(noMedia.flagKey, noMedia.defaultValue, "Join receive-only, publishing no media")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(relayURL.flagKey, relayURL.envKey)
	viper.BindEnv(roomId.flagKey, roomId.envKey)
	viper.BindEnv(asHost.flagKey, asHost.envKey)
	viper.BindEnv(requireApproval.flagKey, requireApproval.envKey)
	viper.BindEnv(userId.flagKey, userId.envKey)
	viper.BindEnv(username.flagKey, username.envKey)
	viper.BindEnv(avatarURL.flagKey, avatarURL.envKey)
	viper.BindEnv(contentId.flagKey, contentId.envKey)
	viper.BindEnv(title.flagKey, title.envKey)
	viper.BindEnv(season.flagKey, season.envKey)
	viper.BindEnv(episode.flagKey, episode.envKey)
	viper.BindEnv(iceServers.flagKey, iceServers.envKey)
	viper.BindEnv(noMedia.flagKey, noMedia.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)

	viper.SetDefault(relayURL.flagKey, relayURL.defaultValue)
	viper.SetDefault(roomId.flagKey, roomId.defaultValue)
	viper.SetDefault(asHost.flagKey, asHost.defaultValue)
	viper.SetDefault(requireApproval.flagKey, requireApproval.defaultValue)
	viper.SetDefault(userId.flagKey, userId.defaultValue)
	viper.SetDefault(username.flagKey, username.defaultValue)
	viper.SetDefault(avatarURL.flagKey, avatarURL.defaultValue)
	viper.SetDefault(contentId.flagKey, contentId.defaultValue)
	viper.SetDefault(title.flagKey, title.defaultValue)
	viper.SetDefault(season.flagKey, season.defaultValue)
	viper.SetDefault(episode.flagKey, episode.defaultValue)
	viper.SetDefault(iceServers.flagKey, iceServers.defaultValue)
	viper.SetDefault(noMedia.flagKey, noMedia.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)

	config := &app.AppConfig{
		RelayURL:        viper.GetString(relayURL.flagKey),
		RoomId:          viper.GetString(roomId.flagKey),
		AsHost:          viper.GetBool(asHost.flagKey),
		RequireApproval: viper.GetBool(requireApproval.flagKey),
		UserId:          viper.GetString(userId.flagKey),
		Username:        viper.GetString(username.flagKey),
		AvatarURL:       viper.GetString(avatarURL.flagKey),
		ContentId:       viper.GetString(contentId.flagKey),
		Title:           viper.GetString(title.flagKey),
		Season:          viper.GetInt(season.flagKey),
		Episode:         viper.GetInt(episode.flagKey),
		ICEServers:      strings.Split(viper.GetString(iceServers.flagKey), ","),
		NoMedia:         viper.GetBool(noMedia.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
	}

	if config.UserId == "" {
		config.UserId = uuid.NewString()
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting party client with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
