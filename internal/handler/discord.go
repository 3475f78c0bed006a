package handler

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type GuildCreateHandler = func(*discordgo.Session, *discordgo.GuildCreate)
type VoiceStateUpdateHandler = func(*discordgo.Session, *discordgo.VoiceStateUpdate)
type ChannelCreateHandler = func(*discordgo.Session, *discordgo.ChannelCreate)
type ChannelDeleteHandler = func(*discordgo.Session, *discordgo.ChannelDelete)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

// Handlers are registered on the session when set.
type Handlers struct {
	Ready            ReadyHandler
	GuildCreate      GuildCreateHandler
	VoiceStateUpdate VoiceStateUpdateHandler
	ChannelCreate    ChannelCreateHandler
	ChannelDelete    ChannelDeleteHandler
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if handlers.Ready != nil {
		s.AddHandler(handlers.Ready)
	}
	if handlers.GuildCreate != nil {
		s.AddHandler(handlers.GuildCreate)
	}
	if handlers.VoiceStateUpdate != nil {
		s.AddHandler(handlers.VoiceStateUpdate)
	}
	if handlers.ChannelCreate != nil {
		s.AddHandler(handlers.ChannelCreate)
	}
	if handlers.ChannelDelete != nil {
		s.AddHandler(handlers.ChannelDelete)
	}

	return s, nil
}
