package handler

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Membership is the set of voice channels the bot is connected to, at most
// one per guild.
type Membership interface {
	Join(guildID, channelID string) error
	Leave(guildID string) error
	Channel(guildID string) (string, bool)
}

// Move is what the bot does in response to a voice state change.
type Move struct {
	LeaveGuild  string
	JoinGuild   string
	JoinChannel string
}

// Joinable reports whether the bot may connect to a channel.
type Joinable func(guildID, channelID string) bool

// Follow decides how the bot reacts when userID's voice state goes from
// before to after. Either state may be nil. Leaving is skipped when the user
// moves to a joinable channel in the same guild, since the join moves the
// connection.
func Follow(userID string, before, after *discordgo.VoiceState, joinable Joinable) Move {
	if before != nil && after != nil && before.UserID == after.UserID && before.ChannelID == after.ChannelID {
		return Move{}
	}

	var leaving, joining *discordgo.VoiceState
	if before != nil && before.UserID == userID && before.ChannelID != "" {
		leaving = before
	}
	if after != nil && after.UserID == userID && after.ChannelID != "" && joinable(after.GuildID, after.ChannelID) {
		joining = after
	}

	var move Move
	if leaving != nil && (joining == nil || leaving.GuildID != joining.GuildID) {
		move.LeaveGuild = leaving.GuildID
	}
	if joining != nil {
		move.JoinGuild = joining.GuildID
		move.JoinChannel = joining.ChannelID
	}
	return move
}

// Follower keeps the bot in whatever voice channel the followed user is in.
type Follower struct {
	UserID string
	Voice  Membership
	// Joinable defaults to ChannelJoinable over the event's session.
	Joinable func(s *discordgo.Session, guildID, channelID string) bool
}

func (f *Follower) joinable(s *discordgo.Session) Joinable {
	check := f.Joinable
	if check == nil {
		check = ChannelJoinable
	}
	return func(guildID, channelID string) bool {
		return check(s, guildID, channelID)
	}
}

func (f *Follower) apply(move Move) {
	if move.LeaveGuild != "" {
		if err := f.Voice.Leave(move.LeaveGuild); err != nil {
			slog.Error("failed to leave voice channel", "guildID", move.LeaveGuild, "error", err)
		}
	}
	if move.JoinGuild != "" {
		if err := f.Voice.Join(move.JoinGuild, move.JoinChannel); err != nil {
			slog.Error("failed to join voice channel", "guildID", move.JoinGuild, "channelID", move.JoinChannel, "error", err)
		}
	}
}

// Handlers returns the session handlers that drive the follower.
func (f *Follower) Handlers() Handlers {
	return Handlers{
		Ready:            ReadyLog,
		GuildCreate:      f.OnGuildCreate,
		VoiceStateUpdate: f.OnVoiceStateUpdate,
		ChannelCreate:    f.OnChannelCreate,
		ChannelDelete:    f.OnChannelDelete,
	}
}

// OnGuildCreate joins the followed user if they are already in a channel when
// the guild becomes available.
func (f *Follower) OnGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	for _, vs := range g.VoiceStates {
		if vs.UserID != f.UserID || vs.ChannelID == "" {
			continue
		}
		// Guild voice states omit the guild ID.
		state := *vs
		state.GuildID = g.ID
		f.apply(Follow(f.UserID, nil, &state, f.joinable(s)))
	}
}

func (f *Follower) OnVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	f.apply(Follow(f.UserID, v.BeforeUpdate, v.VoiceState, f.joinable(s)))
}

func (f *Follower) OnChannelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if !isVoiceChannel(c.Channel) || s.State == nil {
		return
	}

	vs, err := s.State.VoiceState(c.GuildID, f.UserID)
	if err != nil || vs.ChannelID != c.ID {
		return
	}
	f.apply(Follow(f.UserID, nil, vs, f.joinable(s)))
}

// OnChannelDelete leaves the guild when the channel the bot is in goes away.
func (f *Follower) OnChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if !isVoiceChannel(c.Channel) {
		return
	}
	if current, ok := f.Voice.Channel(c.GuildID); ok && current == c.ID {
		f.apply(Move{LeaveGuild: c.GuildID})
	}
}

func isVoiceChannel(c *discordgo.Channel) bool {
	return c != nil && (c.Type == discordgo.ChannelTypeGuildVoice || c.Type == discordgo.ChannelTypeGuildStageVoice)
}

// ChannelJoinable reports whether the bot can connect to channelID according
// to the session state: it must be a voice channel the bot has the connect
// permission on, and not full unless the bot can move members.
func ChannelJoinable(s *discordgo.Session, guildID, channelID string) bool {
	if s.State == nil || s.State.User == nil {
		return false
	}

	channel, err := s.State.Channel(channelID)
	if err != nil || !isVoiceChannel(channel) {
		return false
	}

	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		slog.Debug("unable to compute channel permissions", "channelID", channelID, "error", err)
		return false
	}
	if perms&discordgo.PermissionVoiceConnect == 0 {
		return false
	}

	if channel.UserLimit > 0 && perms&discordgo.PermissionVoiceMoveMembers == 0 {
		guild, err := s.State.Guild(guildID)
		if err != nil {
			return false
		}
		members := 0
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID == channelID {
				members++
			}
		}
		if members >= channel.UserLimit {
			return false
		}
	}
	return true
}
