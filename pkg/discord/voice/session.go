package voice

import (
	"github.com/bwmarrin/discordgo"
)

// SessionOccupancy builds an OccupancyFunc over the gateway state cache.
// Voice states are pushed by the gateway, so the cache reflects live
// membership without extra REST calls.
func SessionOccupancy(s *discordgo.Session) OccupancyFunc {
	return func(guildID, channelID string) (int, bool) {
		if _, err := s.State.Channel(channelID); err != nil {
			return 0, false
		}
		guild, err := s.State.Guild(guildID)
		if err != nil {
			return 0, false
		}
		count := 0
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID == channelID {
				count++
			}
		}
		return count, true
	}
}

// SessionPresence builds a PresenceFunc over the gateway state cache.
func SessionPresence(s *discordgo.Session) PresenceFunc {
	return func(guildID, userID string) (string, bool) {
		guild, err := s.State.Guild(guildID)
		if err != nil {
			return "", false
		}
		for _, vs := range guild.VoiceStates {
			if vs.UserID == userID && vs.ChannelID != "" {
				return vs.ChannelID, true
			}
		}
		return "", false
	}
}
