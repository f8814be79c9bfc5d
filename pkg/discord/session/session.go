package session

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/log"
)

// NewDiscordSession creates, configures and opens the gateway session.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord bot token is empty")
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	log.Discord().Info("Connecting to Discord...")
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("failed to connect to Discord: %w", err)
	}
	log.Discord().Info("Connected to Discord")

	return s, nil
}
