package app

import (
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/discord/dispatch"
	"github.com/small-frappuccino/guildsetup/pkg/discord/roles"
	"github.com/small-frappuccino/guildsetup/pkg/discord/session"
	"github.com/small-frappuccino/guildsetup/pkg/discord/setup"
	"github.com/small-frappuccino/guildsetup/pkg/discord/voice"
	"github.com/small-frappuccino/guildsetup/pkg/files"
	"github.com/small-frappuccino/guildsetup/pkg/log"
	"github.com/small-frappuccino/guildsetup/pkg/storage"
	"github.com/small-frappuccino/guildsetup/pkg/util"
)

// Run bootstraps the bot and blocks until shutdown. appName affects
// config/log paths; tokenEnv is the environment variable holding the bot
// token. The tokenEnv is read from the process environment first; if empty,
// a fallback $HOME/.local/bin/.env file is loaded and the variable
// re-checked.
func Run(appName, tokenEnv string) error {
	started := time.Now()

	// App name first (affects paths)
	util.SetAppName(appName)

	// Load env (with $HOME/.local/bin fallback)
	token, loadErr := util.LoadEnvWithLocalBinFallback(tokenEnv)

	// Logger first so subsequent steps can log meaningfully
	if err := log.Setup(util.LogDirPath()); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.Close()

	if loadErr != nil {
		log.Application().Warn(fmt.Sprintf("Warning: %v", loadErr))
	}
	if token == "" {
		return fmt.Errorf("%s not set in environment or .env file", tokenEnv)
	}

	if err := util.EnsureAppDirs(); err != nil {
		return fmt.Errorf("create app directories: %w", err)
	}

	log.Application().Info(fmt.Sprintf("Starting %s...", appName))

	// Discord session
	discordSession, err := session.NewDiscordSession(token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	if discordSession.State == nil || discordSession.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	log.Discord().Info("Authenticated",
		"username", discordSession.State.User.Username,
		"userID", discordSession.State.User.ID)

	// Audit store (support GUILDSETUP_AUDIT_DB_PATH override)
	dbPath := util.AuditDBPath()
	if v := os.Getenv("GUILDSETUP_AUDIT_DB_PATH"); v != "" {
		dbPath = v
	}
	audit := storage.NewStore(dbPath)
	if err := audit.Init(); err != nil {
		return fmt.Errorf("initialize audit store: %w", err)
	}
	defer audit.Close()

	// Audit retention (every 6 hours, 90 day retention)
	pruneStop := storage.SchedulePeriodicPrune(audit, 6*time.Hour, 90*24*time.Hour)
	defer close(pruneStop)

	// Role registry
	registry := files.NewRoleStore(util.RoleConfigDirPath())

	// Ephemeral channel lifecycle
	voiceCfg := voice.DefaultConfig()
	if d := envDuration("GUILDSETUP_JOIN_GRACE"); d > 0 {
		voiceCfg.JoinGrace = d
	}
	if d := envDuration("GUILDSETUP_EMPTY_GRACE"); d > 0 {
		voiceCfg.EmptyGrace = d
	}
	channels := voice.NewManager(
		discordSession,
		voice.SessionOccupancy(discordSession),
		voice.SessionPresence(discordSession),
		voiceCfg,
	)
	channels.SetDeleteHook(func(guildID, channelID, name string) {
		audit.RecordBestEffort(storage.Event{
			GuildID: guildID,
			Action:  storage.ActionChannelDeleted,
			Subject: channelID,
			Detail:  name,
		})
	})

	// Menu renderer (GUILDSETUP_MENU_MODE=reaction selects the legacy UI)
	var renderer setup.MenuRenderer
	var legacy *setup.ReactionMenu
	if os.Getenv("GUILDSETUP_MENU_MODE") == "reaction" {
		legacy = setup.NewReactionMenu(discordSession)
		renderer = legacy
		log.Application().Info("Using legacy reaction menus")
	} else {
		renderer = setup.NewButtonMenu(discordSession)
	}

	// Dispatcher and gateway handlers
	dispatcher := dispatch.New(discordSession, registry, roles.NewToggler(discordSession), channels, renderer, legacy, audit)
	dispatcher.SetSelfID(discordSession.State.User.ID)

	discordSession.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		dispatcher.HandleMessageCreate(m)
	})
	discordSession.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		dispatcher.HandleInteractionCreate(i)
	})
	discordSession.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		dispatcher.HandleReactionAdd(r)
	})
	discordSession.AddHandler(func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		dispatcher.HandleVoiceStateUpdate(v)
	})

	log.Application().Info(fmt.Sprintf("%s started in %s", appName, time.Since(started).Round(time.Millisecond)))

	util.WaitForInterruptWithCallback(func() {
		log.Application().Info("Shutting down...")
		if err := discordSession.Close(); err != nil {
			log.Discord().Warn("Error closing Discord session", "err", err)
		}
	})
	return nil
}

func envDuration(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Application().Warn(fmt.Sprintf("Invalid %s=%q: %v; using default", name, v, err))
		return 0
	}
	return d
}
