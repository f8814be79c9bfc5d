package setup

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/files"
	"github.com/small-frappuccino/guildsetup/pkg/log"
)

// Menu kinds tracked by the ReactionMenu so the dispatcher can interpret a
// reaction on one of its messages.
const (
	MenuKindSetup = "setup"
	MenuKindRoles = "roles"
	MenuKindVoice = "voice"
)

// setupEmojis maps the legacy menu emojis to the component discriminators
// so both renderers feed the same dispatch table.
var setupEmojis = map[string]string{
	"🔒": IDSetupPhoneVerification,
	"🎮": IDSetupRoleSelection,
	"✉️": IDSetupMessageSender,
	"🔊": IDSetupVoiceChannel,
}

var setupEmojiOrder = []string{"🔒", "🎮", "✉️", "🔊"}

// roleEmojis index the role bindings in stored order. Nine slots; guilds
// with more bindings than that use the button renderer.
var roleEmojis = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}

const voiceEmoji = "🎤"

// SetupActionForEmoji maps a legacy menu reaction to its component
// discriminator.
func SetupActionForEmoji(name string) (string, bool) {
	action, ok := setupEmojis[name]
	return action, ok
}

// RoleIndexForEmoji maps a legacy role reaction to a binding index.
func RoleIndexForEmoji(name string) (int, bool) {
	for i, e := range roleEmojis {
		if e == name {
			return i, true
		}
	}
	return 0, false
}

// VoiceEmoji reports whether the reaction is the legacy create-channel emoji.
func VoiceEmoji(name string) bool {
	return name == voiceEmoji
}

// ReactionMenu renders menus as embeds carrying seed reactions, for guilds
// still on the pre-component UI. It remembers which messages it posted so
// the dispatcher can classify incoming reactions; the table is in-memory
// only, so menus posted before a restart stop responding.
type ReactionMenu struct {
	api ChannelSender

	mu    sync.Mutex
	menus map[string]string
}

// NewReactionMenu creates the legacy emoji renderer.
func NewReactionMenu(api ChannelSender) *ReactionMenu {
	return &ReactionMenu{api: api, menus: make(map[string]string)}
}

// Classify reports which menu kind a message belongs to, if this renderer
// posted it.
func (r *ReactionMenu) Classify(messageID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.menus[messageID]
	return kind, ok
}

func (r *ReactionMenu) track(messageID, kind string) {
	r.mu.Lock()
	r.menus[messageID] = kind
	r.mu.Unlock()
}

func (r *ReactionMenu) seed(channelID, messageID string, emojis []string) {
	for _, e := range emojis {
		if err := r.api.MessageReactionAdd(channelID, messageID, e); err != nil {
			log.Discord().Warn("Failed to seed reaction", "messageID", messageID, "emoji", e, "err", err)
		}
	}
}

func (r *ReactionMenu) PostSetupMenu(channelID string) error {
	msg, err := r.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: "セットアップするシステムを選択してください：\n" +
			"🔒 電話番号認証システム / 🎮 ロール選択システム / ✉️ メッセージ送信システム / 🔊 ボイスチャンネル作成システム",
	})
	if err != nil {
		return err
	}
	r.track(msg.ID, MenuKindSetup)
	r.seed(channelID, msg.ID, setupEmojiOrder)
	return nil
}

func (r *ReactionMenu) PostVerificationGuide(channelID string) error {
	embed := verificationEmbed()
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "認証手順",
		Value: VerificationSteps,
	})
	_, err := r.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	return err
}

func (r *ReactionMenu) PostRoleSelection(channelID string, bindings []files.RoleBinding) error {
	if len(bindings) == 0 {
		return ErrNoBindings
	}
	if len(bindings) > len(roleEmojis) {
		bindings = bindings[:len(roleEmojis)]
	}

	embed := roleSelectionEmbed()
	legend := ""
	for i, binding := range bindings {
		legend += roleEmojis[i] + " " + binding.ButtonText + "\n"
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "ロール一覧", Value: legend})

	msg, err := r.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return err
	}
	r.track(msg.ID, MenuKindRoles)
	r.seed(channelID, msg.ID, roleEmojis[:len(bindings)])
	return nil
}

func (r *ReactionMenu) PostVoiceChannelGuide(channelID string) error {
	embed := voiceChannelEmbed()
	embed.Description = "🎤 のリアクションを付けると、一時的なボイスチャンネルを作成できます。"
	msg, err := r.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	if err != nil {
		return err
	}
	r.track(msg.ID, MenuKindVoice)
	r.seed(channelID, msg.ID, []string{voiceEmoji})
	return nil
}
