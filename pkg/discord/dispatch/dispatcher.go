package dispatch

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/discord/roles"
	"github.com/small-frappuccino/guildsetup/pkg/discord/setup"
	"github.com/small-frappuccino/guildsetup/pkg/discord/voice"
	"github.com/small-frappuccino/guildsetup/pkg/files"
	"github.com/small-frappuccino/guildsetup/pkg/log"
	"github.com/small-frappuccino/guildsetup/pkg/storage"
)

const (
	cmdSetup     = "!setup"
	cmdSetupRole = "!setup role"
)

// SessionAPI is the slice of the Discord session the dispatcher needs.
// *discordgo.Session satisfies it.
type SessionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// BindingStore is the registry surface the dispatcher consumes.
// *files.RoleStore satisfies it.
type BindingStore interface {
	Upsert(guildID, label, roleID string) error
	ListBindings(guildID string) ([]files.RoleBinding, error)
}

// RoleToggler flips and resolves guild roles. *roles.Toggler satisfies it.
type RoleToggler interface {
	Toggle(guildID, userID, roleID string) (roles.ToggleResult, error)
	Resolve(guildID, roleID string) (*discordgo.Role, error)
	RoleName(guildID, roleID string) string
}

// ChannelManager provisions and tracks ephemeral voice channels.
// *voice.Manager satisfies it.
type ChannelManager interface {
	Create(guildID, categoryName, name, requesterID string) (*discordgo.Channel, error)
	NoteOccupancyChange(channelID string)
}

// Dispatcher routes every inbound gateway event to exactly one handler.
// Unrecognized discriminators are ignored silently; admin-only actions
// invoked by non-admins are silently not routed.
type Dispatcher struct {
	api      SessionAPI
	registry BindingStore
	toggler  RoleToggler
	voices   ChannelManager
	menu     setup.MenuRenderer
	legacy   *setup.ReactionMenu
	audit    *storage.Store
	selfID   string
}

// New creates a dispatcher. legacy may be nil when the guild runs the
// component UI only; audit may be nil to disable the audit trail.
func New(api SessionAPI, registry BindingStore, toggler RoleToggler, voices ChannelManager, menu setup.MenuRenderer, legacy *setup.ReactionMenu, audit *storage.Store) *Dispatcher {
	return &Dispatcher{
		api:      api,
		registry: registry,
		toggler:  toggler,
		voices:   voices,
		menu:     menu,
		legacy:   legacy,
		audit:    audit,
	}
}

// SetSelfID records the bot's own user ID so its seed reactions and
// messages are never routed back into the dispatch table.
func (d *Dispatcher) SetSelfID(id string) {
	d.selfID = id
}

func (d *Dispatcher) isAdminUser(userID, channelID string) bool {
	perms, err := d.api.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// HandleMessageCreate routes the !setup text commands.
func (d *Dispatcher) HandleMessageCreate(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	switch {
	case m.Content == cmdSetup:
		if !d.isAdminUser(m.Author.ID, m.ChannelID) {
			return
		}
		if err := d.menu.PostSetupMenu(m.ChannelID); err != nil {
			log.Discord().Error("Failed to post setup menu", "guildID", m.GuildID, "err", err)
		}

	case strings.HasPrefix(m.Content, cmdSetupRole):
		if !d.isAdminUser(m.Author.ID, m.ChannelID) {
			return
		}
		d.handleSetupRole(m)
	}
}

func (d *Dispatcher) handleSetupRole(m *discordgo.MessageCreate) {
	args := strings.Fields(m.Content)[2:]
	if len(args) < 2 {
		d.reply(m, "使用方法: !setup role <ボタンテキスト> <ロールID>")
		return
	}
	label, roleID := args[0], args[1]

	role, err := d.toggler.Resolve(m.GuildID, roleID)
	if err != nil {
		if errors.Is(err, roles.ErrRoleNotFound) {
			d.reply(m, "指定されたロールが見つかりません。正しいロールIDを指定してください。")
		} else {
			log.Discord().Error("Failed to resolve role", "guildID", m.GuildID, "roleID", roleID, "err", err)
			d.reply(m, "ロールの確認中にエラーが発生しました。")
		}
		return
	}

	if err := d.registry.Upsert(m.GuildID, label, roleID); err != nil {
		log.Storage().Error("Failed to save role binding", "guildID", m.GuildID, "err", err)
		d.reply(m, "設定の保存中にエラーが発生しました。")
		return
	}
	d.audit.RecordBestEffort(storage.Event{
		GuildID: m.GuildID, Actor: m.Author.ID,
		Action: storage.ActionBindingUpserted, Subject: roleID, Detail: label,
	})
	d.reply(m, "ボタン「"+label+"」にロール「"+role.Name+"」を設定しました。")
}

// HandleInteractionCreate routes component clicks and modal submissions.
func (d *Dispatcher) HandleInteractionCreate(i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		d.handleComponent(i)
	case discordgo.InteractionModalSubmit:
		d.handleModal(i)
	}
}

func (d *Dispatcher) handleComponent(i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	switch {
	case strings.HasPrefix(customID, "setup_"):
		if !isAdminInteraction(i) {
			return
		}
		d.handleSetupAction(i, customID)

	case customID == setup.IDVerifyPhone:
		d.replyEphemeral(i.Interaction, setup.VerificationSteps)

	case strings.HasPrefix(customID, setup.RoleIDPrefix):
		roleID := strings.TrimPrefix(customID, setup.RoleIDPrefix)
		d.toggleAndReport(i.GuildID, interactionUserID(i), roleID, func(content string) {
			d.replyEphemeral(i.Interaction, content)
		})

	case customID == setup.IDCreateVoiceChannel:
		d.respondModal(i.Interaction, setup.VoiceChannelModal())
	}
}

func (d *Dispatcher) handleSetupAction(i *discordgo.InteractionCreate, customID string) {
	switch customID {
	case setup.IDSetupPhoneVerification:
		if err := d.menu.PostVerificationGuide(i.ChannelID); err != nil {
			log.Discord().Error("Failed to post verification guide", "guildID", i.GuildID, "err", err)
			d.replyEphemeral(i.Interaction, "セットアップ中にエラーが発生しました。")
			return
		}
		d.replyEphemeral(i.Interaction, "電話番号認証システムをセットアップしました。")

	case setup.IDSetupRoleSelection:
		bindings, err := d.registry.ListBindings(i.GuildID)
		if err != nil {
			log.Storage().Error("Failed to load role bindings", "guildID", i.GuildID, "err", err)
			bindings = nil
		}
		if err := d.menu.PostRoleSelection(i.ChannelID, bindings); err != nil {
			if errors.Is(err, setup.ErrNoBindings) {
				d.replyEphemeral(i.Interaction, "ロールが設定されていません。`!setup role <ボタンテキスト> <ロールID>`でロールを設定してください。")
			} else {
				log.Discord().Error("Failed to post role selection", "guildID", i.GuildID, "err", err)
				d.replyEphemeral(i.Interaction, "セットアップ中にエラーが発生しました。")
			}
			return
		}
		d.replyEphemeral(i.Interaction, "ロール選択システムをセットアップしました。")

	case setup.IDSetupMessageSender:
		d.respondModal(i.Interaction, setup.BroadcastModal())

	case setup.IDSetupVoiceChannel:
		if err := d.menu.PostVoiceChannelGuide(i.ChannelID); err != nil {
			log.Discord().Error("Failed to post voice channel guide", "guildID", i.GuildID, "err", err)
			d.replyEphemeral(i.Interaction, "セットアップ中にエラーが発生しました。")
			return
		}
		d.replyEphemeral(i.Interaction, "ボイスチャンネル作成システムをセットアップしました。")
	}
}

func (d *Dispatcher) handleModal(i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()

	switch data.CustomID {
	case setup.ModalVoiceChannel:
		name := modalField(data, setup.FieldChannelName)
		if name == "" {
			return
		}
		d.createVoiceChannel(i, name)

	case setup.ModalMessageSender:
		content := modalField(data, setup.FieldMessageContent)
		if content == "" {
			return
		}
		if _, err := d.api.ChannelMessageSend(i.ChannelID, content); err != nil {
			log.Discord().Error("Failed to broadcast message", "guildID", i.GuildID, "err", err)
			d.replyEphemeral(i.Interaction, "メッセージの送信中にエラーが発生しました。")
			return
		}
		d.audit.RecordBestEffort(storage.Event{
			GuildID: i.GuildID, Actor: interactionUserID(i),
			Action: storage.ActionBroadcastSent, Subject: i.ChannelID,
		})
		d.replyEphemeral(i.Interaction, "メッセージを送信しました。")
	}
}

func (d *Dispatcher) createVoiceChannel(i *discordgo.InteractionCreate, name string) {
	userID := interactionUserID(i)
	ch, err := d.voices.Create(i.GuildID, d.parentCategoryName(i.ChannelID), name, userID)
	if err != nil {
		switch {
		case errors.Is(err, voice.ErrThrottled):
			d.replyEphemeral(i.Interaction, "チャンネルの作成が連続しています。しばらく待ってから再度お試しください。")
		default:
			log.Discord().Error("Failed to create voice channel", "guildID", i.GuildID, "err", err)
			d.replyEphemeral(i.Interaction, "ボイスチャンネルの作成中にエラーが発生しました。権限を確認してください。")
		}
		return
	}
	d.audit.RecordBestEffort(storage.Event{
		GuildID: i.GuildID, Actor: userID,
		Action: storage.ActionChannelCreated, Subject: ch.ID, Detail: name,
	})
	d.replyEphemeral(i.Interaction, "✅ ボイスチャンネル「"+name+"」を作成しました。10秒以内に参加してください。")
}

// HandleReactionAdd routes reactions on legacy menu messages.
func (d *Dispatcher) HandleReactionAdd(r *discordgo.MessageReactionAdd) {
	if d.legacy == nil || r.UserID == d.selfID {
		return
	}
	kind, ok := d.legacy.Classify(r.MessageID)
	if !ok {
		return
	}
	emoji := r.Emoji.Name

	switch kind {
	case setup.MenuKindSetup:
		action, ok := setup.SetupActionForEmoji(emoji)
		if !ok || !d.isAdminUser(r.UserID, r.ChannelID) {
			return
		}
		d.handleLegacySetupAction(r, action)

	case setup.MenuKindRoles:
		idx, ok := setup.RoleIndexForEmoji(emoji)
		if !ok {
			return
		}
		bindings, err := d.registry.ListBindings(r.GuildID)
		if err != nil || idx >= len(bindings) {
			return
		}
		d.toggleAndReport(r.GuildID, r.UserID, bindings[idx].RoleID, func(content string) {
			d.dmUser(r.UserID, content)
		})

	case setup.MenuKindVoice:
		if !setup.VoiceEmoji(emoji) {
			return
		}
		name := "ボイスチャンネル"
		if r.Member != nil && r.Member.User != nil {
			name = r.Member.User.Username + "の部屋"
		}
		ch, err := d.voices.Create(r.GuildID, d.parentCategoryName(r.ChannelID), name, r.UserID)
		if err != nil {
			if errors.Is(err, voice.ErrThrottled) {
				d.dmUser(r.UserID, "チャンネルの作成が連続しています。しばらく待ってから再度お試しください。")
			} else {
				log.Discord().Error("Failed to create voice channel", "guildID", r.GuildID, "err", err)
			}
			return
		}
		d.audit.RecordBestEffort(storage.Event{
			GuildID: r.GuildID, Actor: r.UserID,
			Action: storage.ActionChannelCreated, Subject: ch.ID, Detail: name,
		})
		d.dmUser(r.UserID, "✅ ボイスチャンネル「"+name+"」を作成しました。10秒以内に参加してください。")
	}
}

func (d *Dispatcher) handleLegacySetupAction(r *discordgo.MessageReactionAdd, action string) {
	var err error
	switch action {
	case setup.IDSetupPhoneVerification:
		err = d.menu.PostVerificationGuide(r.ChannelID)
	case setup.IDSetupRoleSelection:
		var bindings []files.RoleBinding
		bindings, err = d.registry.ListBindings(r.GuildID)
		if err == nil {
			err = d.menu.PostRoleSelection(r.ChannelID, bindings)
		}
		if errors.Is(err, setup.ErrNoBindings) {
			d.dmUser(r.UserID, "ロールが設定されていません。`!setup role <ボタンテキスト> <ロールID>`でロールを設定してください。")
			return
		}
	case setup.IDSetupMessageSender:
		// Modals need a component interaction. Reaction mode cannot
		// collect the text, so point the admin at the broadcast flow.
		d.dmUser(r.UserID, "メッセージ送信システムはボタンUIからのみ利用できます。")
		return
	case setup.IDSetupVoiceChannel:
		err = d.menu.PostVoiceChannelGuide(r.ChannelID)
	}
	if err != nil {
		log.Discord().Error("Failed to post legacy menu", "guildID", r.GuildID, "action", action, "err", err)
	}
}

// HandleVoiceStateUpdate feeds occupancy transitions to the channel manager.
func (d *Dispatcher) HandleVoiceStateUpdate(v *discordgo.VoiceStateUpdate) {
	if v.BeforeUpdate != nil && v.BeforeUpdate.ChannelID != "" {
		d.voices.NoteOccupancyChange(v.BeforeUpdate.ChannelID)
	}
	if v.ChannelID != "" && (v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID != v.ChannelID) {
		d.voices.NoteOccupancyChange(v.ChannelID)
	}
}

func (d *Dispatcher) toggleAndReport(guildID, userID, roleID string, respond func(string)) {
	result, err := d.toggler.Toggle(guildID, userID, roleID)
	if err != nil {
		if errors.Is(err, roles.ErrRoleNotFound) {
			respond("指定されたロールが見つかりません。管理者に連絡してください。")
		} else {
			log.Discord().Error("Role toggle failed", "guildID", guildID, "userID", userID, "roleID", roleID, "err", err)
			respond("ロールの変更中にエラーが発生しました。")
		}
		return
	}

	name := d.toggler.RoleName(guildID, roleID)
	if result == roles.ToggleRevoked {
		d.audit.RecordBestEffort(storage.Event{
			GuildID: guildID, Actor: userID, Action: storage.ActionRoleRevoked, Subject: roleID,
		})
		respond("ロール「" + name + "」を解除しました。")
		return
	}
	d.audit.RecordBestEffort(storage.Event{
		GuildID: guildID, Actor: userID, Action: storage.ActionRoleGranted, Subject: roleID,
	})
	respond("ロール「" + name + "」を付与しました。")
}

func (d *Dispatcher) parentCategoryName(channelID string) string {
	ch, err := d.api.Channel(channelID)
	if err != nil || ch.ParentID == "" {
		return ""
	}
	parent, err := d.api.Channel(ch.ParentID)
	if err != nil {
		return ""
	}
	return parent.Name
}

func (d *Dispatcher) reply(m *discordgo.MessageCreate, content string) {
	_, err := d.api.ChannelMessageSendReply(m.ChannelID, content, m.Reference())
	if err != nil {
		log.Discord().Error("Failed to send reply", "channelID", m.ChannelID, "err", err)
	}
}

func (d *Dispatcher) replyEphemeral(i *discordgo.Interaction, content string) {
	err := d.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Discord().Error("Failed to respond to interaction", "err", err)
	}
}

func (d *Dispatcher) respondModal(i *discordgo.Interaction, data *discordgo.InteractionResponseData) {
	err := d.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: data,
	})
	if err != nil {
		log.Discord().Error("Failed to open modal", "err", err)
	}
}

func (d *Dispatcher) dmUser(userID, content string) {
	ch, err := d.api.UserChannelCreate(userID)
	if err != nil {
		log.Discord().Warn("Failed to open DM channel", "userID", userID, "err", err)
		return
	}
	if _, err := d.api.ChannelMessageSend(ch.ID, content); err != nil {
		log.Discord().Warn("Failed to send DM", "userID", userID, "err", err)
	}
}

func isAdminInteraction(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func modalField(data discordgo.ModalSubmitInteractionData, fieldID string) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			if input.CustomID == fieldID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}
