package setup

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/files"
)

// Component and modal discriminators. These are wire-visible: changing one
// strands any menu message already posted to a guild.
const (
	IDSetupPhoneVerification = "setup_phone_verification"
	IDSetupRoleSelection     = "setup_role_selection"
	IDSetupMessageSender     = "setup_message_sender"
	IDSetupVoiceChannel      = "setup_voice_channel"

	IDVerifyPhone        = "verify_phone"
	IDCreateVoiceChannel = "create_voice_channel"

	RoleIDPrefix = "role_"

	ModalVoiceChannel   = "voice_channel_modal"
	ModalMessageSender  = "message_sender_modal"
	FieldChannelName    = "channel_name"
	FieldMessageContent = "message_content"
)

// ErrNoBindings indicates a role selection menu was requested before any
// role binding was configured.
var ErrNoBindings = errors.New("no role bindings configured")

// ChannelSender is the slice of the Discord session renderers post through.
// *discordgo.Session satisfies it.
type ChannelSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// MenuRenderer posts the user-facing menus into a guild channel. Two
// implementations exist: ButtonMenu (component UI) and ReactionMenu
// (legacy emoji UI). The dispatcher routes the resulting input events
// back to the same handlers regardless of renderer.
type MenuRenderer interface {
	// PostSetupMenu posts the administrator's system picker.
	PostSetupMenu(channelID string) error
	// PostVerificationGuide posts the phone verification guide.
	PostVerificationGuide(channelID string) error
	// PostRoleSelection posts the role self-assignment menu for the given
	// bindings. Fails with ErrNoBindings when bindings is empty.
	PostRoleSelection(channelID string, bindings []files.RoleBinding) error
	// PostVoiceChannelGuide posts the ephemeral voice channel guide.
	PostVoiceChannelGuide(channelID string) error
}

// VerificationSteps is the ephemeral reply sent when a member asks for the
// phone verification walkthrough. Verification itself is Discord's own
// feature; no phone number passes through the bot.
const VerificationSteps = "Discordの電話番号認証ガイドに従って認証を行ってください：\n" +
	"1. Discordの設定を開きます\n" +
	"2. アカウント設定から「電話番号」を選択します\n" +
	"3. 画面の指示に従って電話番号を登録します\n" +
	"4. 認証コードを入力して認証完了\n\n" +
	"※このプロセスはDiscordの公式機能を使用します。botは電話番号を収集しません。"

// VoiceChannelModal builds the channel-name prompt shown after the create
// button is pressed.
func VoiceChannelModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: ModalVoiceChannel,
		Title:    "ボイスチャンネル作成",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    FieldChannelName,
						Label:       "チャンネル名",
						Style:       discordgo.TextInputShort,
						Placeholder: "例: ゲーム部屋",
						Required:    true,
						MinLength:   1,
						MaxLength:   100,
					},
				},
			},
		},
	}
}

// BroadcastModal builds the message-content prompt for the broadcast action.
func BroadcastModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: ModalMessageSender,
		Title:    "メッセージ送信システム",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    FieldMessageContent,
						Label:       "送信したいメッセージ",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "ここにメッセージを入力してください",
						Required:    true,
						MinLength:   1,
						MaxLength:   2000,
					},
				},
			},
		},
	}
}

func verificationEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔒 電話番号認証ガイド 🔒",
		Description: "ようこそ。\n本サーバーでは、安全性を確保するために電話番号認証をお願いしています。以下の手順に従って認証を行ってください。",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "⚠️ 注意",
				Value: "* 電話番号認証はサーバーの安全性を高めるために必須です。\n* 一度認証を行うと、今後は電話番号を変更しない限り再認証の必要はありません。",
			},
			{Name: "​", Value: "ご不明点があれば、運営までお知らせください。"},
		},
		Color: 0x0099ff,
	}
}

func roleSelectionEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎮 ロール選択 🎮",
		Description: "本サーバー内では、プレイヤーに適したロール（役職）を選んでいただく必要があります。以下の手順に従って、希望するロールを選択してください。",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "1. ロール選択",
				Value: "下記のボタンから自分に合ったロールを選んでください。選択したロールに応じて、サーバー内でのアクセス権や役割が決まります。複数選択可能です。",
			},
			{
				Name:  "2. 変更・解除",
				Value: "ロールは後から変更することも可能です。解除したい場合はロールのボタンを再度押してください。",
			},
			{Name: "​", Value: "ご不明な点があれば運営にお知らせください。"},
		},
		Color: 0x00ff00,
	}
}

func voiceChannelEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔊 ボイスチャンネル作成システム 🔊",
		Description: "以下のボタンを押して、一時的なボイスチャンネルを作成できます。",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "使い方",
				Value: "1. 「ボイスチャンネルを作成」ボタンをクリックします\n" +
					"2. チャンネル名を入力します\n" +
					"3. 作成されたチャンネルに10秒以内に参加してください\n" +
					"4. チャンネル内の全メンバーが退出すると、10秒後に自動的に削除されます",
			},
		},
		Color: 0xff0000,
	}
}
