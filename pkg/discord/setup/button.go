package setup

import (
	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/guildsetup/pkg/files"
	"github.com/small-frappuccino/guildsetup/pkg/log"
)

const buttonsPerRow = 5

// ButtonMenu renders every menu with message components. This is the
// default renderer.
type ButtonMenu struct {
	api ChannelSender
}

// NewButtonMenu creates the component-based renderer.
func NewButtonMenu(api ChannelSender) *ButtonMenu {
	return &ButtonMenu{api: api}
}

func (b *ButtonMenu) PostSetupMenu(channelID string) error {
	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: "セットアップするシステムを選択してください：",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{CustomID: IDSetupPhoneVerification, Label: "電話番号認証システム", Style: discordgo.PrimaryButton},
					discordgo.Button{CustomID: IDSetupRoleSelection, Label: "ロール選択システム", Style: discordgo.SuccessButton},
					discordgo.Button{CustomID: IDSetupMessageSender, Label: "メッセージ送信システム", Style: discordgo.SecondaryButton},
					discordgo.Button{CustomID: IDSetupVoiceChannel, Label: "ボイスチャンネル作成システム", Style: discordgo.DangerButton},
				},
			},
		},
	})
	return err
}

func (b *ButtonMenu) PostVerificationGuide(channelID string) error {
	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{verificationEmbed()},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{CustomID: IDVerifyPhone, Label: "電話番号で認証する", Style: discordgo.PrimaryButton},
				},
			},
		},
	})
	return err
}

func (b *ButtonMenu) PostRoleSelection(channelID string, bindings []files.RoleBinding) error {
	if len(bindings) == 0 {
		return ErrNoBindings
	}

	var rows []discordgo.MessageComponent
	for start := 0; start < len(bindings); start += buttonsPerRow {
		end := start + buttonsPerRow
		if end > len(bindings) {
			end = len(bindings)
		}
		var buttons []discordgo.MessageComponent
		for _, binding := range bindings[start:end] {
			buttons = append(buttons, discordgo.Button{
				CustomID: RoleIDPrefix + binding.RoleID,
				Label:    binding.ButtonText,
				Style:    discordgo.SecondaryButton,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}

	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{roleSelectionEmbed()},
		Components: rows,
	})
	if err == nil {
		log.Discord().Info("Role selection menu posted", "channelID", channelID, "bindings", len(bindings))
	}
	return err
}

func (b *ButtonMenu) PostVoiceChannelGuide(channelID string) error {
	_, err := b.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{voiceChannelEmbed()},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{CustomID: IDCreateVoiceChannel, Label: "ボイスチャンネルを作成", Style: discordgo.SuccessButton},
				},
			},
		},
	})
	return err
}
