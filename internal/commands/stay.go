package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/zaisekibot/internal/stay"
)

func HandleStay(s *discordgo.Session, i *discordgo.InteractionCreate, k *stay.Keeper, p stay.Platform) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "サブコマンドを指定してください")
		return
	}

	guildID := i.GuildID
	sub := data.Options[0]

	switch sub.Name {
	case "set":
		channelID := getChannelOptionID(sub.Options, "channel")
		if channelID == "" {
			respondText(s, i, "チャンネルを指定してください")
			return
		}
		k.Set(guildID, channelID)
		// Connect right away instead of waiting for the next cycle.
		go k.Reconcile(context.Background())
		respondText(s, i, fmt.Sprintf("📌 <#%s> に常駐します。", channelID))

	case "clear":
		if !k.Clear(guildID) {
			respondText(s, i, "常駐は設定されていません。")
			return
		}
		p.Disconnect(guildID)
		respondText(s, i, "常駐を解除しました。")

	default:
		respondText(s, i, "未知のサブコマンドです")
	}
}
