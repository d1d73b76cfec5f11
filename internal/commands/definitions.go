package commands

import "github.com/bwmarrin/discordgo"

func GetCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         "stats",
			Description:  "通話時間の累計を表示します",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "対象ユーザー（省略時は自分）",
					Required:    false,
				},
			},
		},
		{
			Name:         "ranking",
			Description:  "通話時間ランキングを表示します",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "top",
					Description: "表示する人数（1〜25、省略時は10）",
					Required:    false,
					MinValue:    float64Ptr(1),
					MaxValue:    25,
				},
			},
		},
		{
			Name:         "history",
			Description:  "最近の入退室ログを表示します",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "表示する件数（1〜50、省略時は10）",
					Required:    false,
					MinValue:    float64Ptr(1),
					MaxValue:    50,
				},
			},
		},
		{
			Name:         "stay",
			Description:  "ボイスチャンネルへの常駐を管理します",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "常駐するチャンネルを設定します",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "channel",
							Description: "常駐先のボイスチャンネル",
							Required:    true,
							ChannelTypes: []discordgo.ChannelType{
								discordgo.ChannelTypeGuildVoice,
								discordgo.ChannelTypeGuildStageVoice,
							},
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "clear",
					Description: "常駐を解除します",
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func float64Ptr(f float64) *float64 {
	return &f
}
