package bot

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/zaisekibot/internal/commands"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected!", event.User.Username)

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			log.Printf("Failed to register commands for guild %s: %v", guild.ID, err)
		}
	}

	b.notifier.Notify(fmt.Sprintf("起動しました（%d サーバー）", len(event.Guilds)))
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Printf("Guild available/joined: %s (id=%s) — ensuring commands", event.Name, event.ID)
	if err := b.registerGuildCommands(event.ID); err != nil {
		log.Printf("Failed to register commands for guild %s: %v", event.ID, err)
	}

	// Seed sessions for members already on a call, so their time keeps
	// counting across restarts. Resume never overrides a live session.
	now := time.Now()
	resumed := 0
	for _, vs := range event.VoiceStates {
		if vs.ChannelID == "" || vs.UserID == s.State.User.ID {
			continue
		}
		if member, err := s.State.Member(event.ID, vs.UserID); err == nil && member.User.Bot {
			continue
		}
		if b.tracker.Resume(vs.UserID, vs.ChannelID, now) {
			resumed++
		}
	}
	if resumed > 0 {
		log.Printf("Resumed %d voice session(s) in guild %s", resumed, event.ID)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	cmds := commands.GetCommands()
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, cmds)
	if err != nil {
		return err
	}

	log.Printf("Registered application commands for guild %s", guildID)
	return nil
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	// Ignore our own connection and other bots
	if event.UserID == s.State.User.ID {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}

	before := ""
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}

	move := tracker.Move{
		MemberID:   event.UserID,
		Display:    b.displayName(event),
		BeforeID:   before,
		AfterID:    event.ChannelID,
		BeforeName: b.channelName(before),
		AfterName:  b.channelName(event.ChannelID),
		At:         time.Now(),
	}

	line, kind := b.tracker.Apply(move)
	if kind != tracker.TransitionNone {
		log.Printf("voice: %s", line)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "stats":
		commands.HandleStats(s, i, b.tracker)
	case "ranking":
		commands.HandleRanking(s, i, b.tracker)
	case "history":
		commands.HandleHistory(s, i, b.tracker)
	case "stay":
		commands.HandleStay(s, i, b.keeper, b.platform)
	}
}

func (b *Bot) displayName(event *discordgo.VoiceStateUpdate) string {
	if event.Member != nil && event.Member.User != nil {
		if event.Member.Nick != "" {
			return event.Member.Nick
		}
		return event.Member.User.Username
	}
	if member, err := b.session.State.Member(event.GuildID, event.UserID); err == nil {
		return member.User.Username
	}
	return event.UserID
}

func (b *Bot) channelName(channelID string) string {
	if channelID == "" {
		return ""
	}
	if ch, err := b.session.State.Channel(channelID); err == nil {
		return ch.Name
	}
	return channelID
}
