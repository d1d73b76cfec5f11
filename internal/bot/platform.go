package bot

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
)

// sessionPlatform implements stay.Platform on top of the live discordgo
// session. Existence checks go through the state cache so a guild the bot was
// removed from reads as gone.
type sessionPlatform struct {
	session *discordgo.Session
}

func (p *sessionPlatform) GuildExists(guildID string) bool {
	_, err := p.session.State.Guild(guildID)
	return err == nil
}

func (p *sessionPlatform) ChannelExists(guildID, channelID string) bool {
	ch, err := p.session.State.Channel(channelID)
	if err != nil {
		ch, err = p.session.Channel(channelID)
		if err != nil {
			return false
		}
	}
	return ch.GuildID == guildID &&
		(ch.Type == discordgo.ChannelTypeGuildVoice || ch.Type == discordgo.ChannelTypeGuildStageVoice)
}

func (p *sessionPlatform) CurrentChannel(guildID string) (string, bool) {
	vc, ok := p.session.VoiceConnections[guildID]
	if !ok {
		return "", false
	}
	return vc.ChannelID, true
}

// Connect joins the channel muted, with our own deadline on top of
// discordgo's; a gateway that never answers must not wedge the keeper.
func (p *sessionPlatform) Connect(guildID, channelID string, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := p.session.ChannelVoiceJoin(guildID, channelID, true, true)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("timed out joining channel %s in guild %s", channelID, guildID)
	}
}

func (p *sessionPlatform) Retarget(guildID, channelID string) error {
	vc, ok := p.session.VoiceConnections[guildID]
	if !ok {
		return fmt.Errorf("no voice connection in guild %s", guildID)
	}
	return vc.ChangeChannel(channelID, true, true)
}

func (p *sessionPlatform) Disconnect(guildID string) {
	vc, ok := p.session.VoiceConnections[guildID]
	if !ok {
		return
	}
	if err := vc.Disconnect(); err != nil {
		log.Printf("Failed to disconnect from guild %s: %v", guildID, err)
	}
}

// channelNotifier posts fire-and-forget notices to the configured channel.
// An empty channel id disables it.
type channelNotifier struct {
	session   *discordgo.Session
	channelID string
}

func (n *channelNotifier) Notify(text string) {
	if n.channelID == "" {
		return
	}
	if _, err := n.session.ChannelMessageSend(n.channelID, text); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}
