package commands

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/zaisekibot/internal/tracker"
)

func HandleStats(s *discordgo.Session, i *discordgo.InteractionCreate, t *tracker.Tracker) {
	data := i.ApplicationCommandData()

	userID := getUserOptionID(data.Options, "user")
	if userID == "" {
		userID = i.Member.User.ID
	}

	total, live := t.TotalFor(userID, time.Now())
	if total == 0 && !live {
		respondText(s, i, fmt.Sprintf("<@%s> の通話記録はまだありません。", userID))
		return
	}

	msg := fmt.Sprintf("⏱️ <@%s> の累計通話時間: **%s**", userID, tracker.FormatDuration(total))
	if live {
		msg += "（現在通話中）"
	}
	respondText(s, i, msg)
}

func HandleRanking(s *discordgo.Session, i *discordgo.InteractionCreate, t *tracker.Tracker) {
	data := i.ApplicationCommandData()

	top := 10
	if v := getIntOption(data.Options, "top"); v != nil {
		top = int(*v)
	}
	if top < 1 {
		top = 1
	}
	if top > 25 {
		top = 25
	}

	entries := t.Leaderboard(top, time.Now())
	if len(entries) == 0 {
		respondText(s, i, "通話記録はまだありません。")
		return
	}

	var b strings.Builder
	b.WriteString("🏆 通話時間ランキング\n")
	for n, e := range entries {
		b.WriteString(fmt.Sprintf("%d. <@%s> — %s", n+1, e.MemberID, tracker.FormatDuration(e.Seconds)))
		if e.Live {
			b.WriteString("　🎙️通話中")
		}
		b.WriteString("\n")
	}
	respondText(s, i, b.String())
}

func HandleHistory(s *discordgo.Session, i *discordgo.InteractionCreate, t *tracker.Tracker) {
	data := i.ApplicationCommandData()

	count := 10
	if v := getIntOption(data.Options, "count"); v != nil {
		count = int(*v)
	}
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}

	lines := t.History(count)
	if len(lines) == 0 {
		respondText(s, i, "入退室ログはまだありません。")
		return
	}

	// Acknowledge the interaction with the first chunk, then follow up with
	// the rest so the interaction is never left hanging.
	chunks := chunkLines(lines, 2000)
	respondText(s, i, chunks[0])
	for _, chunk := range chunks[1:] {
		if _, err := s.ChannelMessageSend(i.ChannelID, chunk); err != nil {
			log.Printf("Failed to send history chunk: %v", err)
		}
	}
}

// chunkLines joins lines with newlines into chunks of at most max characters.
func chunkLines(lines []string, max int) []string {
	var chunks []string
	var buffer strings.Builder
	for _, line := range lines {
		if buffer.Len() > 0 && buffer.Len()+len(line)+1 > max {
			chunks = append(chunks, buffer.String())
			buffer.Reset()
		}
		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
	}
	if buffer.Len() > 0 {
		chunks = append(chunks, buffer.String())
	}
	return chunks
}
