package tracker

import (
	"context"
	"fmt"
	"time"
)

// Transition classifies one voice-state change.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionJoined
	TransitionLeft
	TransitionMoved
)

// Move is one member's voice-state change as seen by the bot. Empty channel
// ids mean "not in a voice channel". Names are resolved by the caller; the
// raw id is passed through when a channel cannot be resolved.
type Move struct {
	MemberID   string
	Display    string
	BeforeID   string
	AfterID    string
	BeforeName string
	AfterName  string
	At         time.Time
}

// Apply classifies the move, mutates the ledger accordingly, appends the
// history line, and persists. The returned line is empty for no-ops.
// Classification and mutation share one critical section: discordgo runs each
// event handler in its own goroutine, so two rapid events for the same member
// must not observe the ledger mid-transition.
func (t *Tracker) Apply(m Move) (string, Transition) {
	if m.BeforeID == m.AfterID {
		return "", TransitionNone
	}

	var line string
	var kind Transition

	t.mu.Lock()
	switch {
	case m.BeforeID == "":
		kind = TransitionJoined
		t.beginLocked(m.MemberID, m.AfterID, m.At)
		line = fmt.Sprintf("🎙️ %s が %s に参加しました", m.Display, m.AfterName)

	case m.AfterID == "":
		kind = TransitionLeft
		if d, ok := t.endLocked(m.MemberID, m.At); ok {
			line = fmt.Sprintf("👋 %s が %s から退出しました（滞在 %s）", m.Display, m.BeforeName, FormatDuration(d))
		} else {
			// Session lost across a restart: still log the exit.
			line = fmt.Sprintf("👋 %s が %s から退出しました", m.Display, m.BeforeName)
		}

	default:
		kind = TransitionMoved
		if sess, ok := t.sessions[m.MemberID]; ok && sess.ChannelID == m.BeforeID {
			d, _ := t.endLocked(m.MemberID, m.At)
			t.beginLocked(m.MemberID, m.AfterID, m.At)
			line = fmt.Sprintf("🔀 %s が %s から %s に移動しました（滞在 %s）", m.Display, m.BeforeName, m.AfterName, FormatDuration(d))
		} else {
			// The live session disagrees with the reported before-channel.
			// Re-base in the new channel without folding the stale time.
			t.beginLocked(m.MemberID, m.AfterID, m.At)
			line = fmt.Sprintf("🔀 %s が %s から %s に移動しました", m.Display, m.BeforeName, m.AfterName)
		}
	}
	t.appendHistoryLocked(fmt.Sprintf("[%s] %s", m.At.Format("2006-01-02 15:04:05"), line))
	t.mu.Unlock()

	t.persist(context.Background())
	return line, kind
}
