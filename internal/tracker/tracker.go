package tracker

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/susu3304/zaisekibot/internal/store"
)

const DefaultHistoryLimit = 1000

// session is a member's in-progress stay in one voice channel.
type session struct {
	ChannelID string
	Start     time.Time
}

// Tracker owns the voice presence state: live sessions, accumulated seconds
// per member, and the bounded history log. Totals and history are persisted
// through the store; sessions live only in memory.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]session
	totals   map[string]int64
	history  []string
	limit    int
	store    store.Store
}

func New(st store.Store, historyLimit int) *Tracker {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Tracker{
		sessions: make(map[string]session),
		totals:   make(map[string]int64),
		limit:    historyLimit,
		store:    st,
	}
}

// LoadState restores totals and history from the store. Missing or corrupt
// datasets leave the empty defaults in place.
func (t *Tracker) LoadState(ctx context.Context) error {
	totals := make(map[string]int64)
	if err := t.store.Load(ctx, store.DatasetTotals, &totals); err != nil {
		return err
	}
	var history []string
	if err := t.store.Load(ctx, store.DatasetHistory, &history); err != nil {
		return err
	}
	t.mu.Lock()
	t.totals = totals
	if len(history) > t.limit {
		history = history[len(history)-t.limit:]
	}
	t.history = history
	t.mu.Unlock()
	return nil
}

// Begin starts a session for the member. Any existing session is
// replaced without folding its time; callers end sessions first when the
// elapsed time should count.
func (t *Tracker) Begin(memberID, channelID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginLocked(memberID, channelID, at)
}

func (t *Tracker) beginLocked(memberID, channelID string, at time.Time) {
	t.sessions[memberID] = session{ChannelID: channelID, Start: at}
}

// End removes the member's session and folds its duration into the stored
// total. Returns false when no session exists, which is normal after missed
// or duplicate events and mutates nothing.
func (t *Tracker) End(memberID string, at time.Time) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endLocked(memberID, at)
}

func (t *Tracker) endLocked(memberID string, at time.Time) (int64, bool) {
	sess, ok := t.sessions[memberID]
	if !ok {
		return 0, false
	}
	delete(t.sessions, memberID)
	d := durationSeconds(sess.Start, at)
	t.totals[memberID] += d
	return d, true
}

// LiveDuration reports the member's current session length without mutating
// anything. Zero when no session exists.
func (t *Tracker) LiveDuration(memberID string, at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[memberID]
	if !ok {
		return 0
	}
	return durationSeconds(sess.Start, at)
}

// Resume seeds a session for a member already in a channel at startup. It
// never overrides a live session, so invoking it twice cannot double-count.
// Returns true when a new session was seeded.
func (t *Tracker) Resume(memberID, channelID string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[memberID]; ok {
		return false
	}
	t.sessions[memberID] = session{ChannelID: channelID, Start: at}
	return true
}

// CurrentChannel reports where the member's live session is attributed, if any.
func (t *Tracker) CurrentChannel(memberID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[memberID]
	return sess.ChannelID, ok
}

// TotalFor returns the member's stored total plus any live session time, and
// whether the member is currently in a channel.
func (t *Tracker) TotalFor(memberID string, now time.Time) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.totals[memberID]
	sess, live := t.sessions[memberID]
	if live {
		total += durationSeconds(sess.Start, now)
	}
	return total, live
}

// Entry is one leaderboard row.
type Entry struct {
	MemberID string `json:"member_id"`
	Seconds  int64  `json:"seconds"`
	Live     bool   `json:"live"`
}

// Leaderboard merges stored totals with live session time and returns at most
// top entries, longest first. Ties keep their encounter order.
func (t *Tracker) Leaderboard(top int, now time.Time) []Entry {
	if top <= 0 {
		return nil
	}
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.totals)+len(t.sessions))
	for id, total := range t.totals {
		e := Entry{MemberID: id, Seconds: total}
		if sess, ok := t.sessions[id]; ok {
			e.Seconds += durationSeconds(sess.Start, now)
			e.Live = true
		}
		entries = append(entries, e)
	}
	for id, sess := range t.sessions {
		if _, ok := t.totals[id]; ok {
			continue
		}
		entries = append(entries, Entry{
			MemberID: id,
			Seconds:  durationSeconds(sess.Start, now),
			Live:     true,
		})
	}
	t.mu.Unlock()

	// Ties break on member id: map iteration order varies per call, so
	// encounter order alone would let tied entries swap between calls.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Seconds != entries[j].Seconds {
			return entries[i].Seconds > entries[j].Seconds
		}
		return entries[i].MemberID < entries[j].MemberID
	})
	if len(entries) > top {
		entries = entries[:top]
	}
	return entries
}

// History returns up to n of the most recent log lines, oldest first.
func (t *Tracker) History(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]string, len(h))
	copy(out, h)
	return out
}

// LiveCount reports how many sessions are currently open.
func (t *Tracker) LiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) appendHistoryLocked(line string) {
	t.history = append(t.history, line)
	if len(t.history) > t.limit {
		t.history = t.history[len(t.history)-t.limit:]
	}
}

// Flush persists totals and history. Called after each applied event and once
// more on shutdown; failures are returned so the caller can log and continue.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	totals := make(map[string]int64, len(t.totals))
	for id, v := range t.totals {
		totals[id] = v
	}
	history := make([]string, len(t.history))
	copy(history, t.history)
	t.mu.Unlock()

	if err := t.store.Save(ctx, store.DatasetTotals, totals); err != nil {
		return err
	}
	return t.store.Save(ctx, store.DatasetHistory, history)
}

func (t *Tracker) persist(ctx context.Context) {
	if err := t.Flush(ctx); err != nil {
		log.Printf("tracker: failed to persist state: %v", err)
	}
}

// durationSeconds is floor(to-from) in whole seconds, clamped at zero so a
// clock step backwards never produces a negative stay.
func durationSeconds(from, to time.Time) int64 {
	d := int64(to.Sub(from) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
