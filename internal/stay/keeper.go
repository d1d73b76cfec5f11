package stay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/susu3304/zaisekibot/internal/store"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultConnectTimeout = 30 * time.Second

	backoffFloor = 10 * time.Second
	backoffCeil  = 600 * time.Second

	// Pause after a whole-cycle fault so a persistent bug can't spin the loop.
	faultPause = 5 * time.Second
)

// Platform is the slice of the chat platform the keeper needs: existence
// checks and control of one voice connection per guild.
type Platform interface {
	GuildExists(guildID string) bool
	ChannelExists(guildID, channelID string) bool
	CurrentChannel(guildID string) (string, bool)
	Connect(guildID, channelID string, timeout time.Duration) error
	Retarget(guildID, channelID string) error
	Disconnect(guildID string)
}

// Notifier delivers fire-and-forget text notices. May be nil.
type Notifier interface {
	Notify(text string)
}

type backoffState struct {
	retryNotBefore time.Time
	delay          time.Duration
}

// Keeper owns the persisted guild→channel stay map and runs the periodic loop
// that keeps the bot's voice connection in each desired channel. Backoff state
// is per guild and in-memory only.
type Keeper struct {
	mu      sync.Mutex
	stays   map[string]string
	backoff map[string]*backoffState

	store          store.Store
	platform       Platform
	notifier       Notifier
	interval       time.Duration
	connectTimeout time.Duration
	now            func() time.Time
}

func NewKeeper(st store.Store, platform Platform, notifier Notifier, interval time.Duration) *Keeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Keeper{
		stays:          make(map[string]string),
		backoff:        make(map[string]*backoffState),
		store:          st,
		platform:       platform,
		notifier:       notifier,
		interval:       interval,
		connectTimeout: DefaultConnectTimeout,
		now:            time.Now,
	}
}

// LoadState restores the stay map from the store.
func (k *Keeper) LoadState(ctx context.Context) error {
	stays := make(map[string]string)
	if err := k.store.Load(ctx, store.DatasetStays, &stays); err != nil {
		return err
	}
	k.mu.Lock()
	k.stays = stays
	k.mu.Unlock()
	return nil
}

// Set records the desired channel for a guild, replacing any previous one.
func (k *Keeper) Set(guildID, channelID string) {
	k.mu.Lock()
	k.stays[guildID] = channelID
	delete(k.backoff, guildID)
	k.mu.Unlock()
	k.persist(context.Background())
}

// Clear removes the guild's stay entry. Returns false when none existed.
func (k *Keeper) Clear(guildID string) bool {
	k.mu.Lock()
	_, ok := k.stays[guildID]
	delete(k.stays, guildID)
	delete(k.backoff, guildID)
	k.mu.Unlock()
	if ok {
		k.persist(context.Background())
	}
	return ok
}

// Get returns the desired channel for a guild, if any.
func (k *Keeper) Get(guildID string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.stays[guildID]
	return ch, ok
}

// Run drives reconciliation until the context is cancelled. Individual cycle
// faults are logged and followed by a short pause; they never stop the loop.
func (k *Keeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := k.safeReconcile(ctx); err != nil {
				log.Printf("stay: reconcile cycle failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(faultPause):
				}
			}
		}
	}
}

func (k *Keeper) safeReconcile(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	k.Reconcile(ctx)
	return nil
}

// Reconcile runs one pass over every guild with a stay entry. Guilds are
// reconciled in parallel so one guild's blocked connect attempt cannot stall
// the others, and a fault in one guild's attempt never blocks the rest.
func (k *Keeper) Reconcile(ctx context.Context) {
	k.mu.Lock()
	stays := make(map[string]string, len(k.stays))
	for g, c := range k.stays {
		stays[g] = c
	}
	k.mu.Unlock()

	var wg sync.WaitGroup
	for guildID, channelID := range stays {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(guildID, channelID string) {
			defer wg.Done()
			k.reconcileGuild(guildID, channelID)
		}(guildID, channelID)
	}
	wg.Wait()
}

func (k *Keeper) reconcileGuild(guildID, channelID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("stay: reconcile for guild %s panicked: %v", guildID, r)
		}
	}()

	if !k.platform.GuildExists(guildID) {
		log.Printf("stay: guild %s is gone, dropping stay entry", guildID)
		k.Clear(guildID)
		return
	}
	if !k.platform.ChannelExists(guildID, channelID) {
		log.Printf("stay: channel %s in guild %s is gone, dropping stay entry", channelID, guildID)
		k.Clear(guildID)
		k.notify(fmt.Sprintf("常駐先チャンネルが見つからないため、常駐を解除しました（guild: %s）", guildID))
		return
	}

	now := k.now()
	k.mu.Lock()
	if b, ok := k.backoff[guildID]; ok && now.Before(b.retryNotBefore) {
		k.mu.Unlock()
		return
	}
	k.mu.Unlock()

	current, connected := k.platform.CurrentChannel(guildID)
	if connected && current == channelID {
		k.clearBackoff(guildID)
		return
	}

	var err error
	if connected {
		err = k.platform.Retarget(guildID, channelID)
	} else {
		err = k.platform.Connect(guildID, channelID, k.connectTimeout)
	}
	if err != nil {
		delay := k.extendBackoff(guildID)
		log.Printf("stay: failed to keep guild %s in channel %s (retrying in %s): %v", guildID, channelID, delay, err)
		return
	}
	k.clearBackoff(guildID)
	log.Printf("stay: connected to channel %s in guild %s", channelID, guildID)
}

func (k *Keeper) clearBackoff(guildID string) {
	k.mu.Lock()
	delete(k.backoff, guildID)
	k.mu.Unlock()
}

// extendBackoff doubles the guild's retry delay, bounded to
// [backoffFloor, backoffCeil], and returns the new delay.
func (k *Keeper) extendBackoff(guildID string) time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.backoff[guildID]
	if !ok {
		b = &backoffState{delay: backoffFloor / 2}
		k.backoff[guildID] = b
	}
	b.delay *= 2
	if b.delay < backoffFloor {
		b.delay = backoffFloor
	}
	if b.delay > backoffCeil {
		b.delay = backoffCeil
	}
	b.retryNotBefore = k.now().Add(b.delay)
	return b.delay
}

func (k *Keeper) notify(text string) {
	if k.notifier == nil {
		return
	}
	k.notifier.Notify(text)
}

// Flush persists the stay map once more, for shutdown.
func (k *Keeper) Flush(ctx context.Context) error {
	k.mu.Lock()
	stays := make(map[string]string, len(k.stays))
	for g, c := range k.stays {
		stays[g] = c
	}
	k.mu.Unlock()
	return k.store.Save(ctx, store.DatasetStays, stays)
}

func (k *Keeper) persist(ctx context.Context) {
	if err := k.Flush(ctx); err != nil {
		log.Printf("stay: failed to persist stay map: %v", err)
	}
}
