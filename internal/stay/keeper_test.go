package stay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/zaisekibot/internal/store"
)

// fakePlatform is safe for concurrent use: the keeper reconciles guilds in
// parallel within one cycle.
type fakePlatform struct {
	mu            sync.Mutex
	guilds        map[string]bool
	channels      map[string]bool // "guild/channel"
	current       map[string]string
	connectErr    error
	connectDelay  time.Duration
	retargetErr   error
	panicGuilds   map[string]bool
	connectStarts map[string]time.Time

	connects  []string
	retargets []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		guilds:        make(map[string]bool),
		channels:      make(map[string]bool),
		current:       make(map[string]string),
		panicGuilds:   make(map[string]bool),
		connectStarts: make(map[string]time.Time),
	}
}

func (p *fakePlatform) addChannel(guildID, channelID string) {
	p.guilds[guildID] = true
	p.channels[guildID+"/"+channelID] = true
}

func (p *fakePlatform) GuildExists(guildID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicGuilds[guildID] {
		panic("platform exploded for guild " + guildID)
	}
	return p.guilds[guildID]
}

func (p *fakePlatform) ChannelExists(guildID, channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[guildID+"/"+channelID]
}

func (p *fakePlatform) CurrentChannel(guildID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.current[guildID]
	return ch, ok
}

func (p *fakePlatform) Connect(guildID, channelID string, timeout time.Duration) error {
	p.mu.Lock()
	p.connects = append(p.connects, guildID+"/"+channelID)
	p.connectStarts[guildID] = time.Now()
	delay := p.connectDelay
	err := p.connectErr
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current[guildID] = channelID
	p.mu.Unlock()
	return nil
}

func (p *fakePlatform) Retarget(guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retargets = append(p.retargets, guildID+"/"+channelID)
	if p.retargetErr != nil {
		return p.retargetErr
	}
	p.current[guildID] = channelID
	return nil
}

func (p *fakePlatform) Disconnect(guildID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.current, guildID)
}

type fakeNotifier struct {
	notices []string
}

func (n *fakeNotifier) Notify(text string) {
	n.notices = append(n.notices, text)
}

type keeperFixture struct {
	keeper   *Keeper
	platform *fakePlatform
	notifier *fakeNotifier
	now      *time.Time
}

func newKeeperFixture(t *testing.T) *keeperFixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	platform := newFakePlatform()
	notifier := &fakeNotifier{}
	k := NewKeeper(st, platform, notifier, DefaultInterval)

	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	k.now = func() time.Time { return now }

	return &keeperFixture{keeper: k, platform: platform, notifier: notifier, now: &now}
}

func (f *keeperFixture) advance(d time.Duration) {
	*f.now = f.now.Add(d)
}

func TestReconcileConnects(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())

	assert.Equal(t, []string{"g1/c1"}, f.platform.connects)
	assert.Equal(t, "c1", f.platform.current["g1"])
}

func TestReconcileAlreadyConnected(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.current["g1"] = "c1"
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())

	assert.Empty(t, f.platform.connects)
	assert.Empty(t, f.platform.retargets)
}

func TestReconcileRetargets(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.addChannel("g1", "c2")
	f.platform.current["g1"] = "c2"
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())

	assert.Empty(t, f.platform.connects)
	assert.Equal(t, []string{"g1/c1"}, f.platform.retargets)
	assert.Equal(t, "c1", f.platform.current["g1"])
}

func TestBackoffSkipsWithinWindow(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.connectErr = errors.New("gateway down")
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())
	require.Len(t, f.platform.connects, 1)

	// Still inside the 10s window: no new attempt
	f.advance(9 * time.Second)
	f.keeper.Reconcile(context.Background())
	assert.Len(t, f.platform.connects, 1)

	// Window elapsed: retried
	f.advance(time.Second)
	f.keeper.Reconcile(context.Background())
	assert.Len(t, f.platform.connects, 2)
}

func TestBackoffDoublesUpToCeiling(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.connectErr = errors.New("gateway down")
	f.keeper.Set("g1", "c1")

	want := []time.Duration{
		10 * time.Second, 20 * time.Second, 40 * time.Second,
		80 * time.Second, 160 * time.Second, 320 * time.Second,
		600 * time.Second, 600 * time.Second,
	}
	for n, delay := range want {
		f.keeper.Reconcile(context.Background())
		require.Len(t, f.platform.connects, n+1)

		b := f.keeper.backoff["g1"]
		require.NotNil(t, b)
		assert.Equal(t, delay, b.delay, "failure %d", n+1)
		assert.Equal(t, f.now.Add(delay), b.retryNotBefore)

		f.advance(delay)
	}
}

func TestBackoffResetsAfterSuccess(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.connectErr = errors.New("gateway down")
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())
	f.advance(10 * time.Second)
	f.keeper.Reconcile(context.Background())
	require.Equal(t, 20*time.Second, f.keeper.backoff["g1"].delay)

	// Recovery clears the backoff entirely
	f.platform.connectErr = nil
	f.advance(20 * time.Second)
	f.keeper.Reconcile(context.Background())
	assert.Nil(t, f.keeper.backoff["g1"])

	// The next outage starts over at the floor
	f.platform.connectErr = errors.New("gateway down again")
	f.platform.Disconnect("g1")
	f.keeper.Reconcile(context.Background())
	assert.Equal(t, 10*time.Second, f.keeper.backoff["g1"].delay)
}

func TestGuildGoneRemovesEntry(t *testing.T) {
	f := newKeeperFixture(t)
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())

	_, ok := f.keeper.Get("g1")
	assert.False(t, ok)
	assert.Empty(t, f.platform.connects)
	assert.Empty(t, f.notifier.notices)
}

func TestChannelGoneRemovesEntryAndNotifies(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.guilds["g1"] = true
	f.keeper.Set("g1", "c1")

	f.keeper.Reconcile(context.Background())

	_, ok := f.keeper.Get("g1")
	assert.False(t, ok)
	require.Len(t, f.notifier.notices, 1)
	assert.Contains(t, f.notifier.notices[0], "g1")
}

func TestReconcileDoesNotStallAcrossGuilds(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.addChannel("g2", "c2")
	f.platform.connectDelay = 200 * time.Millisecond
	f.keeper.Set("g1", "c1")
	f.keeper.Set("g2", "c2")

	f.keeper.Reconcile(context.Background())

	// Both guilds connected, and neither attempt waited out the other's
	// blocking connect: the attempts started near-simultaneously.
	require.Len(t, f.platform.connects, 2)
	assert.Equal(t, "c1", f.platform.current["g1"])
	assert.Equal(t, "c2", f.platform.current["g2"])

	s1 := f.platform.connectStarts["g1"]
	s2 := f.platform.connectStarts["g2"]
	gap := s1.Sub(s2)
	if gap < 0 {
		gap = -gap
	}
	assert.Less(t, gap, f.platform.connectDelay,
		"connect attempts must overlap, not run back to back")
}

func TestReconcileSurvivesGuildFault(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.addChannel("g2", "c2")
	f.platform.panicGuilds["g1"] = true
	f.keeper.Set("g1", "c1")
	f.keeper.Set("g2", "c2")

	// g1's fault must not keep g2 from being reconciled
	f.keeper.Reconcile(context.Background())

	assert.Equal(t, "c2", f.platform.current["g2"])
	_, ok := f.keeper.Get("g1")
	assert.True(t, ok, "a faulting guild keeps its entry for the next cycle")
}

func TestStayMapSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	require.NoError(t, err)

	k := NewKeeper(st, newFakePlatform(), nil, DefaultInterval)
	k.Set("g1", "c1")
	k.Set("g2", "c2")
	require.True(t, k.Clear("g2"))
	assert.False(t, k.Clear("g2"))

	st2, err := store.NewFileStore(dir)
	require.NoError(t, err)
	k2 := NewKeeper(st2, newFakePlatform(), nil, DefaultInterval)
	require.NoError(t, k2.LoadState(context.Background()))

	ch, ok := k2.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "c1", ch)
	_, ok = k2.Get("g2")
	assert.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	k := NewKeeper(st, newFakePlatform(), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestSetTriggersFreshBackoff(t *testing.T) {
	f := newKeeperFixture(t)
	f.platform.addChannel("g1", "c1")
	f.platform.addChannel("g1", "c2")
	f.platform.connectErr = errors.New("gateway down")
	f.keeper.Set("g1", "c1")
	f.keeper.Reconcile(context.Background())
	require.NotNil(t, f.keeper.backoff["g1"])

	// Re-pointing the stay resets the backoff so the new target is tried now
	f.keeper.Set("g1", "c2")
	assert.Nil(t, f.keeper.backoff["g1"])

	f.platform.connectErr = nil
	f.keeper.Reconcile(context.Background())
	assert.Equal(t, "c2", f.platform.current["g1"])
}
