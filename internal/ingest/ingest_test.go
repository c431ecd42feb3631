package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/registry"
	"github.com/chainsignal/chainsignal/internal/store"
)

// fakeAdapter replays scripted batches, one per tick.
type fakeAdapter struct {
	mu      sync.Mutex
	key     string
	batches [][]alert.Candidate
	err     error
	ticks   int
}

func (f *fakeAdapter) Key() string { return f.key }

func (f *fakeAdapter) Fetch(ctx context.Context) ([]alert.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

// recordingFabric captures Distribute calls in order.
type recordingFabric struct {
	mu     sync.Mutex
	alerts []alert.Alert
	reach  []string
}

func (r *recordingFabric) Distribute(a alert.Alert) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.reach
}

func (r *recordingFabric) distributed() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Alert(nil), r.alerts...)
}

func candidate(headline, url string) alert.Candidate {
	return alert.Candidate{
		Channel:    alert.ChannelDeFiHacks,
		Headline:   headline,
		Summary:    "Summary text long enough to clear the validation floor.",
		SourceURL:  url,
		SourceType: alert.SourceSecurityIncident,
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(store.Options{MaxAlerts: 100, HashTTL: time.Hour, Logger: zerolog.Nop()})
}

func TestTickIngestsAndDistributesInOrder(t *testing.T) {
	st := newStore(t)
	fab := &recordingFabric{}
	adapter := &fakeAdapter{key: "test", batches: [][]alert.Candidate{{
		candidate("Bridge exploit drains funds from protocol", "https://example.com/a"),
		candidate("Second protocol pauses contracts after exploit", "https://example.com/b"),
	}}}

	o := New(nil, st, fab, nil, zerolog.Nop())
	o.Tick(context.Background(), adapter)

	got := fab.distributed()
	require.Len(t, got, 2)
	assert.Equal(t, "Bridge exploit drains funds from protocol", got[0].Headline)
	assert.Equal(t, "Second protocol pauses contracts after exploit", got[1].Headline)
	assert.Equal(t, 2, st.Stats().Total)
}

func TestTickSkipsDuplicates(t *testing.T) {
	st := newStore(t)
	fab := &recordingFabric{}
	dup := candidate("Bridge exploit drains funds from protocol", "https://example.com/a")
	adapter := &fakeAdapter{key: "test", batches: [][]alert.Candidate{{dup, dup}}}

	o := New(nil, st, fab, nil, zerolog.Nop())
	o.Tick(context.Background(), adapter)

	// One accepted, one rejected: distribution sees exactly one.
	assert.Len(t, fab.distributed(), 1)
	assert.Equal(t, 1, st.Stats().Total)
}

func TestTickAbsorbsFetchFailure(t *testing.T) {
	st := newStore(t)
	fab := &recordingFabric{}
	adapter := &fakeAdapter{key: "test", err: errors.New("feed down")}

	o := New(nil, st, fab, nil, zerolog.Nop())
	o.Tick(context.Background(), adapter)

	assert.Empty(t, fab.distributed())
	assert.Zero(t, st.Stats().Total)
}

func TestOrchestratorSchedulesAndStops(t *testing.T) {
	st := newStore(t)
	fab := &recordingFabric{}
	adapter := &fakeAdapter{key: "test", batches: [][]alert.Candidate{
		{candidate("First batch headline for scheduling test", "https://example.com/1")},
		{candidate("Second batch headline for scheduling test", "https://example.com/2")},
	}}

	o := New([]Entry{{Adapter: adapter, Cadence: 10 * time.Millisecond, Enabled: true}},
		st, fab, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)

	require.Eventually(t, func() bool {
		return st.Stats().Total == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	o.Wait()

	adapter.mu.Lock()
	ticksAtStop := adapter.ticks
	adapter.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	adapter.mu.Lock()
	assert.Equal(t, ticksAtStop, adapter.ticks, "ticks must stop after cancel")
	adapter.mu.Unlock()
}

func TestOrchestratorSkipsDisabledEntries(t *testing.T) {
	st := newStore(t)
	fab := &recordingFabric{}
	adapter := &fakeAdapter{key: "test", batches: [][]alert.Candidate{
		{candidate("Should never be ingested at all here", "https://example.com/x")},
	}}

	o := New([]Entry{{Adapter: adapter, Cadence: time.Millisecond, Enabled: false}},
		st, fab, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, st.Stats().Total)
}

func registerPublisher(t *testing.T, pubs *registry.Publishers, channels ...alert.Channel) registry.PublisherWithKey {
	t.Helper()
	pub, err := pubs.Register(registry.RegisterPublisherRequest{
		Name:     "signal-desk",
		Channels: channels,
	})
	require.NoError(t, err)
	return pub
}

func validPublish() PublishRequest {
	return PublishRequest{
		Channel:   alert.ChannelDeFiHacks,
		Priority:  alert.PriorityCritical,
		Headline:  "Lending protocol exploited for $40M via oracle manipulation",
		Summary:   "The attacker manipulated a thin-liquidity price feed to borrow against inflated collateral.",
		SourceURL: "https://example.com/postmortem",
		Tickers:   []string{"ETH"},
	}
}

func newIngress(t *testing.T, reach []string) (*Ingress, *registry.Publishers, *store.Store, *recordingFabric) {
	t.Helper()
	pubs := registry.NewPublishers(zerolog.Nop())
	st := newStore(t)
	fab := &recordingFabric{reach: reach}
	return NewIngress(pubs, st, fab, nil, zerolog.Nop()), pubs, st, fab
}

func TestPublishHappyPath(t *testing.T) {
	ing, pubs, st, fab := newIngress(t, []string{"sub-1", "sub-2"})
	pub := registerPublisher(t, pubs, alert.ChannelDeFiHacks)

	res, err := ing.Publish(context.Background(), pub.APIKey, validPublish())
	require.NoError(t, err)

	assert.Equal(t, 2, res.DeliveredCount)
	assert.Equal(t, alert.SourceAgent, res.Alert.SourceType)
	assert.Equal(t, pub.ID, res.Alert.PublisherID)
	assert.Equal(t, "signal-desk", res.Alert.PublisherName)
	assert.NotEmpty(t, res.Alert.ID)
	assert.Len(t, fab.distributed(), 1)

	stored, ok := st.Get(res.Alert.ID)
	require.True(t, ok)
	assert.Equal(t, res.Alert.ContentHash, stored.ContentHash)

	// Published once, consumed twice (one reward per recipient).
	got, ok := pubs.Get(pub.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.AlertsPublished)
	assert.Equal(t, int64(2), got.AlertsConsumed)
	assert.InDelta(t, 50.2, got.ReputationScore, 0.001)
}

func TestPublishUnauthorized(t *testing.T) {
	ing, _, _, _ := newIngress(t, nil)
	_, err := ing.Publish(context.Background(), "csk_deadbeef", validPublish())
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestPublishValidation(t *testing.T) {
	ing, pubs, _, _ := newIngress(t, nil)
	pub := registerPublisher(t, pubs, alert.ChannelDeFiHacks)

	cases := []struct {
		name   string
		mutate func(*PublishRequest)
	}{
		{"short headline", func(r *PublishRequest) { r.Headline = "too short" }},
		{"short summary", func(r *PublishRequest) { r.Summary = "brief" }},
		{"bad channel", func(r *PublishRequest) { r.Channel = "defi/everything" }},
		{"bad priority", func(r *PublishRequest) { r.Priority = "urgent" }},
		{"bad sentiment", func(r *PublishRequest) { r.Sentiment = "euphoric" }},
		{"bad url", func(r *PublishRequest) { r.SourceURL = "not-a-url" }},
		{"relative url", func(r *PublishRequest) { r.SourceURL = "/postmortem" }},
		{"impact out of range", func(r *PublishRequest) { v := 11.0; r.ImpactScore = &v }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPublish()
			tc.mutate(&req)
			_, err := ing.Publish(context.Background(), pub.APIKey, req)
			assert.True(t, apperr.Is(err, apperr.BadRequest), "got %v", err)
		})
	}
}

func TestPublishForbiddenChannel(t *testing.T) {
	ing, pubs, _, _ := newIngress(t, nil)
	pub := registerPublisher(t, pubs, alert.ChannelRegSEC)

	_, err := ing.Publish(context.Background(), pub.APIKey, validPublish())
	require.True(t, apperr.Is(err, apperr.Forbidden))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Details, "authorizedChannels")
}

func TestPublishDuplicateConflict(t *testing.T) {
	ing, pubs, _, _ := newIngress(t, nil)
	pub := registerPublisher(t, pubs, alert.ChannelDeFiHacks)

	_, err := ing.Publish(context.Background(), pub.APIKey, validPublish())
	require.NoError(t, err)
	_, err = ing.Publish(context.Background(), pub.APIKey, validPublish())
	assert.True(t, apperr.Is(err, apperr.Conflict))

	// Counters reflect one accepted publish only.
	got, ok := pubs.Get(pub.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.AlertsPublished)
}

func TestPublishSuspendedKeyRejected(t *testing.T) {
	ing, pubs, _, _ := newIngress(t, nil)
	pub := registerPublisher(t, pubs, alert.ChannelDeFiHacks)

	_, err := pubs.AdjustReputation(pub.ID, -45)
	require.NoError(t, err)

	_, err = ing.Publish(context.Background(), pub.APIKey, validPublish())
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}
