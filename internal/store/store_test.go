package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsignal/chainsignal/internal/alert"
)

func newTestStore(max int, ttl time.Duration) *Store {
	return New(Options{MaxAlerts: max, HashTTL: ttl, Logger: zerolog.Nop()})
}

func candidate(url, headline string) alert.Candidate {
	return alert.Candidate{
		Channel:    alert.ChannelDeFiYields,
		Headline:   headline,
		Summary:    "summary text long enough for anything",
		SourceURL:  url,
		SourceType: alert.SourceDeFiData,
	}
}

func TestAddRejectsDuplicate(t *testing.T) {
	s := newTestStore(0, 0)

	a1, ok := s.Add(candidate("https://x/a", "H"))
	require.True(t, ok)
	require.NotEmpty(t, a1.ID)
	require.NotEmpty(t, a1.ContentHash)

	_, ok = s.Add(candidate("https://x/a", "H"))
	require.False(t, ok)

	recent := s.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, a1.ID, recent[0].ID)
}

func TestAddStampsTimestamp(t *testing.T) {
	s := newTestStore(0, 0)

	declared := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c := candidate("https://x/declared", "Declared time")
	c.PublishedAt = declared
	a, ok := s.Add(c)
	require.True(t, ok)
	assert.True(t, a.Timestamp.Equal(declared))

	before := time.Now().UTC()
	a2, ok := s.Add(candidate("https://x/stamped", "Stamped time"))
	require.True(t, ok)
	assert.False(t, a2.Timestamp.Before(before))
}

func TestQueriesMostRecentFirst(t *testing.T) {
	s := newTestStore(0, 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		c := candidate(fmt.Sprintf("https://x/%d", i), fmt.Sprintf("Headline %d", i))
		c.PublishedAt = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			c.Channel = alert.ChannelRegSEC
		}
		a, ok := s.Add(c)
		require.True(t, ok)
		ids = append(ids, a.ID)
	}

	recent := s.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, ids[4], recent[0].ID)
	assert.Equal(t, ids[3], recent[1].ID)
	assert.Equal(t, ids[2], recent[2].ID)

	sec := s.ByChannel(alert.ChannelRegSEC, 10)
	require.Len(t, sec, 3)
	assert.Equal(t, ids[4], sec[0].ID)
	assert.Equal(t, ids[0], sec[2].ID)

	yields := s.ByChannel(alert.ChannelDeFiYields, 1)
	require.Len(t, yields, 1)
	assert.Equal(t, ids[3], yields[0].ID)
}

func TestByPublisher(t *testing.T) {
	s := newTestStore(0, 0)

	c := candidate("https://x/p1", "Published by P")
	c.PublisherID = "pub-1"
	c.PublisherName = "P"
	c.SourceType = alert.SourceAgent
	a, ok := s.Add(c)
	require.True(t, ok)

	_, ok = s.Add(candidate("https://x/anon", "Anonymous"))
	require.True(t, ok)

	got := s.ByPublisher("pub-1", 10)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Empty(t, s.ByPublisher("pub-2", 10))
}

func TestRetentionEvictsOldest(t *testing.T) {
	s := newTestStore(3, 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var first alert.Alert
	for i := 0; i < 4; i++ {
		c := candidate(fmt.Sprintf("https://x/r%d", i), fmt.Sprintf("Retained %d", i))
		c.PublishedAt = base.Add(time.Duration(i) * time.Hour)
		a, ok := s.Add(c)
		require.True(t, ok)
		if i == 0 {
			first = a
		}
	}

	stats := s.Stats()
	assert.Equal(t, 3, stats.Total)

	_, ok := s.Get(first.ID)
	assert.False(t, ok, "oldest alert should be evicted")

	recent := s.Recent(0)
	require.Len(t, recent, 3)
	for _, a := range recent {
		assert.NotEqual(t, first.ID, a.ID)
	}
}

func TestEvictedHashStillDeduplicates(t *testing.T) {
	s := newTestStore(1, time.Hour)

	_, ok := s.Add(candidate("https://x/one", "One"))
	require.True(t, ok)
	// Second alert evicts the first row but not its hash.
	c2 := candidate("https://x/two", "Two")
	c2.PublishedAt = time.Now().UTC().Add(time.Minute)
	_, ok = s.Add(c2)
	require.True(t, ok)

	assert.Equal(t, 1, s.Stats().Total)

	_, ok = s.Add(candidate("https://x/one", "One"))
	assert.False(t, ok, "evicted alert's hash must keep rejecting until TTL")
}

func TestHashTTLExpiryAllowsReingest(t *testing.T) {
	s := newTestStore(1, 10*time.Millisecond)

	_, ok := s.Add(candidate("https://x/ttl", "TTL"))
	require.True(t, ok)
	// Push the first row out so only the hash remains.
	c2 := candidate("https://x/other", "Other")
	c2.PublishedAt = time.Now().UTC().Add(time.Minute)
	_, ok = s.Add(c2)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok = s.Add(candidate("https://x/ttl", "TTL"))
	assert.True(t, ok, "hash should expire after TTL")
}

func TestSearch(t *testing.T) {
	s := newTestStore(0, 0)

	c := candidate("https://x/s1", "SEC charges exchange operator")
	c.Summary = "Enforcement action announced today."
	_, ok := s.Add(c)
	require.True(t, ok)

	c2 := candidate("https://x/s2", "Yield spike on lending protocol")
	c2.Summary = "TVL moved sharply."
	_, ok = s.Add(c2)
	require.True(t, ok)

	hits := s.Search("ENFORCEMENT", 10)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Headline, "SEC")

	assert.Empty(t, s.Search("nonexistent", 10))
	assert.Len(t, s.Search("o", 1), 1)
}

func TestStats(t *testing.T) {
	s := newTestStore(0, 0)
	_, _ = s.Add(candidate("https://x/st1", "Stat one"))
	c := candidate("https://x/st2", "Stat two")
	c.Channel = alert.ChannelRegSEC
	_, _ = s.Add(c)

	stats := s.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.UniqueHashes)
	assert.Equal(t, 1, stats.ByChannel[alert.ChannelRegSEC])
	assert.Equal(t, 1, stats.ByChannel[alert.ChannelDeFiYields])
}

func TestConcurrentAddSingleAcceptance(t *testing.T) {
	s := newTestStore(0, 0)

	const workers = 16
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, ok := s.Add(candidate("https://x/race", "Race"))
			results <- ok
		}()
	}

	accepted := 0
	for i := 0; i < workers; i++ {
		if <-results {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted, "exactly one concurrent Add may win")
}
