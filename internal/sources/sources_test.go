package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsignal/chainsignal/internal/alert"
)

func testFetcher() *Fetcher {
	return NewFetcher(2*time.Second, "chainsignal-bot/1.0-test")
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "chainsignal-bot")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCleanText(t *testing.T) {
	in := "<p>SEC   charges&nbsp;platform</p>\n<br/>with   fraud"
	assert.Equal(t, "SEC charges platform with fraud", CleanText(in))
}

func TestExtractEntitiesAndTickers(t *testing.T) {
	text := "BlackRock files for SOL ETF as SEC reviews $btc products; BlackRock declined comment"
	assert.Equal(t, []string{"BlackRock", "SEC"}, ExtractEntities(text))
	assert.Equal(t, []string{"SOL", "BTC"}, ExtractTickers(text))
}

func TestScoreSentiment(t *testing.T) {
	assert.Equal(t, alert.SentimentBullish, ScoreSentiment("record inflows as ETF approval fuels rally"))
	assert.Equal(t, alert.SentimentBearish, ScoreSentiment("exchange halts withdrawals after exploit"))
	assert.Equal(t, alert.SentimentNeutral, ScoreSentiment("quarterly report published on schedule"))
	assert.Equal(t, alert.SentimentMixed, ScoreSentiment("rally stalls after hack"))
}

func TestScoreImpactClampsAndDeduplicates(t *testing.T) {
	// "hack" counts once however often it recurs.
	repeat := ScoreImpact(4, "hack hack hack")
	assert.InDelta(t, 6.5, repeat, 0.001)
	assert.Equal(t, 10.0, ScoreImpact(9, "hack exploit bankruptcy"))
	assert.Equal(t, 0.0, ScoreImpact(-5, "nothing notable"))
}

func TestRegulatoryAdapterMapsAgencies(t *testing.T) {
	adapter := NewRegulatoryAdapter(testFetcher(), "", true)
	batch, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 3)

	bySEC := batch[0]
	assert.Equal(t, alert.ChannelRegSEC, bySEC.Channel)
	assert.Equal(t, alert.SourceEnforcementAction, bySEC.SourceType)
	assert.Equal(t, alert.PriorityHigh, bySEC.Priority)
	assert.Contains(t, bySEC.Entities, "SEC")
	assert.False(t, bySEC.PublishedAt.IsZero())

	assert.Equal(t, alert.ChannelRegCFTC, batch[1].Channel)
	assert.Equal(t, alert.SourceRegulatoryFiling, batch[1].SourceType)
	assert.Equal(t, alert.ChannelRegFed, batch[2].Channel)
	assert.Equal(t, alert.SourcePressRelease, batch[2].SourceType)
}

func TestRegulatoryAdapterOverHTTP(t *testing.T) {
	srv := feedServer(t, `{"items":[
		{"agency":"UK FCA","title":"FCA consults on stablecoin rules","summary":"Consultation opens.","url":"https://example.org/fca/1","category":"press","publishedAt":"2026-08-20T10:00:00Z"},
		{"agency":"SEC","title":"","summary":"missing title","url":"https://example.org/sec/bad"}
	]}`)

	adapter := NewRegulatoryAdapter(testFetcher(), srv.URL, false)
	batch, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, alert.ChannelRegGlobal, batch[0].Channel)
}

func TestAdapterAbsorbsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	adapter := NewRegulatoryAdapter(testFetcher(), srv.URL, false)
	batch, err := adapter.Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, batch)
}

func TestNewsAdapterRelevanceAndRouting(t *testing.T) {
	adapter := NewNewsAdapter(testFetcher(), "", true)
	batch, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	// The airline article carries no crypto keyword and is dropped.
	require.Len(t, batch, 2)

	assert.Equal(t, alert.ChannelSolana, batch[0].Channel)
	assert.Equal(t, alert.Channel("exchanges/binance"), batch[1].Channel)
	for _, c := range batch {
		assert.Equal(t, alert.SourceNewsArticle, c.SourceType)
	}
}

func TestNewsAdapterFallbackBucket(t *testing.T) {
	srv := feedServer(t, `{"articles":[
		{"title":"Stablecoin settlement volume doubles year over year","description":"Payments adoption grows.","link":"https://example.net/a/1","publishedAt":"2026-08-21T06:00:00Z"}
	]}`)

	adapter := NewNewsAdapter(testFetcher(), srv.URL, false)
	batch, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, alert.Channel("news/markets"), batch[0].Channel)
	assert.True(t, alert.ValidChannel(batch[0].Channel))
}

func TestYieldsAdapterWarmupAndThreshold(t *testing.T) {
	apy := 4.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pools":[{"pool":"aave-v3-usdc","project":"Aave","chain":"Ethereum","symbol":"USDC","apy":` +
			strconv.FormatFloat(apy, 'f', -1, 64) + `,"tvlUsd":800000000}]}`))
	}))
	t.Cleanup(srv.Close)

	adapter := NewYieldsAdapter(testFetcher(), srv.URL, 0.25, false)
	ctx := context.Background()

	// Warm-up tick observes, never emits.
	batch, err := adapter.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// A 10% move stays under the threshold.
	apy = 4.4
	batch, err = adapter.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// A 50% move over the last observed value emits.
	apy = 6.6
	batch, err = adapter.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	c := batch[0]
	assert.Equal(t, alert.ChannelDeFiYields, c.Channel)
	assert.Equal(t, alert.SourceDeFiData, c.SourceType)
	assert.Equal(t, alert.SentimentBullish, c.Sentiment)
	assert.Equal(t, alert.PriorityHigh, c.Priority)
	assert.Contains(t, c.Headline, "Aave")

	// The table advanced: repeating the same value stays silent.
	batch, err = adapter.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestYieldsAdapterBearishDrop(t *testing.T) {
	adapter := NewYieldsAdapter(testFetcher(), "", DefaultYieldChangeThreshold, true)
	ctx := context.Background()

	_, err := adapter.Fetch(ctx)
	require.NoError(t, err)

	// Second mock tick sees identical values: no emission.
	batch, err := adapter.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)

	// Force a drop through the instance table.
	adapter.previous["aave-v3-usdc-eth"] = 10.0
	batch, err = adapter.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, alert.SentimentBearish, batch[0].Sentiment)
	assert.Contains(t, batch[0].Headline, "dropped")
}

func TestBlogAdapter(t *testing.T) {
	adapter := NewBlogAdapter("solana-blog", alert.ChannelSolana, testFetcher(), "", true)
	batch, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	for _, c := range batch {
		assert.Equal(t, alert.ChannelSolana, c.Channel)
		assert.Equal(t, alert.SourceBlogPost, c.SourceType)
		assert.Equal(t, alert.PriorityLow, c.Priority)
	}
}
