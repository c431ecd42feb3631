package alert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterministic(t *testing.T) {
	h1 := ContentHash("https://x/a", "H")
	h2 := ContentHash("https://x/a", "H")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)

	// Separator keeps boundary-shifted pairs distinct.
	assert.NotEqual(t, ContentHash("ab", "c"), ContentHash("a", "bc"))
	assert.NotEqual(t, h1, ContentHash("https://x/a", "h"))
}

func TestNormalizeTruncatesAndDedupes(t *testing.T) {
	c := &Candidate{
		Headline: strings.Repeat("h", MaxHeadlineLen+50),
		Summary:  strings.Repeat("s", MaxSummaryLen+1),
		Entities: []string{"SEC", "SEC", " Fed ", "SEC"},
		Tickers:  []string{"BTC", "ETH", "BTC", ""},
		Tokens:   []string{"USDC"},
	}
	c.Normalize()

	assert.Len(t, c.Headline, MaxHeadlineLen)
	assert.Len(t, c.Summary, MaxSummaryLen)
	assert.Equal(t, []string{"SEC", "Fed"}, c.Entities)
	assert.Equal(t, []string{"BTC", "ETH"}, c.Tickers)
	assert.Equal(t, []string{"USDC"}, c.Tokens)
	assert.Equal(t, PriorityMedium, c.Priority)
}

func TestTruncateRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 10)
	got := Truncate(s, 4)
	assert.Equal(t, strings.Repeat("é", 4), got)

	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}

func TestValidChannel(t *testing.T) {
	valid := []Channel{
		"regulatory/sec", "regulatory/fed", "defi/yields",
		"networks/solana", "markets/liquidations",
		"news/banking", "news/rwa-tokenization", "exchanges/binance",
	}
	for _, ch := range valid {
		assert.True(t, ValidChannel(ch), "expected valid: %s", ch)
	}

	invalid := []Channel{
		"", "defi", "defi/", "defi/Yields", "regulatory/sec/extra",
		"news/", "news/Upper", "news/two/segments", "random/thing",
	}
	for _, ch := range invalid {
		assert.False(t, ValidChannel(ch), "expected invalid: %s", ch)
	}
}

func TestValidChannels(t *testing.T) {
	assert.False(t, ValidChannels(nil))
	assert.False(t, ValidChannels([]Channel{"defi/yields", "nope"}))
	assert.True(t, ValidChannels([]Channel{"defi/yields", "news/banking"}))
}

func TestEnumMembership(t *testing.T) {
	assert.True(t, ValidPriority(PriorityCritical))
	assert.False(t, ValidPriority("urgent"))

	assert.True(t, ValidSentiment(""))
	assert.True(t, ValidSentiment(SentimentMixed))
	assert.False(t, ValidSentiment("moonish"))

	assert.True(t, ValidSourceType(SourceAgent))
	assert.False(t, ValidSourceType("rumor"))
}

func TestClampImpact(t *testing.T) {
	assert.Equal(t, 0.0, ClampImpact(-3))
	assert.Equal(t, 10.0, ClampImpact(42))
	assert.Equal(t, 7.5, ClampImpact(7.5))
}
