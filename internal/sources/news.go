package sources

import (
	"context"
	"strings"

	"github.com/chainsignal/chainsignal/internal/alert"
)

const newsImpactBase = 4

// newsRelevanceKeywords gate general-interest articles: an item that
// mentions none of these is off-topic and dropped before enrichment.
var newsRelevanceKeywords = []string{
	"crypto", "bitcoin", "ethereum", "blockchain", "stablecoin",
	"token", "defi", "web3", "digital asset", "exchange",
}

// networkChannels routes an article that names a chain onto that
// chain's channel; first mention wins.
var networkChannels = []struct {
	keyword string
	channel alert.Channel
}{
	{"solana", alert.ChannelSolana},
	{"ethereum", alert.ChannelEthereum},
	{"canton", alert.ChannelCanton},
	{"hedera", alert.ChannelHedera},
	{"ripple", alert.ChannelRipple},
	{"xrp", alert.ChannelRipple},
	{"avalanche", alert.ChannelAvalanche},
	{"bitcoin", alert.ChannelBitcoin},
	{"chainlink", alert.ChannelChainlink},
	{"algorand", alert.ChannelAlgorand},
}

// exchangeNames route exchange coverage onto per-exchange aggregated
// buckets.
var exchangeNames = []string{"binance", "coinbase", "kraken", "okx", "bybit"}

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

type newsFeed struct {
	Articles []newsArticle `json:"articles"`
}

// NewsAdapter polls a general crypto news feed, drops irrelevant
// items, and routes each article onto a network, exchange or
// aggregated news bucket.
type NewsAdapter struct {
	fetcher *Fetcher
	url     string
	mock    bool
}

func NewNewsAdapter(fetcher *Fetcher, url string, mock bool) *NewsAdapter {
	return &NewsAdapter{fetcher: fetcher, url: url, mock: mock}
}

func (a *NewsAdapter) Key() string { return "news" }

func (a *NewsAdapter) Fetch(ctx context.Context) ([]alert.Candidate, error) {
	var feed newsFeed
	if a.mock {
		feed.Articles = mockNewsArticles
	} else if err := a.fetcher.GetJSON(ctx, a.url, &feed); err != nil {
		return nil, err
	}

	out := make([]alert.Candidate, 0, len(feed.Articles))
	for _, art := range feed.Articles {
		headline := CleanText(art.Title)
		if headline == "" || art.Link == "" {
			continue
		}
		summary := CleanText(art.Description)
		text := headline + " " + summary
		if !Relevant(text, newsRelevanceKeywords) {
			continue
		}

		c := alert.Candidate{
			Channel:     newsChannel(text),
			Headline:    headline,
			Summary:     summary,
			Entities:    ExtractEntities(text),
			Tickers:     ExtractTickers(text),
			SourceURL:   art.Link,
			SourceType:  alert.SourceNewsArticle,
			Sentiment:   ScoreSentiment(text),
			ImpactScore: impactPtr(ScoreImpact(newsImpactBase, text)),
			PublishedAt: parseFeedTime(art.PublishedAt),
		}
		out = append(out, c)
	}
	return out, nil
}

// newsChannel picks the article's channel: a named network wins, then
// a named exchange, then the aggregated markets bucket.
func newsChannel(text string) alert.Channel {
	lower := strings.ToLower(text)
	for _, nc := range networkChannels {
		if strings.Contains(lower, nc.keyword) {
			return nc.channel
		}
	}
	for _, ex := range exchangeNames {
		if strings.Contains(lower, ex) {
			return alert.Channel("exchanges/" + ex)
		}
	}
	return alert.Channel("news/markets")
}

var mockNewsArticles = []newsArticle{
	{
		Title:       "Solana DEX volume hits record as institutional inflows accelerate",
		Description: "Weekly spot volume crossed $40 billion for the first time, driven by new market-maker onboarding.",
		Link:        "https://example.net/articles/solana-dex-record",
		PublishedAt: "2026-08-21T09:15:00Z",
	},
	{
		Title:       "Binance expands proof-of-reserves attestations to 40 assets",
		Description: "The exchange added USDC and LINK to its monthly attestation cycle.",
		Link:        "https://example.net/articles/binance-por",
		PublishedAt: "2026-08-21T08:00:00Z",
	},
	{
		Title:       "Quarterly earnings roundup for regional airlines",
		Description: "Load factors improved across the sector despite fuel costs.",
		Link:        "https://example.net/articles/airlines-q2",
		PublishedAt: "2026-08-21T07:30:00Z",
	},
}
