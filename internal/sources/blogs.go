package sources

import (
	"context"

	"github.com/chainsignal/chainsignal/internal/alert"
)

const blogImpactBase = 3

type blogPost struct {
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type blogFeed struct {
	Posts []blogPost `json:"posts"`
}

// BlogAdapter polls one chain project's engineering/announcement blog.
// The channel is fixed per instance: one adapter per followed network.
type BlogAdapter struct {
	key     string
	channel alert.Channel
	fetcher *Fetcher
	url     string
	mock    bool
}

func NewBlogAdapter(key string, channel alert.Channel, fetcher *Fetcher, url string, mock bool) *BlogAdapter {
	return &BlogAdapter{key: key, channel: channel, fetcher: fetcher, url: url, mock: mock}
}

func (a *BlogAdapter) Key() string { return a.key }

func (a *BlogAdapter) Fetch(ctx context.Context) ([]alert.Candidate, error) {
	var feed blogFeed
	if a.mock {
		feed.Posts = mockBlogPosts
	} else if err := a.fetcher.GetJSON(ctx, a.url, &feed); err != nil {
		return nil, err
	}

	out := make([]alert.Candidate, 0, len(feed.Posts))
	for _, post := range feed.Posts {
		headline := CleanText(post.Title)
		if headline == "" || post.URL == "" {
			continue
		}
		summary := CleanText(post.Excerpt)
		text := headline + " " + summary

		out = append(out, alert.Candidate{
			Channel:     a.channel,
			Priority:    alert.PriorityLow,
			Headline:    headline,
			Summary:     summary,
			Entities:    ExtractEntities(text),
			Tickers:     ExtractTickers(text),
			SourceURL:   post.URL,
			SourceType:  alert.SourceBlogPost,
			Sentiment:   ScoreSentiment(text),
			ImpactScore: impactPtr(ScoreImpact(blogImpactBase, text)),
			PublishedAt: parseFeedTime(post.PublishedAt),
		})
	}
	return out, nil
}

var mockBlogPosts = []blogPost{
	{
		Title:       "Firedancer validator client reaches 1 million TPS in testnet",
		Excerpt:     "The milestone run sustained the load for six hours across 200 nodes.",
		URL:         "https://example.dev/blog/firedancer-milestone",
		PublishedAt: "2026-08-18T16:00:00Z",
	},
	{
		Title:       "Token extensions upgrade ships to mainnet",
		Excerpt:     "Confidential transfers and transfer hooks are now generally available.",
		URL:         "https://example.dev/blog/token-extensions-ga",
		PublishedAt: "2026-08-15T10:00:00Z",
	},
}
