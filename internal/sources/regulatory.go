package sources

import (
	"context"
	"strings"
	"time"

	"github.com/chainsignal/chainsignal/internal/alert"
)

// regulatoryImpactBase seeds the impact score for regulator output;
// agency statements move markets harder than general news.
const regulatoryImpactBase = 6

// regulatoryItem is one press-feed entry.
type regulatoryItem struct {
	Agency      string `json:"agency"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	Category    string `json:"category"` // press, enforcement, rulemaking
	PublishedAt string `json:"publishedAt"`
}

type regulatoryFeed struct {
	Items []regulatoryItem `json:"items"`
}

// RegulatoryAdapter polls an aggregated regulator press feed and maps
// each item onto the agency's channel.
type RegulatoryAdapter struct {
	fetcher *Fetcher
	url     string
	mock    bool
}

func NewRegulatoryAdapter(fetcher *Fetcher, url string, mock bool) *RegulatoryAdapter {
	return &RegulatoryAdapter{fetcher: fetcher, url: url, mock: mock}
}

func (a *RegulatoryAdapter) Key() string { return "regulatory" }

func (a *RegulatoryAdapter) Fetch(ctx context.Context) ([]alert.Candidate, error) {
	var feed regulatoryFeed
	if a.mock {
		feed.Items = mockRegulatoryItems
	} else if err := a.fetcher.GetJSON(ctx, a.url, &feed); err != nil {
		return nil, err
	}

	out := make([]alert.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		headline := CleanText(item.Title)
		if headline == "" || item.URL == "" {
			continue
		}
		summary := CleanText(item.Summary)
		text := headline + " " + summary

		c := alert.Candidate{
			Channel:     agencyChannel(item.Agency),
			Priority:    regulatoryPriority(item.Category),
			Headline:    headline,
			Summary:     summary,
			Entities:    ExtractEntities(text),
			Tickers:     ExtractTickers(text),
			SourceURL:   item.URL,
			SourceType:  regulatorySourceType(item.Category),
			Sentiment:   ScoreSentiment(text),
			ImpactScore: impactPtr(ScoreImpact(regulatoryImpactBase, text)),
			PublishedAt: parseFeedTime(item.PublishedAt),
		}
		out = append(out, c)
	}
	return out, nil
}

// agencyChannel maps the feed's agency tag onto the regulatory channel
// surface; unknown agencies aggregate under regulatory/global.
func agencyChannel(agency string) alert.Channel {
	switch strings.ToUpper(strings.TrimSpace(agency)) {
	case "SEC":
		return alert.ChannelRegSEC
	case "CFTC":
		return alert.ChannelRegCFTC
	case "FED", "FRB", "FEDERAL RESERVE":
		return alert.ChannelRegFed
	default:
		return alert.ChannelRegGlobal
	}
}

func regulatorySourceType(category string) alert.SourceType {
	switch strings.ToLower(category) {
	case "enforcement":
		return alert.SourceEnforcementAction
	case "rulemaking":
		return alert.SourceRegulatoryFiling
	default:
		return alert.SourcePressRelease
	}
}

func regulatoryPriority(category string) alert.Priority {
	if strings.ToLower(category) == "enforcement" {
		return alert.PriorityHigh
	}
	return alert.PriorityMedium
}

// parseFeedTime accepts RFC3339; anything else means "stamp at
// acceptance".
func parseFeedTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

var mockRegulatoryItems = []regulatoryItem{
	{
		Agency:      "SEC",
		Title:       "SEC charges crypto lending platform with unregistered securities offering",
		Summary:     "The enforcement action alleges the platform raised over $300 million from retail investors without registration.",
		URL:         "https://example.org/sec/press/2026-41",
		Category:    "enforcement",
		PublishedAt: "2026-08-20T14:30:00Z",
	},
	{
		Agency:      "CFTC",
		Title:       "CFTC approves expanded digital asset derivatives framework",
		Summary:     "The approved framework clarifies margin treatment for listed BTC and ETH futures.",
		URL:         "https://example.org/cftc/press/2026-17",
		Category:    "rulemaking",
		PublishedAt: "2026-08-20T12:00:00Z",
	},
	{
		Agency:      "FED",
		Title:       "Federal Reserve publishes guidance on bank stablecoin reserve custody",
		Summary:     "Supervised institutions receive updated expectations for stablecoin reserve attestation.",
		URL:         "https://example.org/fed/press/2026-08",
		Category:    "press",
		PublishedAt: "2026-08-19T18:00:00Z",
	},
}
