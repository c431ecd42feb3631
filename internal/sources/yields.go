package sources

import (
	"context"
	"fmt"
	"math"

	"github.com/chainsignal/chainsignal/internal/alert"
)

const (
	yieldsImpactBase = 5
	// DefaultYieldChangeThreshold is the relative APY move that
	// warrants an alert.
	DefaultYieldChangeThreshold = 0.25
)

type yieldPool struct {
	Pool    string  `json:"pool"`
	Project string  `json:"project"`
	Chain   string  `json:"chain"`
	Symbol  string  `json:"symbol"`
	APY     float64 `json:"apy"`
	TVLUSD  float64 `json:"tvlUsd"`
}

type yieldsFeed struct {
	Pools []yieldPool `json:"pools"`
}

// YieldsAdapter watches DeFi pool APYs and emits a candidate only when
// a pool's rate moves by more than the threshold relative to the last
// observed value. The previous-value table lives on the instance: a
// restart re-seeds it, so the first tick after startup observes
// without emitting.
type YieldsAdapter struct {
	fetcher   *Fetcher
	url       string
	mock      bool
	threshold float64

	previous map[string]float64
}

func NewYieldsAdapter(fetcher *Fetcher, url string, threshold float64, mock bool) *YieldsAdapter {
	if threshold <= 0 {
		threshold = DefaultYieldChangeThreshold
	}
	return &YieldsAdapter{
		fetcher:   fetcher,
		url:       url,
		mock:      mock,
		threshold: threshold,
		previous:  make(map[string]float64),
	}
}

func (a *YieldsAdapter) Key() string { return "defi-yields" }

func (a *YieldsAdapter) Fetch(ctx context.Context) ([]alert.Candidate, error) {
	var feed yieldsFeed
	if a.mock {
		feed.Pools = mockYieldPools
	} else if err := a.fetcher.GetJSON(ctx, a.url, &feed); err != nil {
		return nil, err
	}

	var out []alert.Candidate
	for _, pool := range feed.Pools {
		if pool.Pool == "" || pool.APY < 0 {
			continue
		}
		prev, seen := a.previous[pool.Pool]
		a.previous[pool.Pool] = pool.APY
		if !seen || prev == 0 {
			continue
		}

		change := (pool.APY - prev) / prev
		if math.Abs(change) < a.threshold {
			continue
		}

		direction := "jumped"
		sentiment := alert.SentimentBullish
		if change < 0 {
			direction = "dropped"
			sentiment = alert.SentimentBearish
		}
		headline := fmt.Sprintf("%s %s pool APY %s %.1f%% to %.2f%%",
			pool.Project, pool.Symbol, direction, math.Abs(change)*100, pool.APY)
		summary := fmt.Sprintf("APY on %s (%s) moved from %.2f%% to %.2f%% with $%.0fM TVL.",
			pool.Project, pool.Chain, prev, pool.APY, pool.TVLUSD/1e6)

		out = append(out, alert.Candidate{
			Channel:     alert.ChannelDeFiYields,
			Priority:    yieldPriority(change),
			Headline:    headline,
			Summary:     summary,
			Entities:    ExtractEntities(pool.Project),
			Tickers:     ExtractTickers(pool.Symbol),
			Tokens:      []string{pool.Symbol},
			SourceURL:   fmt.Sprintf("https://yields.chainsignal.dev/pools/%s", pool.Pool),
			SourceType:  alert.SourceDeFiData,
			Sentiment:   sentiment,
			ImpactScore: impactPtr(alert.ClampImpact(yieldsImpactBase + math.Abs(change)*4)),
		})
	}
	return out, nil
}

// yieldPriority escalates with the magnitude of the move.
func yieldPriority(change float64) alert.Priority {
	switch abs := math.Abs(change); {
	case abs >= 1.0:
		return alert.PriorityCritical
	case abs >= 0.5:
		return alert.PriorityHigh
	default:
		return alert.PriorityMedium
	}
}

var mockYieldPools = []yieldPool{
	{Pool: "aave-v3-usdc-eth", Project: "Aave", Chain: "Ethereum", Symbol: "USDC", APY: 4.2, TVLUSD: 820_000_000},
	{Pool: "curve-3pool", Project: "Curve", Chain: "Ethereum", Symbol: "DAI", APY: 2.8, TVLUSD: 410_000_000},
	{Pool: "lido-steth", Project: "Lido", Chain: "Ethereum", Symbol: "ETH", APY: 3.1, TVLUSD: 22_000_000_000},
}
