// Package alert defines the broker's primary record types: the
// normalized Alert, the pre-acceptance Candidate, and the finite
// enumerations (channel, priority, source type, sentiment) shared by
// every subsystem.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	// MaxHeadlineLen and MaxSummaryLen bound the normalized text fields.
	// Adapter output is truncated to fit; publisher submissions that
	// exceed the bounds are truncated the same way after validation.
	MaxHeadlineLen = 200
	MaxSummaryLen  = 1000
)

// Priority of an alert.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ValidPriority reports whether p is a member of the enumeration.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Sentiment classification derived from source text or declared by a
// publisher.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
	SentimentMixed   Sentiment = "mixed"
)

// ValidSentiment reports whether s is a member of the enumeration.
// The empty string is allowed (sentiment is optional).
func ValidSentiment(s Sentiment) bool {
	switch s {
	case "", SentimentBullish, SentimentBearish, SentimentNeutral, SentimentMixed:
		return true
	}
	return false
}

// SourceType describes the provenance class of an alert.
type SourceType string

const (
	SourceRegulatoryFiling  SourceType = "regulatory_filing"
	SourcePressRelease      SourceType = "press_release"
	SourceEnforcementAction SourceType = "enforcement_action"
	SourceSecurityIncident  SourceType = "security_incident"
	SourceOnChain           SourceType = "on_chain"
	SourceSocial            SourceType = "social"
	SourceNews              SourceType = "news"
	SourceNewsArticle       SourceType = "news_article"
	SourceBlogPost          SourceType = "blog_post"
	SourceProtocol          SourceType = "protocol"
	SourceDeFiData          SourceType = "defi_data"
	SourceAgent             SourceType = "agent"
)

// ValidSourceType reports whether t is a member of the enumeration.
func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceRegulatoryFiling, SourcePressRelease, SourceEnforcementAction,
		SourceSecurityIncident, SourceOnChain, SourceSocial, SourceNews,
		SourceNewsArticle, SourceBlogPost, SourceProtocol, SourceDeFiData,
		SourceAgent:
		return true
	}
	return false
}

// Alert is an accepted, normalized item, routable to subscribers.
type Alert struct {
	ID            string     `json:"alertId"`
	Channel       Channel    `json:"channel"`
	Priority      Priority   `json:"priority"`
	Timestamp     time.Time  `json:"timestamp"`
	Headline      string     `json:"headline"`
	Summary       string     `json:"summary"`
	Entities      []string   `json:"entities"`
	Tickers       []string   `json:"tickers"`
	Tokens        []string   `json:"tokens"`
	SourceURL     string     `json:"sourceUrl"`
	SourceType    SourceType `json:"sourceType"`
	Sentiment     Sentiment  `json:"sentiment,omitempty"`
	ImpactScore   *float64   `json:"impactScore,omitempty"`
	PublisherID   string     `json:"publisherId,omitempty"`
	PublisherName string     `json:"publisherName,omitempty"`
	ContentHash   string     `json:"contentHash"`
}

// Candidate is an adapter or publisher output item before the store
// decides to accept or reject it. It has the shape of an Alert minus
// the identity the store mints at acceptance.
type Candidate struct {
	Channel       Channel
	Priority      Priority
	Headline      string
	Summary       string
	Entities      []string
	Tickers       []string
	Tokens        []string
	SourceURL     string
	SourceType    SourceType
	Sentiment     Sentiment
	ImpactScore   *float64
	PublisherID   string
	PublisherName string

	// PublishedAt is the source's declared publication time, when the
	// source provides one. Zero means "stamp at acceptance".
	PublishedAt time.Time
}

// ContentHash computes the deterministic dedup digest over the
// (sourceUrl, headline) pair. The separator keeps ("a","bc") and
// ("ab","c") distinct.
func ContentHash(sourceURL, headline string) string {
	sum := sha256.Sum256([]byte(sourceURL + "\n" + headline))
	return hex.EncodeToString(sum[:])
}

// Hash returns the candidate's content hash.
func (c *Candidate) Hash() string {
	return ContentHash(c.SourceURL, c.Headline)
}

// Normalize clamps text fields to their limits, de-duplicates the
// entity/ticker/token lists preserving insertion order, and defaults
// priority to medium. Called by the store on every accepted candidate
// so adapter and publisher paths share one normal form.
func (c *Candidate) Normalize() {
	c.Headline = Truncate(c.Headline, MaxHeadlineLen)
	c.Summary = Truncate(c.Summary, MaxSummaryLen)
	c.Entities = dedupeOrdered(c.Entities)
	c.Tickers = dedupeOrdered(c.Tickers)
	c.Tokens = dedupeOrdered(c.Tokens)
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
}

// Truncate shortens s to at most max runes. Truncation operates on
// runes so multi-byte text never gets split mid-character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// dedupeOrdered removes duplicates from a list while preserving the
// first occurrence's position. Comparison is exact (case preserved).
func dedupeOrdered(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// ClampImpact bounds an impact score to [0, 10].
func ClampImpact(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
