package sources

import (
	"html"
	"regexp"
	"strings"

	"github.com/chainsignal/chainsignal/internal/alert"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	wordPattern       = regexp.MustCompile(`[a-z0-9$-]+`)
)

// CleanText strips markup, decodes HTML entities and collapses
// whitespace runs. Every adapter passes headline and summary text
// through here before truncation.
func CleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokenize lowercases the text and splits it into word tokens.
func tokenize(s string) []string {
	return wordPattern.FindAllString(strings.ToLower(s), -1)
}

// entityVocab maps a lowercase token or phrase to the canonical entity
// name. Membership is tested against the tokenized text; multi-word
// entries are tested as substrings of the lowercased text.
var entityVocab = map[string]string{
	"sec":         "SEC",
	"cftc":        "CFTC",
	"fed":         "Federal Reserve",
	"fdic":        "FDIC",
	"occ":         "OCC",
	"treasury":    "US Treasury",
	"blackrock":   "BlackRock",
	"fidelity":    "Fidelity",
	"jpmorgan":    "JPMorgan",
	"goldman":     "Goldman Sachs",
	"citi":        "Citigroup",
	"binance":     "Binance",
	"coinbase":    "Coinbase",
	"kraken":      "Kraken",
	"tether":      "Tether",
	"circle":      "Circle",
	"ripple":      "Ripple",
	"grayscale":   "Grayscale",
	"microstrategy": "MicroStrategy",
	"aave":        "Aave",
	"uniswap":     "Uniswap",
	"curve":       "Curve",
	"lido":        "Lido",
	"makerdao":    "MakerDAO",
	"chainlink":   "Chainlink",
}

// tickerVocab maps a lowercase token to its uppercase ticker. The $
// prefix form is accepted too.
var tickerVocab = map[string]string{
	"btc":  "BTC",
	"eth":  "ETH",
	"sol":  "SOL",
	"xrp":  "XRP",
	"ada":  "ADA",
	"avax": "AVAX",
	"link": "LINK",
	"algo": "ALGO",
	"hbar": "HBAR",
	"usdc": "USDC",
	"usdt": "USDT",
	"dai":  "DAI",
	"uni":  "UNI",
	"ldo":  "LDO",
	"mkr":  "MKR",
	"crv":  "CRV",
}

// ExtractEntities returns the known entities mentioned in text, in
// first-mention order without duplicates.
func ExtractEntities(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		canonical, ok := entityVocab[tok]
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// ExtractTickers returns the known tickers mentioned in text, in
// first-mention order without duplicates. "$btc" and "btc" both match.
func ExtractTickers(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		tok = strings.TrimPrefix(tok, "$")
		ticker, ok := tickerVocab[tok]
		if !ok {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, ticker)
	}
	return out
}

var bullishWords = map[string]struct{}{
	"surge": {}, "rally": {}, "gain": {}, "gains": {}, "approval": {},
	"approved": {}, "adoption": {}, "launch": {}, "launches": {},
	"partnership": {}, "record": {}, "growth": {}, "bullish": {},
	"inflow": {}, "inflows": {}, "upgrade": {}, "milestone": {},
}

var bearishWords = map[string]struct{}{
	"hack": {}, "hacked": {}, "exploit": {}, "breach": {}, "lawsuit": {},
	"sues": {}, "fine": {}, "fined": {}, "fraud": {}, "collapse": {},
	"crash": {}, "bankruptcy": {}, "liquidation": {}, "liquidations": {},
	"halt": {}, "halts": {}, "outage": {}, "bearish": {}, "outflow": {},
	"outflows": {}, "ban": {}, "bans": {}, "delist": {}, "enforcement": {},
}

// ScoreSentiment classifies text by the sign of the bullish-minus-
// bearish word count. Equal nonzero counts come back mixed; no hits at
// all, neutral.
func ScoreSentiment(text string) alert.Sentiment {
	bullish, bearish := 0, 0
	for _, tok := range tokenize(text) {
		if _, ok := bullishWords[tok]; ok {
			bullish++
		}
		if _, ok := bearishWords[tok]; ok {
			bearish++
		}
	}
	switch {
	case bullish > bearish:
		return alert.SentimentBullish
	case bearish > bullish:
		return alert.SentimentBearish
	case bullish > 0:
		return alert.SentimentMixed
	default:
		return alert.SentimentNeutral
	}
}

// impactKeywords adjust the per-source base impact score; each hit
// applies once however often the word recurs.
var impactKeywords = map[string]float64{
	"hack":        2.5,
	"exploit":     2.5,
	"breach":      2,
	"enforcement": 2,
	"lawsuit":     1.5,
	"bankruptcy":  2.5,
	"collapse":    2,
	"etf":         1.5,
	"approval":    1.5,
	"approved":    1.5,
	"ban":         2,
	"halt":        1.5,
	"emergency":   2,
	"billion":     1,
	"million":     0.5,
	"stablecoin":  0.5,
	"partnership": 0.5,
	"upgrade":     0.5,
}

// ScoreImpact starts from the adapter's base and adds the keyword
// adjustments found in text, clamped to [0, 10].
func ScoreImpact(base float64, text string) float64 {
	score := base
	hit := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		weight, ok := impactKeywords[tok]
		if !ok {
			continue
		}
		if _, dup := hit[tok]; dup {
			continue
		}
		hit[tok] = struct{}{}
		score += weight
	}
	return alert.ClampImpact(score)
}

// Relevant reports whether the normalized text mentions at least one
// of the keywords. General-interest feeds use it to drop off-topic
// items before enrichment.
func Relevant(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// impactPtr boxes a computed score for the optional Alert field.
func impactPtr(score float64) *float64 {
	return &score
}
