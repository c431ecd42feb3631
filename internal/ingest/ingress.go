package ingest

import (
	"context"
	"net/url"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/busmirror"
	"github.com/chainsignal/chainsignal/internal/monitoring"
	"github.com/chainsignal/chainsignal/internal/registry"
	"github.com/chainsignal/chainsignal/internal/store"
)

// Publisher submission length floors. The adapter path truncates; the
// publisher path rejects, because an agent can fix its payload.
const (
	minHeadlineLen = 10
	minSummaryLen  = 20
)

// PublishRequest is one publisher-submitted alert.
type PublishRequest struct {
	Channel     alert.Channel   `json:"channel"`
	Priority    alert.Priority  `json:"priority,omitempty"`
	Headline    string          `json:"headline"`
	Summary     string          `json:"summary"`
	SourceURL   string          `json:"sourceUrl"`
	Entities    []string        `json:"entities,omitempty"`
	Tickers     []string        `json:"tickers,omitempty"`
	Tokens      []string        `json:"tokens,omitempty"`
	Sentiment   alert.Sentiment `json:"sentiment,omitempty"`
	ImpactScore *float64        `json:"impactScore,omitempty"`
}

// PublishResult reports the accepted alert and how many subscribers an
// alert frame reached.
type PublishResult struct {
	Alert          alert.Alert `json:"alert"`
	DeliveredCount int         `json:"deliveredCount"`
}

// Ingress is the synchronous publisher path into the store and the
// fabric.
type Ingress struct {
	publishers *registry.Publishers
	store      *store.Store
	fabric     Distributor
	mirror     *busmirror.Mirror
	logger     zerolog.Logger
}

// NewIngress creates the publisher ingress. mirror may be nil.
func NewIngress(publishers *registry.Publishers, st *store.Store, fabric Distributor, mirror *busmirror.Mirror, logger zerolog.Logger) *Ingress {
	return &Ingress{
		publishers: publishers,
		store:      st,
		fabric:     fabric,
		mirror:     mirror,
		logger:     logger,
	}
}

// Publish authenticates the bearer key, validates the submission,
// stores it as an agent-sourced alert and distributes it. Every
// delivered recipient earns the publisher a consumption reward.
func (i *Ingress) Publish(ctx context.Context, bearerKey string, req PublishRequest) (PublishResult, error) {
	pub, ok := i.publishers.Authenticate(bearerKey)
	if !ok {
		monitoring.PublishRequests.WithLabelValues("unauthorized").Inc()
		return PublishResult{}, apperr.New(apperr.Unauthorized, "unknown or suspended API key")
	}

	if err := validatePublish(req); err != nil {
		monitoring.PublishRequests.WithLabelValues("invalid").Inc()
		return PublishResult{}, err
	}

	if !i.publishers.CanPublish(pub.ID, req.Channel) {
		monitoring.PublishRequests.WithLabelValues("forbidden").Inc()
		return PublishResult{}, apperr.Newf(apperr.Forbidden, "publisher %s is not authorized for channel %s", pub.Name, req.Channel).
			WithDetails(map[string]any{"authorizedChannels": pub.Channels})
	}

	candidate := alert.Candidate{
		Channel:       req.Channel,
		Priority:      req.Priority,
		Headline:      req.Headline,
		Summary:       req.Summary,
		Entities:      req.Entities,
		Tickers:       req.Tickers,
		Tokens:        req.Tokens,
		SourceURL:     req.SourceURL,
		SourceType:    alert.SourceAgent,
		Sentiment:     req.Sentiment,
		ImpactScore:   req.ImpactScore,
		PublisherID:   pub.ID,
		PublisherName: pub.Name,
	}

	if ctx.Err() != nil {
		return PublishResult{}, apperr.Wrap(apperr.Transient, "request canceled", ctx.Err())
	}

	accepted, fresh := i.store.Add(candidate)
	if !fresh {
		monitoring.PublishRequests.WithLabelValues("duplicate").Inc()
		return PublishResult{}, apperr.New(apperr.Conflict, "duplicate alert: identical sourceUrl and headline already ingested")
	}
	i.publishers.IncrementPublished(pub.ID)

	delivered := i.fabric.Distribute(accepted)
	for range delivered {
		i.publishers.IncrementConsumed(pub.ID)
	}
	i.mirror.Publish(accepted)

	monitoring.PublishRequests.WithLabelValues("accepted").Inc()
	i.logger.Info().
		Str("alert_id", accepted.ID).
		Str("publisher_id", pub.ID).
		Str("channel", string(accepted.Channel)).
		Int("delivered", len(delivered)).
		Msg("Publisher alert accepted")

	return PublishResult{Alert: accepted, DeliveredCount: len(delivered)}, nil
}

// validatePublish rejects a malformed submission with the offending
// field named. Publisher text is rejected, not truncated, when out of
// bounds.
func validatePublish(req PublishRequest) error {
	if n := utf8.RuneCountInString(req.Headline); n < minHeadlineLen {
		return apperr.Newf(apperr.BadRequest, "headline must be at least %d characters", minHeadlineLen)
	} else if n > alert.MaxHeadlineLen {
		return apperr.Newf(apperr.BadRequest, "headline must be at most %d characters", alert.MaxHeadlineLen)
	}
	if n := utf8.RuneCountInString(req.Summary); n < minSummaryLen {
		return apperr.Newf(apperr.BadRequest, "summary must be at least %d characters", minSummaryLen)
	} else if n > alert.MaxSummaryLen {
		return apperr.Newf(apperr.BadRequest, "summary must be at most %d characters", alert.MaxSummaryLen)
	}
	if !alert.ValidChannel(req.Channel) {
		return apperr.Newf(apperr.BadRequest, "channel %q is not a recognized channel", req.Channel)
	}
	if req.Priority != "" && !alert.ValidPriority(req.Priority) {
		return apperr.Newf(apperr.BadRequest, "priority %q is not one of low, medium, high, critical", req.Priority)
	}
	if !alert.ValidSentiment(req.Sentiment) {
		return apperr.Newf(apperr.BadRequest, "sentiment %q is not one of bullish, bearish, neutral, mixed", req.Sentiment)
	}
	if req.ImpactScore != nil && (*req.ImpactScore < 0 || *req.ImpactScore > 10) {
		return apperr.New(apperr.BadRequest, "impactScore must be between 0 and 10")
	}
	u, err := url.Parse(req.SourceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.BadRequest, "sourceUrl must be an absolute http(s) URL")
	}
	return nil
}
