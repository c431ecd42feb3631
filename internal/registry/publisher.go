package registry

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
)

const (
	// apiKeyPrefix is the plaintext key scheme: csk_<32 hex chars>
	// (128 bits of entropy). Only the SHA-256 digest and the first
	// keyPrefixLen characters are retained.
	apiKeyScheme = "csk_"
	keyPrefixLen = 12

	// suspensionThreshold: a reputation below this suspends the
	// publisher; suspended publishers fail authentication.
	suspensionThreshold = 10.0
	// consumptionReward is added to reputation per consumed delivery.
	consumptionReward = 0.1
	initialReputation = 50.0
)

// Publisher is the externally visible publisher record. The API key
// digest never leaves the registry; PublisherWithKey carries the
// plaintext exactly once, at registration.
type Publisher struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	APIKeyPrefix    string          `json:"apiKeyPrefix"`
	Channels        []alert.Channel `json:"channels"`
	Status          string          `json:"status"`
	ReputationScore float64         `json:"reputationScore"`
	AlertsPublished int64           `json:"alertsPublished"`
	AlertsConsumed  int64           `json:"alertsConsumed"`
	Stake           decimal.Decimal `json:"stake"`
	WalletAddress   string          `json:"walletAddress,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// PublisherWithKey is the registration response: the record plus the
// one-time plaintext key.
type PublisherWithKey struct {
	Publisher
	APIKey string `json:"apiKey"`
}

// Publisher status values.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

type publisher struct {
	mu          sync.Mutex
	id          string
	name        string
	description string
	keyPrefix   string
	channels    mapset.Set[alert.Channel]
	suspended   bool
	reputation  float64
	published   int64
	consumed    int64
	stake       decimal.Decimal
	wallet      string
	createdAt   time.Time
}

func (p *publisher) snapshot() Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	chs := p.channels.ToSlice()
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	status := StatusActive
	if p.suspended {
		status = StatusSuspended
	}
	return Publisher{
		ID:              p.id,
		Name:            p.name,
		Description:     p.description,
		APIKeyPrefix:    p.keyPrefix,
		Channels:        chs,
		Status:          status,
		ReputationScore: p.reputation,
		AlertsPublished: p.published,
		AlertsConsumed:  p.consumed,
		Stake:           p.stake,
		WalletAddress:   p.wallet,
		CreatedAt:       p.createdAt,
	}
}

// RegisterPublisherRequest is the Register input.
type RegisterPublisherRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Channels      []alert.Channel `json:"channels"`
	WalletAddress string          `json:"walletAddress,omitempty"`
}

// Publishers is the publisher registry.
type Publishers struct {
	mu       sync.RWMutex
	byID     map[string]*publisher
	byDigest map[string]*publisher
	byName   map[string]*publisher // key: lowercased name
	byWallet map[string]*publisher

	logger zerolog.Logger
}

// NewPublishers creates the registry.
func NewPublishers(logger zerolog.Logger) *Publishers {
	return &Publishers{
		byID:     make(map[string]*publisher),
		byDigest: make(map[string]*publisher),
		byName:   make(map[string]*publisher),
		byWallet: make(map[string]*publisher),
		logger:   logger,
	}
}

// Register creates a publisher and returns it with the plaintext API
// key. The key is generated server-side, its digest stored, and the
// plaintext never retained. Duplicate names (case-insensitive) and
// wallets are Conflict errors.
func (r *Publishers) Register(req RegisterPublisherRequest) (PublisherWithKey, error) {
	if strings.TrimSpace(req.Name) == "" {
		return PublisherWithKey{}, apperr.New(apperr.BadRequest, "name is required")
	}
	if !alert.ValidChannels(req.Channels) {
		return PublisherWithKey{}, apperr.New(apperr.BadRequest, "channels must be a non-empty list of valid channels")
	}

	plaintext, digest, err := generateKey()
	if err != nil {
		return PublisherWithKey{}, apperr.Wrap(apperr.Internal, "key generation failed", err)
	}

	pub := &publisher{
		id:          uuid.NewString(),
		name:        strings.TrimSpace(req.Name),
		description: req.Description,
		keyPrefix:   plaintext[:keyPrefixLen],
		channels:    mapset.NewSet(req.Channels...),
		reputation:  initialReputation,
		stake:       decimal.Zero,
		wallet:      req.WalletAddress,
		createdAt:   time.Now().UTC(),
	}

	nameKey := strings.ToLower(pub.name)

	r.mu.Lock()
	if _, taken := r.byName[nameKey]; taken {
		r.mu.Unlock()
		return PublisherWithKey{}, apperr.Newf(apperr.Conflict, "publisher name %q already registered", pub.name)
	}
	if req.WalletAddress != "" {
		if _, taken := r.byWallet[req.WalletAddress]; taken {
			r.mu.Unlock()
			return PublisherWithKey{}, apperr.New(apperr.Conflict, "wallet already registered")
		}
		r.byWallet[req.WalletAddress] = pub
	}
	r.byID[pub.id] = pub
	r.byDigest[digest] = pub
	r.byName[nameKey] = pub
	r.mu.Unlock()

	r.logger.Info().
		Str("publisher_id", pub.id).
		Str("name", pub.name).
		Str("key_prefix", pub.keyPrefix).
		Int("channel_count", len(req.Channels)).
		Msg("Publisher registered")

	return PublisherWithKey{Publisher: pub.snapshot(), APIKey: plaintext}, nil
}

// Authenticate resolves a bearer key to an active publisher. Unknown
// keys and suspended publishers both come back (zero, false).
func (r *Publishers) Authenticate(bearerKey string) (Publisher, bool) {
	digest := digestOf(bearerKey)

	r.mu.RLock()
	pub := r.byDigest[digest]
	r.mu.RUnlock()
	if pub == nil {
		return Publisher{}, false
	}

	pub.mu.Lock()
	suspended := pub.suspended
	pub.mu.Unlock()
	if suspended {
		return Publisher{}, false
	}
	return pub.snapshot(), true
}

// CanPublish reports whether the publisher exists, is active, and is
// authorized for the channel.
func (r *Publishers) CanPublish(publisherID string, ch alert.Channel) bool {
	r.mu.RLock()
	pub := r.byID[publisherID]
	r.mu.RUnlock()
	if pub == nil {
		return false
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	return !pub.suspended && pub.channels.Contains(ch)
}

// Get returns the publisher with the given id.
func (r *Publishers) Get(id string) (Publisher, bool) {
	r.mu.RLock()
	pub := r.byID[id]
	r.mu.RUnlock()
	if pub == nil {
		return Publisher{}, false
	}
	return pub.snapshot(), true
}

// IncrementPublished bumps the published counter.
func (r *Publishers) IncrementPublished(publisherID string) {
	r.mu.RLock()
	pub := r.byID[publisherID]
	r.mu.RUnlock()
	if pub == nil {
		return
	}
	pub.mu.Lock()
	pub.published++
	pub.mu.Unlock()
}

// IncrementConsumed bumps the consumed counter and rewards reputation,
// capped at 100.
func (r *Publishers) IncrementConsumed(publisherID string) {
	r.mu.RLock()
	pub := r.byID[publisherID]
	r.mu.RUnlock()
	if pub == nil {
		return
	}
	pub.mu.Lock()
	pub.consumed++
	pub.reputation = min(100, pub.reputation+consumptionReward)
	pub.mu.Unlock()
}

// AdjustReputation applies delta, clamped to [0, 100]. A result below
// the suspension threshold suspends the publisher.
func (r *Publishers) AdjustReputation(publisherID string, delta float64) (Publisher, error) {
	r.mu.RLock()
	pub := r.byID[publisherID]
	r.mu.RUnlock()
	if pub == nil {
		return Publisher{}, apperr.Newf(apperr.NotFound, "no publisher %s", publisherID)
	}

	pub.mu.Lock()
	pub.reputation = min(100, max(0, pub.reputation+delta))
	if pub.reputation < suspensionThreshold && !pub.suspended {
		pub.suspended = true
		r.logger.Warn().
			Str("publisher_id", pub.id).
			Str("name", pub.name).
			Float64("reputation", pub.reputation).
			Msg("Publisher suspended for low reputation")
	}
	pub.mu.Unlock()

	return pub.snapshot(), nil
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank      int `json:"rank"`
	Publisher `json:"publisher"`
}

// Leaderboard returns up to limit publishers ordered by alertsConsumed
// descending, rank 1-indexed. Ties break by name for stable output.
func (r *Publishers) Leaderboard(limit int) []LeaderboardEntry {
	r.mu.RLock()
	all := make([]Publisher, 0, len(r.byID))
	for _, pub := range r.byID {
		all = append(all, pub.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].AlertsConsumed != all[j].AlertsConsumed {
			return all[i].AlertsConsumed > all[j].AlertsConsumed
		}
		return all[i].Name < all[j].Name
	})

	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]LeaderboardEntry, len(all))
	for i, p := range all {
		out[i] = LeaderboardEntry{Rank: i + 1, Publisher: p}
	}
	return out
}

// List returns every publisher, name-ordered.
func (r *Publishers) List() []Publisher {
	r.mu.RLock()
	out := make([]Publisher, 0, len(r.byID))
	for _, pub := range r.byID {
		out = append(out, pub.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func generateKey() (plaintext, digest string, err error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plaintext = apiKeyScheme + hex.EncodeToString(raw)
	return plaintext, digestOf(plaintext), nil
}

func digestOf(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
