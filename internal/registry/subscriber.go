// Package registry holds the subscriber and publisher registries:
// identity, channel authorization, balances, counters and status.
// Both registries are process-wide singletons constructed at startup.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/chain"
)

// Subscriber is the externally visible subscriber record.
type Subscriber struct {
	ID             string          `json:"id"`
	Channels       []alert.Channel `json:"channels"`
	Balance        decimal.Decimal `json:"balance"`
	AlertsReceived int64           `json:"alertsReceived"`
	Active         bool            `json:"active"`
	OnChain        bool            `json:"onChain"`
	WalletAddress  string          `json:"walletAddress,omitempty"`
	WebhookURL     string          `json:"webhookUrl,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// subscriber is the internal record. Balance and counter mutations
// happen under the per-subscriber mutex so two concurrent charges can
// never both succeed on a balance that only covers one.
type subscriber struct {
	mu             sync.Mutex
	id             string
	wallet         string
	webhookURL     string
	channels       mapset.Set[alert.Channel]
	balance        decimal.Decimal
	alertsReceived int64
	active         bool
	onChain        bool
	createdAt      time.Time
}

func (s *subscriber) snapshot() Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	chs := s.channels.ToSlice()
	sort.Slice(chs, func(i, j int) bool { return chs[i] < chs[j] })
	return Subscriber{
		ID:             s.id,
		Channels:       chs,
		Balance:        s.balance,
		AlertsReceived: s.alertsReceived,
		Active:         s.active,
		OnChain:        s.onChain,
		WalletAddress:  s.wallet,
		WebhookURL:     s.webhookURL,
		CreatedAt:      s.createdAt,
	}
}

// SubscribeRequest is the Subscribe input.
type SubscribeRequest struct {
	Channels      []alert.Channel `json:"channels"`
	WalletAddress string          `json:"walletAddress,omitempty"`
	WebhookURL    string          `json:"webhookUrl,omitempty"`
}

// Subscribers is the subscriber registry.
type Subscribers struct {
	mu       sync.RWMutex
	byID     map[string]*subscriber
	byWallet map[string]*subscriber

	index  *channelIndex
	state  chain.StateReader // optional; nil when no external mirror
	logger zerolog.Logger
}

// NewSubscribers creates the registry. state may be nil.
func NewSubscribers(state chain.StateReader, logger zerolog.Logger) *Subscribers {
	return &Subscribers{
		byID:     make(map[string]*subscriber),
		byWallet: make(map[string]*subscriber),
		index:    newChannelIndex(),
		state:    state,
		logger:   logger,
	}
}

// Subscribe creates a subscriber. When the wallet already maps to a
// live subscriber it instead replaces that subscriber's channel set
// and returns it (idempotent per wallet). A wallet the external state
// already mirrors comes back with its authoritative balance and
// counters and onChain=true.
func (r *Subscribers) Subscribe(ctx context.Context, req SubscribeRequest) (Subscriber, error) {
	if !alert.ValidChannels(req.Channels) {
		return Subscriber{}, apperr.New(apperr.BadRequest, "channels must be a non-empty list of valid channels")
	}

	if req.WalletAddress != "" {
		r.mu.RLock()
		existing := r.byWallet[req.WalletAddress]
		r.mu.RUnlock()
		if existing != nil {
			return r.updateChannels(existing, req.Channels)
		}
	}

	sub := &subscriber{
		id:         uuid.NewString(),
		wallet:     req.WalletAddress,
		webhookURL: req.WebhookURL,
		channels:   mapset.NewSet(req.Channels...),
		balance:    decimal.Zero,
		active:     true,
		createdAt:  time.Now().UTC(),
	}

	if req.WalletAddress != "" && r.state != nil {
		acct, found, err := r.state.Account(ctx, req.WalletAddress)
		switch {
		case err != nil:
			r.logger.Warn().
				Err(err).
				Str("wallet", req.WalletAddress).
				Msg("Chain state unreachable, creating local-only subscriber")
		case found:
			sub.balance = acct.Balance
			sub.alertsReceived = acct.AlertsReceived
			sub.active = acct.Active
			sub.onChain = true
		}
	}

	r.mu.Lock()
	// Re-check under the write lock; a concurrent Subscribe for the
	// same wallet may have won.
	if req.WalletAddress != "" {
		if existing := r.byWallet[req.WalletAddress]; existing != nil {
			r.mu.Unlock()
			return r.updateChannels(existing, req.Channels)
		}
		r.byWallet[req.WalletAddress] = sub
	}
	r.byID[sub.id] = sub
	r.mu.Unlock()

	if sub.active {
		r.index.add(req.Channels, sub)
	}

	r.logger.Info().
		Str("subscriber_id", sub.id).
		Str("wallet", req.WalletAddress).
		Bool("on_chain", sub.onChain).
		Int("channel_count", len(req.Channels)).
		Msg("Subscriber created")

	return sub.snapshot(), nil
}

// Get returns the subscriber with the given id.
func (r *Subscribers) Get(id string) (Subscriber, bool) {
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return Subscriber{}, false
	}
	return sub.snapshot(), true
}

// GetByWallet returns the subscriber keyed by the wallet address.
func (r *Subscribers) GetByWallet(wallet string) (Subscriber, bool) {
	r.mu.RLock()
	sub := r.byWallet[wallet]
	r.mu.RUnlock()
	if sub == nil {
		return Subscriber{}, false
	}
	return sub.snapshot(), true
}

// ForChannel returns the active subscribers whose channel set contains
// ch, in registration order. The result is a snapshot: concurrent
// updates do not perturb an in-flight fan-out.
func (r *Subscribers) ForChannel(ch alert.Channel) []Subscriber {
	subs := r.index.get(ch)
	out := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		snap := sub.snapshot()
		if snap.Active {
			out = append(out, snap)
		}
	}
	return out
}

// UpdateChannels replaces the subscriber's channel set and re-indexes
// atomically.
func (r *Subscribers) UpdateChannels(id string, channels []alert.Channel) (Subscriber, error) {
	if !alert.ValidChannels(channels) {
		return Subscriber{}, apperr.New(apperr.BadRequest, "channels must be a non-empty list of valid channels")
	}
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return Subscriber{}, apperr.Newf(apperr.NotFound, "no subscriber %s", id)
	}
	return r.updateChannels(sub, channels)
}

func (r *Subscribers) updateChannels(sub *subscriber, channels []alert.Channel) (Subscriber, error) {
	if !alert.ValidChannels(channels) {
		return Subscriber{}, apperr.New(apperr.BadRequest, "channels must be a non-empty list of valid channels")
	}

	sub.mu.Lock()
	former := sub.channels.ToSlice()
	sub.channels = mapset.NewSet(channels...)
	active := sub.active
	sub.mu.Unlock()

	r.index.remove(former, sub)
	if active {
		r.index.add(channels, sub)
	}

	return sub.snapshot(), nil
}

// Charge atomically decrements the balance by amount and increments
// alertsReceived, returning true; with an insufficient balance it
// returns false without side effect. A zero amount (trial mode) always
// succeeds and still counts the delivery.
func (r *Subscribers) Charge(id string, amount decimal.Decimal) bool {
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return false
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active {
		return false
	}
	if sub.balance.Cmp(amount) < 0 {
		return false
	}
	sub.balance = sub.balance.Sub(amount)
	sub.alertsReceived++
	return true
}

// RevertCharge backs out a charge whose delivery never happened (every
// stream died between the charge and the enqueue). Restores the
// balance and the delivery counter.
func (r *Subscribers) RevertCharge(id string, amount decimal.Decimal) {
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return
	}
	sub.mu.Lock()
	sub.balance = sub.balance.Add(amount)
	if sub.alertsReceived > 0 {
		sub.alertsReceived--
	}
	sub.mu.Unlock()
}

// Deposit credits the local balance mirror.
func (r *Subscribers) Deposit(id string, amount decimal.Decimal) (Subscriber, error) {
	if amount.Sign() <= 0 {
		return Subscriber{}, apperr.New(apperr.BadRequest, "amount must be positive")
	}
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return Subscriber{}, apperr.Newf(apperr.NotFound, "no subscriber %s", id)
	}

	sub.mu.Lock()
	sub.balance = sub.balance.Add(amount)
	sub.mu.Unlock()
	return sub.snapshot(), nil
}

// Deactivate marks the subscriber inactive and removes it from the
// channel index. Returns false when the id is unknown.
func (r *Subscribers) Deactivate(id string) bool {
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return false
	}

	sub.mu.Lock()
	sub.active = false
	channels := sub.channels.ToSlice()
	sub.mu.Unlock()

	r.index.remove(channels, sub)
	return true
}

// GetBalance reads the authoritative balance for on-chain subscribers,
// updating the local mirror; when the external state is unreachable it
// returns the last cached value.
func (r *Subscribers) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	r.mu.RLock()
	sub := r.byID[id]
	r.mu.RUnlock()
	if sub == nil {
		return decimal.Zero, apperr.Newf(apperr.NotFound, "no subscriber %s", id)
	}

	sub.mu.Lock()
	onChain, wallet, cached := sub.onChain, sub.wallet, sub.balance
	sub.mu.Unlock()

	if !onChain || r.state == nil {
		return cached, nil
	}

	acct, found, err := r.state.Account(ctx, wallet)
	if err != nil || !found {
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("subscriber_id", id).
				Msg("Chain state unreachable, serving cached balance")
		}
		return cached, nil
	}

	sub.mu.Lock()
	sub.balance = acct.Balance
	sub.mu.Unlock()
	return acct.Balance, nil
}

// Count returns the number of registered subscribers.
func (r *Subscribers) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
