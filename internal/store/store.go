// Package store implements the alert store: a content-addressed dedup
// index, a bounded retained log ordered by timestamp, and channel /
// publisher indexes for the query surface.
//
// The store follows a single-writer logical model: every mutation is
// serialized behind one mutex, so the dedup check and the insert are
// one atomic step and the retention trim never races an Add.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/monitoring"
)

const (
	// DefaultMaxAlerts is the retained-log cap when none is configured.
	DefaultMaxAlerts = 10000
	// DefaultHashTTL keeps dedup decisions stable across short
	// retention windows: an evicted alert's hash still rejects
	// re-ingestion until the TTL lapses.
	DefaultHashTTL = 7 * 24 * time.Hour
)

// Options configures a Store.
type Options struct {
	MaxAlerts int
	HashTTL   time.Duration
	Logger    zerolog.Logger
}

// Store is the process-wide alert store.
type Store struct {
	mu sync.RWMutex

	byID        map[string]*alert.Alert
	ordered     []*alert.Alert                 // ascending by Timestamp
	byChannel   map[alert.Channel][]*alert.Alert
	byPublisher map[string][]*alert.Alert

	// hashes is the TTL-bounded dedup index (contentHash -> creation
	// time). Entries outlive their alert rows on purpose.
	hashes *gocache.Cache

	maxAlerts int
	logger    zerolog.Logger
}

// New creates a Store.
func New(opts Options) *Store {
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	if opts.HashTTL <= 0 {
		opts.HashTTL = DefaultHashTTL
	}
	return &Store{
		byID:        make(map[string]*alert.Alert),
		byChannel:   make(map[alert.Channel][]*alert.Alert),
		byPublisher: make(map[string][]*alert.Alert),
		hashes:      gocache.New(opts.HashTTL, opts.HashTTL/2),
		maxAlerts:   opts.MaxAlerts,
		logger:      opts.Logger,
	}
}

// Add offers a candidate to the store. It computes the content hash,
// rejects duplicates with (zero, false), otherwise mints the alert id,
// stamps the timestamp (source-declared publication time wins when
// present), persists the row plus the hash, trims retention, and
// returns the accepted alert.
func (s *Store) Add(c alert.Candidate) (alert.Alert, bool) {
	c.Normalize()
	hash := c.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.hashes.Get(hash); dup {
		monitoring.AlertsDuplicate.Inc()
		return alert.Alert{}, false
	}

	ts := c.PublishedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	a := &alert.Alert{
		ID:            uuid.NewString(),
		Channel:       c.Channel,
		Priority:      c.Priority,
		Timestamp:     ts,
		Headline:      c.Headline,
		Summary:       c.Summary,
		Entities:      c.Entities,
		Tickers:       c.Tickers,
		Tokens:        c.Tokens,
		SourceURL:     c.SourceURL,
		SourceType:    c.SourceType,
		Sentiment:     c.Sentiment,
		ImpactScore:   c.ImpactScore,
		PublisherID:   c.PublisherID,
		PublisherName: c.PublisherName,
		ContentHash:   hash,
	}

	s.byID[a.ID] = a
	s.ordered = insertByTime(s.ordered, a)
	s.byChannel[a.Channel] = insertByTime(s.byChannel[a.Channel], a)
	if a.PublisherID != "" {
		s.byPublisher[a.PublisherID] = insertByTime(s.byPublisher[a.PublisherID], a)
	}
	s.hashes.SetDefault(hash, ts)

	monitoring.AlertsIngested.WithLabelValues(string(a.SourceType)).Inc()

	s.trimLocked()

	return *a, true
}

// trimLocked evicts oldest-by-timestamp rows until the count is within
// the cap. The hash entries are left to expire on their own TTL.
func (s *Store) trimLocked() {
	for len(s.ordered) > s.maxAlerts {
		victim := s.ordered[0]
		s.ordered = s.ordered[1:]
		delete(s.byID, victim.ID)
		s.byChannel[victim.Channel] = removeAlert(s.byChannel[victim.Channel], victim)
		if len(s.byChannel[victim.Channel]) == 0 {
			delete(s.byChannel, victim.Channel)
		}
		if victim.PublisherID != "" {
			s.byPublisher[victim.PublisherID] = removeAlert(s.byPublisher[victim.PublisherID], victim)
			if len(s.byPublisher[victim.PublisherID]) == 0 {
				delete(s.byPublisher, victim.PublisherID)
			}
		}
		monitoring.AlertsEvicted.Inc()
		if e := s.logger.Debug(); e.Enabled() {
			e.Str("alert_id", victim.ID).
				Time("timestamp", victim.Timestamp).
				Msg("Evicted alert past retention cap")
		}
	}
}

// Get returns the alert with the given id, or false.
func (s *Store) Get(id string) (alert.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return alert.Alert{}, false
	}
	return *a, true
}

// ByChannel returns up to limit live alerts on the channel,
// most-recent first.
func (s *Store) ByChannel(ch alert.Channel, limit int) []alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.byChannel[ch], limit)
}

// ByPublisher returns up to limit live alerts from the publisher,
// most-recent first.
func (s *Store) ByPublisher(publisherID string, limit int) []alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.byPublisher[publisherID], limit)
}

// Recent returns up to limit live alerts across all channels,
// most-recent first.
func (s *Store) Recent(limit int) []alert.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.ordered, limit)
}

// Search returns up to limit live alerts whose headline or summary
// contains the substring, case-insensitively, most-recent first.
func (s *Store) Search(substring string, limit int) []alert.Alert {
	needle := strings.ToLower(substring)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Alert, 0, limit)
	for i := len(s.ordered) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		a := s.ordered[i]
		if strings.Contains(strings.ToLower(a.Headline), needle) ||
			strings.Contains(strings.ToLower(a.Summary), needle) {
			out = append(out, *a)
		}
	}
	return out
}

// Stats summarizes store contents.
type Stats struct {
	Total        int                   `json:"total"`
	UniqueHashes int                   `json:"uniqueHashes"`
	ByChannel    map[alert.Channel]int `json:"byChannel"`
}

// Stats returns counts of live rows and tracked hashes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCh := make(map[alert.Channel]int, len(s.byChannel))
	for ch, rows := range s.byChannel {
		byCh[ch] = len(rows)
	}
	return Stats{
		Total:        len(s.ordered),
		UniqueHashes: s.hashes.ItemCount(),
		ByChannel:    byCh,
	}
}

// insertByTime inserts a into rows keeping ascending timestamp order.
// Equal timestamps keep acceptance order (new row goes after).
func insertByTime(rows []*alert.Alert, a *alert.Alert) []*alert.Alert {
	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].Timestamp.After(a.Timestamp)
	})
	rows = append(rows, nil)
	copy(rows[i+1:], rows[i:])
	rows[i] = a
	return rows
}

func removeAlert(rows []*alert.Alert, a *alert.Alert) []*alert.Alert {
	for i, r := range rows {
		if r == a {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

// newestFirst copies up to limit rows from the tail of a
// timestamp-ascending slice, newest first. limit <= 0 means all.
func newestFirst(rows []*alert.Alert, limit int) []alert.Alert {
	n := len(rows)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]alert.Alert, 0, n)
	for i := len(rows) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *rows[i])
	}
	return out
}
