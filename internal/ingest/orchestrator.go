// Package ingest owns the two paths into the alert store: the
// orchestrator driving the periodic source adapters, and the
// synchronous publisher ingress. Both feed accepted alerts into the
// same store/distribution pair.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/busmirror"
	"github.com/chainsignal/chainsignal/internal/monitoring"
	"github.com/chainsignal/chainsignal/internal/sources"
	"github.com/chainsignal/chainsignal/internal/store"
)

// Distributor is the fan-out the orchestrator hands accepted alerts
// to. Satisfied by *fabric.Fabric.
type Distributor interface {
	Distribute(a alert.Alert) []string
}

// Entry is one configured adapter slot.
type Entry struct {
	Adapter sources.Adapter
	Cadence time.Duration
	Enabled bool
}

// Orchestrator drives each enabled adapter on its own ticker. Ticks
// across adapters are independent; a failed tick never perturbs the
// schedule and missed ticks are not backfilled.
type Orchestrator struct {
	entries []Entry
	store   *store.Store
	fabric  Distributor
	mirror  *busmirror.Mirror
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// New creates the orchestrator. mirror may be nil.
func New(entries []Entry, st *store.Store, fabric Distributor, mirror *busmirror.Mirror, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		entries: entries,
		store:   st,
		fabric:  fabric,
		mirror:  mirror,
		logger:  logger,
	}
}

// Start launches one goroutine per enabled adapter. Each runs an
// immediate first tick, then follows its cadence until ctx cancels.
func (o *Orchestrator) Start(ctx context.Context) {
	for _, e := range o.entries {
		if !e.Enabled || e.Adapter == nil || e.Cadence <= 0 {
			continue
		}
		o.wg.Add(1)
		go o.run(ctx, e)
		o.logger.Info().
			Str("adapter", e.Adapter.Key()).
			Dur("cadence", e.Cadence).
			Msg("Adapter scheduled")
	}
}

// Wait blocks until every adapter goroutine has exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, e Entry) {
	defer o.wg.Done()
	defer monitoring.RecoverPanic(o.logger, "adapter", map[string]any{
		"adapter": e.Adapter.Key(),
	})

	o.Tick(ctx, e.Adapter)

	ticker := time.NewTicker(e.Cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Tick(ctx, e.Adapter)
		}
	}
}

// Tick runs one fetch-ingest-distribute cycle for the adapter.
// Candidates are offered to the store in emission order and accepted
// alerts reach distribution in that same order. Fetch failures are
// absorbed: logged, empty batch, schedule untouched.
func (o *Orchestrator) Tick(ctx context.Context, adapter sources.Adapter) {
	key := adapter.Key()
	monitoring.AdapterTicks.WithLabelValues(key).Inc()

	batch, err := adapter.Fetch(ctx)
	if err != nil {
		monitoring.AdapterFetchErrors.WithLabelValues(key).Inc()
		o.logger.Warn().
			Err(err).
			Str("adapter", key).
			Msg("Adapter fetch failed, skipping tick")
		return
	}
	if len(batch) == 0 {
		return
	}
	monitoring.AdapterCandidates.WithLabelValues(key).Add(float64(len(batch)))

	accepted := 0
	for _, candidate := range batch {
		if ctx.Err() != nil {
			return
		}
		a, ok := o.store.Add(candidate)
		if !ok {
			continue
		}
		accepted++
		o.fabric.Distribute(a)
		o.mirror.Publish(a)
	}

	o.logger.Debug().
		Str("adapter", key).
		Int("candidates", len(batch)).
		Int("accepted", accepted).
		Msg("Adapter tick complete")
}
