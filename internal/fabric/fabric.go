// Package fabric is the distribution fabric: it holds the live set of
// subscriber streams and fans each accepted alert out to every stream
// whose subscriber is on the alert's channel, charging per delivery
// and emitting flow-control frames.
//
// The fan-out is a short synchronous section inside the calling tick
// or publish request: every enqueue is non-blocking, so one slow
// consumer can never stall another recipient.
package fabric

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/monitoring"
	"github.com/chainsignal/chainsignal/internal/registry"
)

const (
	// DefaultBufferFrames is the per-stream outbound buffer size.
	DefaultBufferFrames = 64
	// DefaultBackpressureInterval consolidates BACKPRESSURE warnings
	// per slow stream.
	DefaultBackpressureInterval = 5 * time.Second
)

// Options configures a Fabric.
type Options struct {
	// Price is the per-delivery charge. Zero means trial mode: the
	// charge side effect is skipped but deliveries are still counted.
	Price decimal.Decimal

	BufferFrames         int
	BackpressureInterval time.Duration
	MaxStreams           int

	Logger zerolog.Logger
}

// Fabric is the process-wide distribution fabric.
type Fabric struct {
	mu      sync.RWMutex
	streams map[string][]*Stream // subscriberID -> live streams

	nextStreamID atomic.Int64
	streamCount  atomic.Int64

	subscribers *registry.Subscribers
	opts        Options
	logger      zerolog.Logger
}

// New creates the fabric over the subscriber registry.
func New(subscribers *registry.Subscribers, opts Options) *Fabric {
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = DefaultBufferFrames
	}
	if opts.BackpressureInterval <= 0 {
		opts.BackpressureInterval = DefaultBackpressureInterval
	}
	return &Fabric{
		streams:     make(map[string][]*Stream),
		subscribers: subscribers,
		opts:        opts,
		logger:      opts.Logger,
	}
}

// Register authenticates the subscriber id and binds a new stream to
// it. The connected frame (listing the subscriber's channels) is the
// first frame in the stream's buffer. Unknown or inactive subscribers
// are refused.
func (f *Fabric) Register(subscriberID string) (*Stream, error) {
	sub, ok := f.subscribers.Get(subscriberID)
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "no subscriber %s", subscriberID)
	}
	if !sub.Active {
		return nil, apperr.Newf(apperr.Forbidden, "subscriber %s is inactive", subscriberID)
	}

	st := &Stream{
		id:           f.nextStreamID.Add(1),
		subscriberID: subscriberID,
		send:         make(chan []byte, f.opts.BufferFrames),
		limiter:      rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
		connectedAt:  time.Now(),
	}
	st.enqueue(encodeConnected(sub.ID, sub.Channels))

	// Cap check and insert share the lock so concurrent registrations
	// cannot both squeeze past the cap.
	f.mu.Lock()
	if f.opts.MaxStreams > 0 && int(f.streamCount.Load()) >= f.opts.MaxStreams {
		f.mu.Unlock()
		return nil, apperr.New(apperr.Transient, "stream capacity reached")
	}
	f.streams[subscriberID] = append(f.streams[subscriberID], st)
	f.streamCount.Add(1)
	f.mu.Unlock()

	monitoring.StreamsTotal.Inc()
	monitoring.StreamsActive.Set(float64(f.streamCount.Load()))
	monitoring.FramesSent.WithLabelValues(FrameConnected).Inc()

	f.logger.Info().
		Int64("stream_id", st.id).
		Str("subscriber_id", subscriberID).
		Int("channel_count", len(sub.Channels)).
		Msg("Stream connected")

	return st, nil
}

// Remove unbinds and closes the stream. Other streams of the same
// subscriber are unaffected.
func (f *Fabric) Remove(st *Stream) {
	f.mu.Lock()
	list := f.streams[st.subscriberID]
	for i, existing := range list {
		if existing == st {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(f.streams, st.subscriberID)
			} else {
				f.streams[st.subscriberID] = list
			}
			f.streamCount.Add(-1)
			break
		}
	}
	f.mu.Unlock()

	st.close()
	monitoring.StreamsActive.Set(float64(f.streamCount.Load()))

	f.logger.Info().
		Int64("stream_id", st.id).
		Str("subscriber_id", st.subscriberID).
		Dur("connected_for", time.Since(st.connectedAt)).
		Msg("Stream disconnected")
}

// liveStreams snapshots the subscriber's open streams.
func (f *Fabric) liveStreams(subscriberID string) []*Stream {
	f.mu.RLock()
	list := f.streams[subscriberID]
	out := make([]*Stream, 0, len(list))
	for _, st := range list {
		if !st.Closed() {
			out = append(out, st)
		}
	}
	f.mu.RUnlock()
	return out
}

// StreamCount returns the number of live streams.
func (f *Fabric) StreamCount() int {
	return int(f.streamCount.Load())
}

// Distribute fans one accepted alert out to every subscriber on its
// channel, charging per delivery, and returns the ids of subscribers
// an alert frame actually reached.
//
// Per recipient, in order: skip when no live stream is bound (no
// charge); charge (trial mode charges zero but still counts the
// delivery); on insufficient balance send LOW_BALANCE to the
// subscriber's streams and skip; enqueue the alert frame to each live
// stream without blocking. A full buffer drops the frame and emits one
// consolidated BACKPRESSURE warning; a dead stream is dropped from the
// registry without touching other recipients. A charge whose every
// enqueue hit a dead stream is reverted, so charges track deliveries.
func (f *Fabric) Distribute(a alert.Alert) []string {
	started := time.Now()
	defer func() {
		monitoring.FanoutDuration.Observe(time.Since(started).Seconds())
	}()

	recipients := f.subscribers.ForChannel(a.Channel)
	if len(recipients) == 0 {
		return nil
	}

	frame, err := encodeAlert(a, f.opts.Price)
	if err != nil {
		f.logger.Error().
			Err(err).
			Str("alert_id", a.ID).
			Str("channel", string(a.Channel)).
			Msg("Failed to serialize alert frame, fan-out aborted")
		return nil
	}

	delivered := make([]string, 0, len(recipients))
	for _, sub := range recipients {
		streams := f.liveStreams(sub.ID)
		if len(streams) == 0 {
			continue
		}

		if !f.subscribers.Charge(sub.ID, f.opts.Price) {
			monitoring.ChargeFailures.Inc()
			warn := encodeWarning(WarnLowBalance, "balance below price per alert; delivery skipped")
			for _, st := range streams {
				if st.enqueue(warn) == nil {
					monitoring.FramesSent.WithLabelValues(FrameWarning).Inc()
				}
			}
			f.logger.Debug().
				Str("subscriber_id", sub.ID).
				Str("alert_id", a.ID).
				Msg("Delivery skipped, insufficient balance")
			continue
		}

		sent := false
		dropped := false
		for _, st := range streams {
			switch st.enqueue(frame) {
			case nil:
				sent = true
				monitoring.FramesSent.WithLabelValues(FrameAlert).Inc()
			case ErrBufferFull:
				dropped = true
				monitoring.FramesDropped.WithLabelValues("buffer_full").Inc()
				if st.backpressureDue(f.opts.BackpressureInterval) {
					// The buffer is saturated; the warning may not fit
					// either. The interval arms only once one fits, so
					// a lost warning retries on the next drop.
					if st.enqueue(encodeWarning(WarnBackpressure, "outbound buffer saturated, frames dropped")) == nil {
						st.armBackpressure()
						monitoring.FramesSent.WithLabelValues(FrameWarning).Inc()
					}
					f.logger.Warn().
						Int64("stream_id", st.id).
						Str("subscriber_id", sub.ID).
						Msg("Stream saturated, dropping frames")
				}
			case ErrStreamClosed:
				monitoring.FramesDropped.WithLabelValues("stream_closed").Inc()
				f.Remove(st)
			}
		}

		switch {
		case sent:
			delivered = append(delivered, sub.ID)
			monitoring.Deliveries.Inc()
		case !dropped:
			// Every stream died between the liveness check and the
			// enqueue; the delivery never happened, back the charge out.
			f.subscribers.RevertCharge(sub.ID, f.opts.Price)
		}
	}

	return delivered
}

// HandleInbound processes one client frame. update_channels is the
// only recognized type; anything else elicits an error frame and
// closes the stream. The returned bool is false when the stream should
// be torn down.
func (f *Fabric) HandleInbound(st *Stream, data []byte) bool {
	if !st.allowInbound() {
		if st.enqueue(encodeWarning(WarnRateLimited, "too many frames, slow down")) == nil {
			monitoring.FramesSent.WithLabelValues(FrameWarning).Inc()
		}
		return true
	}

	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		st.enqueue(encodeError("malformed frame"))
		monitoring.FramesSent.WithLabelValues(FrameError).Inc()
		return false
	}

	switch frame.Type {
	case FrameUpdateChannels:
		updated, err := f.subscribers.UpdateChannels(st.subscriberID, frame.Channels)
		if err != nil {
			if st.enqueue(encodeWarning(WarnInvalidChannels, err.Error())) == nil {
				monitoring.FramesSent.WithLabelValues(FrameWarning).Inc()
			}
			return true
		}
		// Mirror the new set back as a fresh connected frame.
		if st.enqueue(encodeConnected(updated.ID, updated.Channels)) == nil {
			monitoring.FramesSent.WithLabelValues(FrameConnected).Inc()
		}
		f.logger.Info().
			Int64("stream_id", st.id).
			Str("subscriber_id", st.subscriberID).
			Int("channel_count", len(updated.Channels)).
			Msg("Stream channels updated")
		return true

	default:
		st.enqueue(encodeError("unknown frame type: " + frame.Type))
		monitoring.FramesSent.WithLabelValues(FrameError).Inc()
		return false
	}
}

// Shutdown closes every stream.
func (f *Fabric) Shutdown() {
	f.mu.Lock()
	all := make([]*Stream, 0)
	for _, list := range f.streams {
		all = append(all, list...)
	}
	f.streams = make(map[string][]*Stream)
	f.streamCount.Store(0)
	f.mu.Unlock()

	for _, st := range all {
		st.close()
	}
	monitoring.StreamsActive.Set(0)
}
