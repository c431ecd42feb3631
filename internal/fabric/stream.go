package fabric

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrStreamClosed is returned by enqueue on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrBufferFull is returned when the outbound buffer has no slot;
	// the fabric never blocks on a slow consumer.
	ErrBufferFull = errors.New("outbound buffer full")
)

// Inbound frame rate limit per stream: generous burst for channel
// reshuffles on connect, low sustained rate.
const (
	inboundBurst = 20
	inboundRate  = 5.0 // frames/sec sustained
)

// Stream is one live long-lived connection bound to a subscriber.
// A subscriber may hold several streams; each owns a bounded outbound
// buffer written by the fabric and drained by its write pump.
type Stream struct {
	id           int64
	subscriberID string

	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool

	// conn is nil for in-process streams (tests); the websocket
	// transport sets it so enqueue failures can close the socket.
	conn net.Conn

	// lastBackpressureNs consolidates BACKPRESSURE warnings: at most
	// one per interval per stream, however many frames get dropped.
	lastBackpressureNs atomic.Int64

	limiter     *rate.Limiter
	connectedAt time.Time
}

// SubscriberID returns the subscriber the stream is bound to.
func (st *Stream) SubscriberID() string { return st.subscriberID }

// Frames exposes the outbound buffer. The websocket write pump drains
// it; in-process tests read delivered frames from it directly.
func (st *Stream) Frames() <-chan []byte { return st.send }

// Closed reports whether the stream has been closed.
func (st *Stream) Closed() bool { return st.closed.Load() }

// enqueue offers a frame to the outbound buffer without blocking.
func (st *Stream) enqueue(frame []byte) error {
	if st.closed.Load() {
		return ErrStreamClosed
	}
	select {
	case st.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// backpressureDue reports whether a consolidated BACKPRESSURE warning
// is due. The interval is armed separately, by armBackpressure, only
// once a warning frame actually made it into the buffer; a warning
// that could not be enqueued must stay due for the next drop.
func (st *Stream) backpressureDue(interval time.Duration) bool {
	return time.Now().UnixNano()-st.lastBackpressureNs.Load() >= int64(interval)
}

// armBackpressure starts the consolidation interval after a warning
// was enqueued.
func (st *Stream) armBackpressure() {
	st.lastBackpressureNs.Store(time.Now().UnixNano())
}

// close marks the stream closed and closes the underlying connection
// if one exists. Safe to call repeatedly.
func (st *Stream) close() {
	st.closeOnce.Do(func() {
		st.closed.Store(true)
		if st.conn != nil {
			st.conn.Close()
		}
	})
}

// allowInbound applies the per-stream inbound frame rate limit.
func (st *Stream) allowInbound() bool {
	return st.limiter.Allow()
}
