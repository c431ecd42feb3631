package fabric

import (
	"bufio"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/monitoring"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 5 * time.Second
	// pongWait is how long a silent peer stays considered alive.
	pongWait = 30 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// HandleWebSocket upgrades an HTTP request to a subscriber stream.
// The subscriber identifies itself with the subscriber_id query
// parameter; unknown or inactive ids get an error frame and a close.
func (f *Fabric) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		http.Error(w, "subscriber_id is required", http.StatusBadRequest)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("WebSocket upgrade failed")
		return
	}

	st, err := f.Register(subscriberID)
	if err != nil {
		// Refused: say why on the wire, then close.
		wsutil.WriteServerMessage(conn, ws.OpText, encodeError(err.Error()))
		status := ws.StatusPolicyViolation
		if apperr.Is(err, apperr.Transient) {
			// 1013 Try Again Later; gobwas defines no constant for it.
			status = ws.StatusCode(1013)
		}
		body := ws.NewCloseFrameBody(status, "")
		ws.WriteFrame(conn, ws.NewCloseFrame(body))
		conn.Close()
		return
	}
	st.conn = conn

	go f.writePump(st)
	go f.readPump(st)
}

// writePump drains the stream's outbound buffer onto the socket,
// batching queued frames through one buffered writer to cut syscalls,
// and keeps the connection alive with pings.
func (f *Fabric) writePump(st *Stream) {
	defer monitoring.RecoverPanic(f.logger, "writePump", map[string]any{
		"stream_id": st.id,
	})

	writer := bufio.NewWriter(st.conn)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.Remove(st)
	}()

	for {
		select {
		case frame, ok := <-st.send:
			if !ok {
				wsutil.WriteServerMessage(st.conn, ws.OpClose, []byte{})
				return
			}

			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, frame); err != nil {
				f.logger.Debug().
					Err(err).
					Int64("stream_id", st.id).
					Msg("Stream write failed")
				return
			}

			// Batch whatever else is already queued.
			n := len(st.send)
			for i := 0; i < n; i++ {
				frame = <-st.send
				if err := wsutil.WriteServerMessage(writer, ws.OpText, frame); err != nil {
					f.logger.Debug().
						Err(err).
						Int64("stream_id", st.id).
						Msg("Stream write failed")
					return
				}
			}
			if err := writer.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(st.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client frames, enforces the inbound rate limit via
// HandleInbound, and tears the stream down on read errors or fatal
// frames.
func (f *Fabric) readPump(st *Stream) {
	defer monitoring.RecoverPanic(f.logger, "readPump", map[string]any{
		"stream_id": st.id,
	})
	defer f.Remove(st)

	st.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(st.conn)
		if err != nil {
			return
		}
		st.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText:
			if !f.HandleInbound(st, msg) {
				// Fatal frame: the error frame is already queued; give
				// the write pump a moment to flush it, then close.
				time.Sleep(50 * time.Millisecond)
				return
			}
		case ws.OpClose:
			return
		}
	}
}
