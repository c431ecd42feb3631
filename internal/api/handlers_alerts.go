package api

import (
	"net/http"
	"strconv"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
)

const defaultQueryLimit = 50

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"channels":           alert.CoreChannels(),
		"aggregatedPrefixes": []string{"news/", "exchanges/"},
	})
}

// handleListAlerts serves the historical query. When pricing is active
// and the caller identifies as a subscriber via X-Subscriber-ID, the
// query is charged; insufficient balance is a 402 echoing the price.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	q := r.URL.Query().Get("q")
	ch := alert.Channel(r.URL.Query().Get("channel"))

	// Validate everything before the charge: a malformed request must
	// never cost the caller anything.
	if q == "" && ch != "" && !alert.ValidChannel(ch) {
		writeError(w, s.logger, apperr.Newf(apperr.BadRequest, "channel %q is not a recognized channel", ch))
		return
	}

	if subscriberID := r.Header.Get("X-Subscriber-ID"); subscriberID != "" && s.queryPrice.IsPositive() {
		if _, ok := s.subscribers.Get(subscriberID); !ok {
			writeError(w, s.logger, apperr.New(apperr.NotFound, "no such subscriber"))
			return
		}
		if !s.subscribers.Charge(subscriberID, s.queryPrice) {
			writeError(w, s.logger, apperr.New(apperr.PaymentRequired, "balance cannot cover the query price").
				WithDetails(map[string]any{"queryPrice": s.queryPrice}))
			return
		}
	}

	var rows []alert.Alert
	switch {
	case q != "":
		rows = s.store.Search(q, limit)
	case ch != "":
		rows = s.store.ByChannel(ch, limit)
	default:
		rows = s.store.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": rows,
		"count":  len(rows),
	})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, s.logger, apperr.New(apperr.NotFound, "no such alert"))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultQueryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return defaultQueryLimit
	}
	return n
}
