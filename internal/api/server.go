// Package api is the broker's JSON request surface: subscription
// management, the historical query endpoints, publisher registration
// and ingress, the websocket stream entrypoint, and the health and
// metrics endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/chainsignal/chainsignal/internal/config"
	"github.com/chainsignal/chainsignal/internal/fabric"
	"github.com/chainsignal/chainsignal/internal/ingest"
	"github.com/chainsignal/chainsignal/internal/monitoring"
	"github.com/chainsignal/chainsignal/internal/registry"
	"github.com/chainsignal/chainsignal/internal/store"
)

// Server wires the request surface over the broker's singletons.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	subscribers *registry.Subscribers
	publishers  *registry.Publishers
	fabric      *fabric.Fabric
	ingress     *ingest.Ingress
	queryPrice  decimal.Decimal
	logger      zerolog.Logger
	startedAt   time.Time
}

// New creates the API server.
func New(
	cfg *config.Config,
	st *store.Store,
	subscribers *registry.Subscribers,
	publishers *registry.Publishers,
	fab *fabric.Fabric,
	ingress *ingest.Ingress,
	logger zerolog.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		store:       st,
		subscribers: subscribers,
		publishers:  publishers,
		fabric:      fab,
		ingress:     ingress,
		queryPrice:  cfg.QueryCharge(),
		logger:      logger,
		startedAt:   time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Subscriptions
	mux.HandleFunc("POST /subscriptions", s.handleSubscribe)
	mux.HandleFunc("GET /subscriptions/{id}", s.handleGetSubscription)
	mux.HandleFunc("PUT /subscriptions/{id}/channels", s.handleUpdateChannels)
	mux.HandleFunc("DELETE /subscriptions/{id}", s.handleDeactivate)
	mux.HandleFunc("GET /subscriptions/{id}/balance", s.handleGetBalance)
	mux.HandleFunc("POST /subscriptions/{id}/deposit", s.handleDeposit)

	// Query surface
	mux.HandleFunc("GET /channels", s.handleListChannels)
	mux.HandleFunc("GET /alerts", s.handleListAlerts)
	mux.HandleFunc("GET /alerts/{id}", s.handleGetAlert)
	mux.HandleFunc("GET /stats", s.handleStats)

	// Publishers
	mux.HandleFunc("POST /publishers", s.handleRegisterPublisher)
	mux.HandleFunc("POST /publish", s.handlePublish)
	mux.HandleFunc("GET /publishers", s.handleListPublishers)
	mux.HandleFunc("GET /publishers/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /publishers/{id}", s.handleGetPublisher)
	mux.HandleFunc("GET /publishers/{id}/alerts", s.handlePublisherAlerts)
	mux.HandleFunc("GET /whoami", s.handleWhoAmI)

	// Streams + operational endpoints
	mux.HandleFunc("GET /ws", s.fabric.HandleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", monitoring.MetricsHandler())

	return s.logRequests(mux)
}

// logRequests is the access-log middleware. Websocket upgrades are
// skipped; the fabric logs stream lifecycle itself.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		started := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(started)).
			Msg("Request handled")
	})
}

// handleHealth reports liveness plus a few load indicators.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"streams":        s.fabric.StreamCount(),
		"subscribers":    s.subscribers.Count(),
		"alerts":         stats.Total,
		"trial_mode":     s.cfg.TrialMode,
	})
}
