package api

import (
	"net/http"

	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/ingest"
	"github.com/chainsignal/chainsignal/internal/registry"
)

func (s *Server) handleRegisterPublisher(w http.ResponseWriter, r *http.Request) {
	var req registry.RegisterPublisherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	pub, err := s.publishers.Register(req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	// The plaintext key appears in this response and nowhere else.
	writeJSON(w, http.StatusCreated, pub)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	key := bearerKey(r)
	if key == "" {
		writeError(w, s.logger, apperr.New(apperr.Unauthorized, "Authorization: Bearer <api key> is required"))
		return
	}
	var req ingest.PublishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	res, err := s.ingress.Publish(r.Context(), key, req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListPublishers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"publishers": s.publishers.List()})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": s.publishers.Leaderboard(queryLimit(r)),
	})
}

func (s *Server) handleGetPublisher(w http.ResponseWriter, r *http.Request) {
	pub, ok := s.publishers.Get(r.PathValue("id"))
	if !ok {
		writeError(w, s.logger, apperr.New(apperr.NotFound, "no such publisher"))
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

func (s *Server) handlePublisherAlerts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.publishers.Get(id); !ok {
		writeError(w, s.logger, apperr.New(apperr.NotFound, "no such publisher"))
		return
	}
	rows := s.store.ByPublisher(id, queryLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": rows,
		"count":  len(rows),
	})
}

// handleWhoAmI resolves the caller's API key to its publisher record,
// letting an agent verify its credentials and authorization.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	key := bearerKey(r)
	if key == "" {
		writeError(w, s.logger, apperr.New(apperr.Unauthorized, "Authorization: Bearer <api key> is required"))
		return
	}
	pub, ok := s.publishers.Authenticate(key)
	if !ok {
		writeError(w, s.logger, apperr.New(apperr.Unauthorized, "unknown or suspended API key"))
		return
	}
	writeJSON(w, http.StatusOK, pub)
}
