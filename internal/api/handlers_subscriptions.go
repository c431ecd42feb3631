package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/apperr"
	"github.com/chainsignal/chainsignal/internal/registry"
)

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req registry.SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	sub, err := s.subscribers.Subscribe(r.Context(), req)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subscribers.Get(r.PathValue("id"))
	if !ok {
		writeError(w, s.logger, apperr.New(apperr.NotFound, "no such subscriber"))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateChannels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channels []alert.Channel `json:"channels"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	sub, err := s.subscribers.UpdateChannels(r.PathValue("id"), req.Channels)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if !s.subscribers.Deactivate(r.PathValue("id")) {
		writeError(w, s.logger, apperr.New(apperr.NotFound, "no such subscriber"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	balance, err := s.subscribers.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriberId": id,
		"balance":      balance,
		"currency":     "USDC",
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	sub, err := s.subscribers.Deposit(r.PathValue("id"), req.Amount)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
