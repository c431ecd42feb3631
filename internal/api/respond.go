package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/chainsignal/chainsignal/internal/apperr"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// errorBody is the uniform error response shape.
type errorBody struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error's kind onto its HTTP status. Internal
// errors get an opaque message; everything else passes through.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Error: err.Error(), Kind: kind.String()}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Error = ae.Message
		body.Details = ae.Details
	}
	if kind == apperr.Internal {
		logger.Error().Err(err).Msg("Internal error on request path")
		body.Error = "internal error"
	}
	writeJSON(w, kind.HTTPStatus(), body)
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return apperr.Wrap(apperr.BadRequest, "reading request body", err)
	}
	if len(body) == 0 {
		return apperr.New(apperr.BadRequest, "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.BadRequest, "malformed JSON body", err)
	}
	return nil
}

// bearerKey extracts the publisher API key from the Authorization
// header ("Bearer csk_...").
func bearerKey(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
