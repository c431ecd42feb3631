package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainsignal/chainsignal/internal/apperr"
)

// maxBodyBytes caps a feed response; anything bigger is a broken or
// hostile source.
const maxBodyBytes = 4 << 20

// Fetcher is the shared HTTP helper every adapter polls through: one
// client with a hard deadline and a named user-agent.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates the shared fetch helper.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// GetJSON fetches url and decodes the body into out. Non-2xx statuses
// and decode failures come back as Transient errors; the orchestrator
// logs them and the batch stays empty.
func (f *Fetcher) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "building feed request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "feed unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Newf(apperr.Transient, "feed returned %d for %s", resp.StatusCode, url)
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return apperr.Wrap(apperr.Transient, fmt.Sprintf("malformed feed body from %s", url), err)
	}
	return nil
}
