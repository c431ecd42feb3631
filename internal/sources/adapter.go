// Package sources holds the source adapters: periodic pollers that
// fetch an external feed, normalize its items into alert candidates
// and map each item onto a channel. Adapters are pure functions of
// external state (no dedup, no routing, no shared memory), except for
// the change-detection tables a few adapters keep on the instance.
package sources

import (
	"context"

	"github.com/chainsignal/chainsignal/internal/alert"
)

// Adapter is one pollable source. Fetch returns the current batch of
// candidates; a failed fetch returns an error the orchestrator logs
// and absorbs, so no source can stall another.
type Adapter interface {
	// Key names the adapter in config, logs and metrics.
	Key() string
	Fetch(ctx context.Context) ([]alert.Candidate, error)
}
