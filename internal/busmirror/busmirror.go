// Package busmirror republishes accepted alerts onto a NATS bus so
// external consumers (archival, analytics) can tail the feed without
// holding a subscriber stream. The mirror is optional and best-effort:
// publish failures are logged and never block ingestion.
package busmirror

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/chainsignal/chainsignal/internal/alert"
)

// SubjectPrefix roots every mirrored alert subject.
const SubjectPrefix = "chainsignal.alerts."

// Mirror wraps a NATS connection. A nil *Mirror is a valid no-op, so
// callers hold one unconditionally and the config decides.
type Mirror struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// Connect dials the bus. Reconnects are left to the client's backoff;
// alerts published while disconnected are buffered by the client up to
// its default pending limit and dropped beyond it.
func Connect(url string, logger zerolog.Logger) (*Mirror, error) {
	conn, err := nats.Connect(url,
		nats.Name("chainsignal-busmirror"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Bus mirror disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Bus mirror reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", url).Msg("Bus mirror connected")
	return &Mirror{conn: conn, logger: logger}, nil
}

// Subject maps a channel onto its bus subject: slashes become dots so
// consumers can use NATS wildcards per family.
func Subject(ch alert.Channel) string {
	return SubjectPrefix + strings.ReplaceAll(string(ch), "/", ".")
}

// Publish mirrors one accepted alert. Best effort.
func (m *Mirror) Publish(a alert.Alert) {
	if m == nil || m.conn == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		m.logger.Error().Err(err).Str("alert_id", a.ID).Msg("Bus mirror serialization failed")
		return
	}
	if err := m.conn.Publish(Subject(a.Channel), payload); err != nil {
		m.logger.Warn().
			Err(err).
			Str("alert_id", a.ID).
			Str("subject", Subject(a.Channel)).
			Msg("Bus mirror publish failed")
	}
}

// Close drains the connection.
func (m *Mirror) Close() {
	if m == nil || m.conn == nil {
		return
	}
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
	}
}
