package fabric

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/chainsignal/chainsignal/internal/alert"
)

// Frame type tags. Server to client: connected, alert, warning, error.
// Client to server: update_channels (the only recognized inbound type).
const (
	FrameConnected      = "connected"
	FrameAlert          = "alert"
	FrameWarning        = "warning"
	FrameError          = "error"
	FrameUpdateChannels = "update_channels"
)

// Warning codes.
const (
	WarnLowBalance      = "LOW_BALANCE"
	WarnBackpressure    = "BACKPRESSURE"
	WarnInvalidChannels = "INVALID_CHANNELS"
	WarnRateLimited     = "RATE_LIMITED"
)

// ConnectedFrame greets a freshly registered stream with the
// subscriber's current channel set.
type ConnectedFrame struct {
	Type         string          `json:"type"`
	SubscriberID string          `json:"subscriberId"`
	Channels     []alert.Channel `json:"channels"`
}

// AlertFrame carries one delivered alert and the amount charged for it
// (zero in trial mode).
type AlertFrame struct {
	Type    string          `json:"type"`
	Data    alert.Alert     `json:"data"`
	Charged decimal.Decimal `json:"charged"`
}

// WarningFrame is a non-fatal back-channel notification (LOW_BALANCE,
// BACKPRESSURE, flow control).
type WarningFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame is fatal for the stream; the sender closes after it.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// InboundFrame is the envelope for client-to-server frames.
type InboundFrame struct {
	Type     string          `json:"type"`
	Channels []alert.Channel `json:"channels,omitempty"`
}

func encodeConnected(subscriberID string, channels []alert.Channel) []byte {
	b, _ := json.Marshal(ConnectedFrame{Type: FrameConnected, SubscriberID: subscriberID, Channels: channels})
	return b
}

// encodeAlert serializes the delivery frame once per fan-out; the same
// bytes go to every recipient stream.
func encodeAlert(a alert.Alert, charged decimal.Decimal) ([]byte, error) {
	return json.Marshal(AlertFrame{Type: FrameAlert, Data: a, Charged: charged})
}

func encodeWarning(code, message string) []byte {
	b, _ := json.Marshal(WarningFrame{Type: FrameWarning, Code: code, Message: message})
	return b
}

func encodeError(message string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: FrameError, Message: message})
	return b
}
