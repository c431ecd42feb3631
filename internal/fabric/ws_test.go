package fabric

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/registry"
)

// wsClient is a dialed client connection. Reads go through the dial
// buffer when the server's first frames arrived with the handshake.
type wsClient struct {
	r io.Reader
	net.Conn
}

func (c wsClient) Read(p []byte) (int, error) { return c.r.Read(p) }

func wsServer(t *testing.T, f *Fabric) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.HandleWebSocket))
	t.Cleanup(srv.Close)
	t.Cleanup(f.Shutdown)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server, subscriberID string) wsClient {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?subscriber_id=" + subscriberID
	conn, br, _, err := ws.Dial(context.Background(), u)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var r io.Reader = conn
	if br != nil {
		r = br
	}
	return wsClient{r: r, Conn: conn}
}

func readWireFrame(t *testing.T, c wsClient) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg, op, err := wsutil.ReadServerData(c)
	require.NoError(t, err)
	require.Equal(t, ws.OpText, op)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func readCloseCode(t *testing.T, c wsClient) ws.StatusCode {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := ws.ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, ws.OpClose, frame.Header.OpCode)
	code, _ := ws.ParseCloseFrameData(frame.Payload)
	return code
}

func TestWebSocketRequiresSubscriberID(t *testing.T) {
	f, _ := testFabric(t, "0", 8)
	srv := wsServer(t, f)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketDeliversFrames(t *testing.T) {
	f, subs := testFabric(t, "0", 8)
	srv := wsServer(t, f)
	id := subscribe(t, subs, alert.ChannelDeFiHacks)

	c := dialStream(t, srv, id)

	frame := readWireFrame(t, c)
	assert.Equal(t, FrameConnected, frame["type"])
	assert.Equal(t, id, frame["subscriberId"])

	f.Distribute(makeAlert(alert.ChannelDeFiHacks))
	frame = readWireFrame(t, c)
	assert.Equal(t, FrameAlert, frame["type"])

	// update_channels round-trips through the read pump.
	msg, _ := json.Marshal(InboundFrame{
		Type:     FrameUpdateChannels,
		Channels: []alert.Channel{alert.ChannelRegSEC, alert.ChannelDeFiYields},
	})
	require.NoError(t, wsutil.WriteClientText(c, msg))
	frame = readWireFrame(t, c)
	assert.Equal(t, FrameConnected, frame["type"])
	assert.Len(t, frame["channels"], 2)
}

func TestWebSocketRefusesUnknownSubscriber(t *testing.T) {
	f, _ := testFabric(t, "0", 8)
	srv := wsServer(t, f)

	c := dialStream(t, srv, "ghost")

	frame := readWireFrame(t, c)
	assert.Equal(t, FrameError, frame["type"])
	assert.Equal(t, ws.StatusPolicyViolation, readCloseCode(t, c))
}

func TestWebSocketCapacityClosesWithTryAgainLater(t *testing.T) {
	subs := registry.NewSubscribers(nil, zerolog.Nop())
	f := New(subs, Options{MaxStreams: 1, Logger: zerolog.Nop()})
	srv := wsServer(t, f)
	id := subscribe(t, subs, alert.ChannelDeFiHacks)

	// Occupy the only slot.
	_, err := f.Register(id)
	require.NoError(t, err)

	c := dialStream(t, srv, id)

	frame := readWireFrame(t, c)
	assert.Equal(t, FrameError, frame["type"])
	assert.Equal(t, ws.StatusCode(1013), readCloseCode(t, c))
}
