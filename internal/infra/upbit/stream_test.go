package upbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader_go/internal/domain"
)

// wsTestServer upgrades connections, records subscribe frames and lets
// the test push frames to the client.
type wsTestServer struct {
	srv        *httptest.Server
	subscribes chan []map[string]any
	conns      chan *websocket.Conn
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ws := &wsTestServer{
		subscribes: make(chan []map[string]any, 8),
		conns:      make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.conns <- conn
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame []map[string]any
			if json.Unmarshal(msg, &frame) == nil {
				ws.subscribes <- frame
			}
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ws.srv.URL, "http")
}

func (ws *wsTestServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ws.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for websocket connection")
		return nil
	}
}

func (ws *wsTestServer) waitSubscribe(t *testing.T) []map[string]any {
	t.Helper()
	select {
	case f := <-ws.subscribes:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe frame")
		return nil
	}
}

func waitMessage(t *testing.T, inbox <-chan domain.StreamMessage, timeout time.Duration) domain.StreamMessage {
	t.Helper()
	select {
	case m := <-inbox:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for stream message")
		return nil
	}
}

func TestStream_PublicSubscribeAndParse(t *testing.T) {
	ws := newWSTestServer(t)
	inbox := make(chan domain.StreamMessage, 64)
	s := NewPublicStream(ws.url(), inbox, 50*time.Millisecond, time.Hour)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	s.Subscribe("KRW-BTC")

	conn := ws.waitConn(t)
	frame := ws.waitSubscribe(t)
	require.Len(t, frame, 3)
	assert.Equal(t, "trader-public", frame[0]["ticket"])
	assert.Equal(t, "trade", frame[1]["type"])
	assert.Equal(t, []any{"KRW-BTC"}, frame[1]["codes"])
	assert.Equal(t, "orderbook", frame[2]["type"])
	assert.Equal(t, true, frame[2]["isOnlyRealtime"])

	// Connect announces itself before any market data.
	up := waitMessage(t, inbox, 2*time.Second)
	assert.Equal(t, domain.StreamUp{Private: false}, up)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"trade","code":"KRW-BTC","trade_price":50000000,"trade_volume":0.01,"trade_timestamp":1700000000000}`)))
	msg := waitMessage(t, inbox, 2*time.Second)
	tick, ok := msg.(domain.TradeTick)
	require.True(t, ok)
	assert.Equal(t, "KRW-BTC", tick.Market)
	assert.Equal(t, 50_000_000.0, tick.Price)
	assert.Equal(t, 0.01, tick.Volume)
	assert.Equal(t, int64(1_700_000_000_000), tick.TsMs)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"orderbook","code":"KRW-BTC","orderbook_units":[{"bid_price":49990000,"ask_price":50010000},{"bid_price":1,"ask_price":2}]}`)))
	msg = waitMessage(t, inbox, 2*time.Second)
	book, ok := msg.(domain.BookTop)
	require.True(t, ok)
	assert.Equal(t, 49_990_000.0, book.Bid)
	assert.Equal(t, 50_010_000.0, book.Ask)
}

func TestStream_DropsMalformedAndZeroPrice(t *testing.T) {
	ws := newWSTestServer(t)
	inbox := make(chan domain.StreamMessage, 64)
	s := NewPublicStream(ws.url(), inbox, 50*time.Millisecond, time.Hour)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	s.Subscribe("KRW-BTC")

	conn := ws.waitConn(t)
	ws.waitSubscribe(t)
	waitMessage(t, inbox, 2*time.Second) // StreamUp

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"trade","code":"KRW-BTC","trade_price":0,"trade_volume":1,"trade_timestamp":1700000000000}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"trade","code":"KRW-BTC","trade_price":100,"trade_volume":1,"trade_timestamp":1700000000000}`)))

	msg := waitMessage(t, inbox, 2*time.Second)
	tick, ok := msg.(domain.TradeTick)
	require.True(t, ok, "only the valid trade survives, got %T", msg)
	assert.Equal(t, 100.0, tick.Price)
}

func TestStream_PrivateSubscribeCarriesToken(t *testing.T) {
	ws := newWSTestServer(t)
	inbox := make(chan domain.StreamMessage, 64)
	s := NewPrivateStream(ws.url(), NewSigner("ak", "sk"), inbox, 50*time.Millisecond, time.Hour)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	s.Subscribe("KRW-BTC")

	conn := ws.waitConn(t)
	frame := ws.waitSubscribe(t)
	require.Len(t, frame, 3)
	assert.Equal(t, "trader-private", frame[0]["ticket"])
	assert.Equal(t, "myOrder", frame[1]["type"])
	token, _ := frame[2]["authorization"].(string)
	assert.True(t, strings.HasPrefix(token, "Bearer "))

	up := waitMessage(t, inbox, 2*time.Second)
	assert.Equal(t, domain.StreamUp{Private: true}, up)

	// Single-fill own-order event.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"myOrder","code":"KRW-BTC","uuid":"u-1","side":"bid","trade_price":"50000000","trade_volume":"0.4","trade_timestamp":1700000000000,"remaining_volume":"0.6","state":"trade"}`)))
	msg := waitMessage(t, inbox, 2*time.Second)
	update, ok := msg.(domain.OrderUpdate)
	require.True(t, ok)
	assert.Equal(t, "u-1", update.UUID)
	assert.True(t, update.IsBuy)
	require.Len(t, update.Fills, 1)
	assert.Equal(t, 0.4, update.Fills[0].Volume)
	assert.Equal(t, 0.6, update.Remaining)
}

func TestStream_ReconnectsAfterDrop(t *testing.T) {
	ws := newWSTestServer(t)
	inbox := make(chan domain.StreamMessage, 64)
	s := NewPublicStream(ws.url(), inbox, 20*time.Millisecond, time.Hour)

	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()
	s.Subscribe("KRW-BTC")

	conn := ws.waitConn(t)
	ws.waitSubscribe(t)
	waitMessage(t, inbox, 2*time.Second) // StreamUp

	conn.Close()

	// A second connection arrives with the subscription resent.
	ws.waitConn(t)
	frame := ws.waitSubscribe(t)
	assert.Equal(t, "trader-public", frame[0]["ticket"])
	up := waitMessage(t, inbox, 2*time.Second)
	assert.Equal(t, domain.StreamUp{Private: false}, up)
}

func TestStream_PrivateWithoutCredentialsStaysDown(t *testing.T) {
	ws := newWSTestServer(t)
	inbox := make(chan domain.StreamMessage, 64)
	s := NewPrivateStream(ws.url(), NewSigner("", ""), inbox, 20*time.Millisecond, time.Hour)

	// Market registered before the dial so the connect path must sign.
	s.Subscribe("KRW-BTC")
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	// The subscribe frame cannot be signed, so no subscription ever
	// reaches the server and no StreamUp is delivered.
	select {
	case f := <-ws.subscribes:
		t.Fatalf("unexpected subscribe frame: %v", f)
	case m := <-inbox:
		t.Fatalf("unexpected stream message: %v", m)
	case <-time.After(150 * time.Millisecond):
	}
}
