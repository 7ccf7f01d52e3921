package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trader_go/internal/domain"
	"trader_go/internal/infra"
)

const (
	streamHandshakeTimeout = 10 * time.Second
	streamReadTimeout      = 60 * time.Second
	streamWriteTimeout     = 5 * time.Second
)

// Stream maintains one WebSocket connection to the exchange and feeds
// parsed messages into the engine inbox. The public stream carries the
// trade and top-of-book channels; the private stream carries own-order
// updates and embeds a signed token in the subscribe frame.
//
// Reconnection uses a fixed delay with no backoff growth; subscription
// frames are idempotent and resent after every reconnect.
type Stream struct {
	url        string
	private    bool
	signer     *Signer
	inbox      chan<- domain.StreamMessage
	retryDelay time.Duration
	heartbeat  time.Duration
	logger     *slog.Logger

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	market    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.StreamWorker = (*Stream)(nil)

// NewPublicStream creates the trade/orderbook stream worker.
func NewPublicStream(wsURL string, inbox chan<- domain.StreamMessage, retryDelay, heartbeat time.Duration) *Stream {
	return &Stream{
		url:        wsURL,
		inbox:      inbox,
		retryDelay: retryDelay,
		heartbeat:  heartbeat,
		logger:     slog.Default().With("module", "upbit_stream", "role", "public"),
	}
}

// NewPrivateStream creates the own-order stream worker. The signer must
// carry credentials; without them the subscribe frame cannot be built
// and the stream stays silent.
func NewPrivateStream(wsURL string, signer *Signer, inbox chan<- domain.StreamMessage, retryDelay, heartbeat time.Duration) *Stream {
	return &Stream{
		url:        wsURL,
		private:    true,
		signer:     signer,
		inbox:      inbox,
		retryDelay: retryDelay,
		heartbeat:  heartbeat,
		logger:     slog.Default().With("module", "upbit_stream", "role", "private"),
	}
}

// Connect starts the connection loop and heartbeat.
func (s *Stream) Connect(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.connectionLoop(ctx)
	go s.heartbeatLoop(ctx)
	return nil
}

// Subscribe records the market and, when connected, (re)sends the
// subscription frame. Safe to call before the socket is up; the frame
// goes out on connect.
func (s *Stream) Subscribe(market string) {
	s.mu.Lock()
	s.market = market
	connected := s.connected
	s.mu.Unlock()

	if connected {
		if err := s.sendSubscribe(market); err != nil {
			s.logger.Warn("subscribe failed", "market", market, "error", err)
		}
	}
}

// Disconnect stops the loops and closes the socket.
func (s *Stream) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
	s.logger.Info("stream disconnected")
}

// IsConnected returns connection status
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// connectionLoop dials, subscribes and reads until failure, then
// retries after the fixed delay.
func (s *Stream) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream panic recovered", slog.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Warn("stream connection failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
				continue
			}
		}

		s.readLoop(ctx)

		// Socket dropped; fixed delay before redial.
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Stream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: streamHandshakeTimeout}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	market := s.market
	s.mu.Unlock()

	if market != "" {
		if err := s.sendSubscribe(market); err != nil {
			s.closeConnection()
			return fmt.Errorf("subscribe failed: %w", err)
		}
	}

	s.logger.Info("stream connected", "market", market)
	s.deliver(domain.StreamUp{Private: s.private})
	return nil
}

func (s *Stream) sendSubscribe(market string) error {
	ticket := "trader-public"
	if s.private {
		ticket = "trader-private"
	}

	frame := []map[string]any{
		{"ticket": ticket},
	}
	if s.private {
		token := s.signer.AuthToken(nil)
		if token == "" {
			return domain.ErrNoCredentials
		}
		frame = append(frame,
			map[string]any{"type": "myOrder", "codes": []string{market}, "isOnlyRealtime": true},
			map[string]any{"authorization": token},
		)
	} else {
		frame = append(frame,
			map[string]any{"type": "trade", "codes": []string{market}},
			map[string]any{"type": "orderbook", "codes": []string{market}, "isOnlyRealtime": true},
		)
	}

	msg, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.threadSafeWrite(websocket.TextMessage, msg)
}

func (s *Stream) threadSafeWrite(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("stream read error", slog.Any("error", err))
			}
			s.closeConnection()
			return
		}
		s.handleMessage(message)
	}
}

// handleMessage parses one frame. Malformed payloads are dropped with a
// warning; the next periodic message supersedes them.
func (s *Stream) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Warn("dropping malformed stream payload", slog.Any("error", err))
		return
	}

	switch env.Type {
	case "trade":
		var t wsTrade
		if err := json.Unmarshal(message, &t); err != nil {
			s.logger.Warn("dropping malformed trade payload", slog.Any("error", err))
			return
		}
		if float64(t.TradePrice) <= 0 || int64(t.TradeTimestamp) <= 0 {
			return
		}
		s.deliver(domain.TradeTick{
			Market: t.Code,
			Price:  float64(t.TradePrice),
			Volume: float64(t.TradeVolume),
			TsMs:   int64(t.TradeTimestamp),
		})

	case "orderbook":
		var ob wsOrderbook
		if err := json.Unmarshal(message, &ob); err != nil {
			s.logger.Warn("dropping malformed orderbook payload", slog.Any("error", err))
			return
		}
		if len(ob.OrderbookUnits) == 0 {
			return
		}
		top := ob.OrderbookUnits[0]
		s.deliver(domain.BookTop{
			Market: ob.Code,
			Bid:    float64(top.BidPrice),
			Ask:    float64(top.AskPrice),
		})

	case "myOrder", "myOrders":
		var mo wsMyOrder
		if err := json.Unmarshal(message, &mo); err != nil {
			s.logger.Warn("dropping malformed order payload", slog.Any("error", err))
			return
		}
		update := domain.OrderUpdate{
			UUID:      mo.UUID,
			Market:    mo.Code,
			IsBuy:     strings.EqualFold(mo.Side, "bid"),
			Remaining: float64(mo.RemainingVolume),
			State:     mo.State,
		}
		if float64(mo.TradeVolume) > 0 && float64(mo.TradePrice) > 0 {
			update.Fills = append(update.Fills, domain.OrderFill{
				Price:  float64(mo.TradePrice),
				Volume: float64(mo.TradeVolume),
				TsMs:   int64(mo.TradeTimestamp),
			})
		} else {
			for _, tr := range mo.Trades {
				update.Fills = append(update.Fills, domain.OrderFill{
					Price:  float64(tr.TradePrice),
					Volume: float64(tr.TradeVolume),
					TsMs:   int64(tr.TradeTimestamp),
				})
			}
		}
		s.deliver(update)
	}
}

func (s *Stream) deliver(msg domain.StreamMessage) {
	select {
	case s.inbox <- msg:
	default:
		s.logger.Warn("engine inbox full, dropping stream message")
	}
}

// heartbeatLoop pings the socket on a fixed interval so half-dead
// connections surface as read errors instead of silence.
func (s *Stream) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			connected := s.connected
			s.mu.RUnlock()
			if !connected || conn == nil {
				continue
			}
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Warn("heartbeat failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Stream) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}
