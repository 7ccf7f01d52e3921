package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trader_go/internal/domain"
	"trader_go/internal/market"
	"trader_go/internal/order"
)

// loopGateway serves one market whose 5m series always signals entry.
type loopGateway struct {
	mu        sync.Mutex
	postCount int
	postReqs  []domain.OrderRequest
	candles5m []domain.Candle
}

func (g *loopGateway) GetMarkets(ctx context.Context) ([]string, error) {
	return []string{"KRW-TEST"}, nil
}

func (g *loopGateway) GetTickers(ctx context.Context, markets []string) ([]domain.Ticker, error) {
	return []domain.Ticker{{Market: "KRW-TEST", AccTradePrice24: 1_000_000_000}}, nil
}

func (g *loopGateway) GetCandles(ctx context.Context, mkt string, unit, count int) ([]domain.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Candle(nil), g.candles5m...), nil
}

func (g *loopGateway) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.postCount++
	g.postReqs = append(g.postReqs, req)
	return domain.OrderResult{Accepted: true, UUID: "loop-1", HTTPStatus: 201}, nil
}

func (g *loopGateway) CancelOrder(ctx context.Context, uuid string) (domain.OrderResult, error) {
	return domain.OrderResult{Accepted: true, UUID: uuid}, nil
}

func (g *loopGateway) orders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.postCount
}

// nopStream satisfies the stream contract without a socket.
type nopStream struct{}

func (nopStream) Connect(ctx context.Context) error { return nil }
func (nopStream) Subscribe(market string)           {}
func (nopStream) Disconnect()                       {}
func (nopStream) IsConnected() bool                 { return true }

func breakoutSeries(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		base := 100 + float64(i)
		out[i] = domain.Candle{TsMs: int64(i) * 300_000, Open: base, High: base + 1, Low: base - 0.5, Close: base + 1}
	}
	return out
}

type harness struct {
	gw     *loopGateway
	agg    *market.Aggregator
	orders *order.Manager
	eng    *Engine
	events chan domain.Event
	stream chan domain.StreamMessage
}

func newHarness(cfg Config) *harness {
	gw := &loopGateway{candles5m: breakoutSeries(20)}
	events := make(chan domain.Event, 256)
	emit := func(e domain.Event) {
		select {
		case events <- e:
		default:
		}
	}

	agg := market.NewAggregator(cfg.CandleUnitMin, cfg.Lookback5m)
	sel := market.NewSelector(gw, 10, 60, 10*time.Millisecond)
	om := order.NewManager(gw, 0.0005, 5_000, emit, nil)
	stream := make(chan domain.StreamMessage, 64)

	eng := New(cfg, gw, sel, agg, om, nopStream{}, nil, stream, emit)
	return &harness{gw: gw, agg: agg, orders: om, eng: eng, events: events, stream: stream}
}

func defaultConfig() Config {
	return Config{
		CandleUnitMin:   5,
		Lookback5m:      120,
		RefreshInterval: time.Hour, // only the startup refresh fires
		RetryDelay:      10 * time.Millisecond,
		EquityKRW:       1_000_000,
		RiskPerTrade:    0.01,
		DailyStopRatio:  0.03,
	}
}

func waitFor[T domain.Event](t *testing.T, events <-chan domain.Event, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			if typed, ok := e.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestRun_SelectsRefreshesAndOrders(t *testing.T) {
	h := newHarness(defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Run(ctx)

	selected := waitFor[domain.MarketSelected](t, h.events, 2*time.Second)
	assert.Equal(t, "KRW-TEST", selected.Market)

	waitFor[domain.CandlesUpdated](t, h.events, 2*time.Second)

	// Breakout series + positive ATR: the startup refresh must produce
	// exactly one sized entry order.
	accepted := waitFor[domain.OrderAccepted](t, h.events, 2*time.Second)
	assert.Equal(t, "KRW-TEST", accepted.Market)
	assert.True(t, accepted.IsBuy)
	assert.Greater(t, accepted.Volume, 0.0)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.gw.orders(), "no duplicate dispatch for one refresh")
	assert.Equal(t, 1, h.orders.PendingCount())
}

func TestRun_DailyStopBlocksEntry(t *testing.T) {
	cfg := defaultConfig()
	cfg.EquityKRW = 1_000
	h := newHarness(cfg)

	// Realize a -10% day before the engine starts: buy 1 @ 200, sell 1 @ 100.
	h.orders.HandleUpdate(domain.OrderUpdate{UUID: "pre", Market: "KRW-TEST", IsBuy: true,
		Fills: []domain.OrderFill{{Price: 200, Volume: 1}}, Remaining: 1})
	h.orders.HandleUpdate(domain.OrderUpdate{UUID: "pre2", Market: "KRW-TEST", IsBuy: false,
		Fills: []domain.OrderFill{{Price: 100, Volume: 1}}, Remaining: 1})
	require.InDelta(t, -100, h.orders.RealizedPnL(), 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Run(ctx)

	waitFor[domain.CandlesUpdated](t, h.events, 2*time.Second)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.gw.orders(), "circuit breaker suppresses the entry")
}

func TestRun_StreamTicksFoldIntoSeries(t *testing.T) {
	h := newHarness(defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Run(ctx)

	waitFor[domain.CandlesUpdated](t, h.events, 2*time.Second)
	baseLen := 20 // authoritative series length

	// A trade one interval past the tail appends a candle.
	lastTs := int64(19) * 300_000
	h.stream <- domain.TradeTick{Market: "KRW-TEST", Price: 130, Volume: 1, TsMs: lastTs + 300_000}

	assert.Eventually(t, func() bool {
		return h.agg.Len() == baseLen+1
	}, 2*time.Second, 10*time.Millisecond)

	// Ticks for other markets are ignored.
	h.stream <- domain.TradeTick{Market: "KRW-OTHER", Price: 999, Volume: 1, TsMs: lastTs + 600_000}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, baseLen+1, h.agg.Len())
}

func TestRun_BookTopReachesAggregator(t *testing.T) {
	h := newHarness(defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Run(ctx)

	waitFor[domain.MarketSelected](t, h.events, 2*time.Second)
	h.stream <- domain.BookTop{Market: "KRW-TEST", Bid: 99, Ask: 101}

	assert.Eventually(t, func() bool {
		bid, ask := h.agg.BestBidAsk()
		return bid == 99 && ask == 101
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "streaming", PhaseStreaming.String())
	assert.Equal(t, "unknown", Phase(99).String())
}
