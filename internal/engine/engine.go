// Package engine drives the trading control loop: market selection,
// stream wiring, periodic strategy evaluation and order dispatch.
package engine

import (
	"context"
	"log/slog"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/market"
	"trader_go/internal/order"
	"trader_go/internal/risk"
	"trader_go/internal/strategy"
)

// Phase is the orchestrator state. No phase is terminal during normal
// operation; transport failures re-enter the same phase after a fixed
// delay.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetchingMarkets
	PhaseScoringCandidates
	PhaseSelected
	PhaseStreaming
	PhaseEvaluating
	PhaseOrdering
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetchingMarkets:
		return "fetching_markets"
	case PhaseScoringCandidates:
		return "scoring_candidates"
	case PhaseSelected:
		return "selected"
	case PhaseStreaming:
		return "streaming"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseOrdering:
		return "ordering"
	default:
		return "unknown"
	}
}

// Config carries the engine's runtime parameters.
type Config struct {
	CandleUnitMin   int
	Lookback5m      int
	RefreshInterval time.Duration
	RetryDelay      time.Duration
	EquityKRW       float64
	RiskPerTrade    float64
	DailyStopRatio  float64
}

// Internal loop messages. Async REST completions carry the generation
// they were issued under so a reply that arrives after the engine moved
// on is identified and discarded instead of applied retroactively.
type refreshDone struct {
	gen     uint64
	market  string
	candles []domain.Candle
	err     error
}

type refreshRequest struct{}

type orderDone struct {
	gen    uint64
	market string
	result domain.OrderResult
}

type placeCmd struct {
	price  float64
	volume float64
	isBuy  bool
}

type cancelCmd struct {
	uuid string
}

// Engine is the event-driven orchestrator. Its state transitions run on
// the single Run goroutine (stream messages and async completions all
// funnel into that loop); order submission and cancellation are the only
// work dispatched onto their own goroutines, so a slow order call never
// blocks stream processing. At most one market-data fetch is in flight
// at a time.
type Engine struct {
	cfg      Config
	gw       domain.Gateway
	selector *market.Selector
	agg      *market.Aggregator
	orders   *order.Manager
	strat    strategy.Breakout
	pub      domain.StreamWorker
	priv     domain.StreamWorker // nil without credentials
	emit     func(domain.Event)
	logger   *slog.Logger

	streamCh <-chan domain.StreamMessage
	asyncCh  chan any

	phase           Phase
	selectedMarket  string
	gen             uint64
	refreshInFlight bool
}

// New creates an engine. priv may be nil (public-data-only mode).
func New(cfg Config, gw domain.Gateway, selector *market.Selector, agg *market.Aggregator,
	orders *order.Manager, pub, priv domain.StreamWorker,
	streamCh <-chan domain.StreamMessage, emit func(domain.Event)) *Engine {
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		selector: selector,
		agg:      agg,
		orders:   orders,
		pub:      pub,
		priv:     priv,
		emit:     emit,
		logger:   slog.Default().With("module", "engine"),
		streamCh: streamCh,
		asyncCh:  make(chan any, 64),
		phase:    PhaseIdle,
		gen:      1,
	}
}

// PlaceLimitOrder requests a limit order on the selected market. Safe
// to call from any goroutine; the work is handed to the engine loop.
func (e *Engine) PlaceLimitOrder(price, volume float64, isBuy bool) {
	e.asyncCh <- placeCmd{price: price, volume: volume, isBuy: isBuy}
}

// CancelOrder requests a cancellation by exchange uuid.
func (e *Engine) CancelOrder(uuid string) {
	e.asyncCh <- cancelCmd{uuid: uuid}
}

// Run executes the control loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.setPhase(PhaseFetchingMarkets)
	e.selector.OnScoring = func() { e.setPhase(PhaseScoringCandidates) }
	selected, err := e.selector.Select(ctx)
	if err != nil {
		return err
	}
	e.selectedMarket = selected
	e.setPhase(PhaseSelected)
	e.emit(domain.MarketSelected{Market: selected})

	if err := e.pub.Connect(ctx); err != nil {
		e.logger.Warn("public stream start failed", slog.Any("error", err))
	}
	e.pub.Subscribe(selected)
	defer e.pub.Disconnect()
	if e.priv != nil {
		if err := e.priv.Connect(ctx); err != nil {
			e.logger.Warn("private stream start failed", slog.Any("error", err))
		}
		e.priv.Subscribe(selected)
		defer e.priv.Disconnect()
	}

	e.setPhase(PhaseStreaming)
	e.startRefresh(ctx)

	refreshTicker := time.NewTicker(e.cfg.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.streamCh:
			e.handleStream(msg)
		case res := <-e.asyncCh:
			e.handleAsync(ctx, res)
		case <-refreshTicker.C:
			e.startRefresh(ctx)
		}
	}
}

func (e *Engine) handleStream(msg domain.StreamMessage) {
	switch m := msg.(type) {
	case domain.TradeTick:
		if m.Market != "" && m.Market != e.selectedMarket {
			return
		}
		if e.agg.ApplyTrade(m.Price, m.Volume, m.TsMs) {
			e.emit(domain.CandlesUpdated{Market: e.selectedMarket})
		}
	case domain.BookTop:
		if m.Market != "" && m.Market != e.selectedMarket {
			return
		}
		e.agg.ApplyBook(m.Bid, m.Ask)
	case domain.OrderUpdate:
		e.orders.HandleUpdate(m)
	case domain.StreamUp:
		// The incrementally built series may have drifted while the
		// socket was down; fetch the authoritative baseline again.
		if !m.Private {
			e.asyncCh <- refreshRequest{}
		}
	}
}

func (e *Engine) handleAsync(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case refreshRequest:
		e.startRefresh(ctx)

	case refreshDone:
		e.refreshInFlight = false
		if m.gen != e.gen || m.market != e.selectedMarket {
			e.logger.Debug("discarding stale candle refresh", "market", m.market)
			return
		}
		if m.err != nil {
			e.logger.Warn("candle refresh failed, retrying", slog.Any("error", m.err))
			e.scheduleRetry(ctx)
			return
		}
		if len(m.candles) > 0 {
			e.agg.Replace(m.candles)
			e.emit(domain.CandlesUpdated{Market: e.selectedMarket})
			e.evaluate(ctx)
		}

	case orderDone:
		if m.gen != e.gen || m.market != e.selectedMarket {
			e.logger.Debug("discarding stale order reply", "market", m.market)
			return
		}
		// Acceptance/rejection events were already emitted by the
		// order manager; nothing retroactive happens here.
		if m.result.Accepted {
			e.logger.Debug("order dispatch finished", "uuid", m.result.UUID)
		}

	case placeCmd:
		if e.selectedMarket == "" {
			e.emit(domain.OrderRejected{Reason: domain.ErrNoMarketSelected.Error()})
			return
		}
		e.dispatchOrder(ctx, domain.OrderRequest{
			Market:  e.selectedMarket,
			Side:    sideOf(m.isBuy),
			OrdType: domain.OrdTypeLimit,
			Price:   m.price,
			Volume:  m.volume,
		})

	case cancelCmd:
		uuid := m.uuid
		mkt := e.selectedMarket
		go func() {
			e.orders.Cancel(ctx, mkt, uuid)
		}()
	}
}

// startRefresh launches the authoritative candle fetch unless one is
// already pending (market-data REST is strictly serialized).
func (e *Engine) startRefresh(ctx context.Context) {
	if e.refreshInFlight || e.selectedMarket == "" {
		return
	}
	e.refreshInFlight = true
	gen := e.gen
	mkt := e.selectedMarket
	go func() {
		candles, err := e.gw.GetCandles(ctx, mkt, e.cfg.CandleUnitMin, e.cfg.Lookback5m)
		e.asyncCh <- refreshDone{gen: gen, market: mkt, candles: candles, err: err}
	}()
}

func (e *Engine) scheduleRetry(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(e.cfg.RetryDelay):
			e.asyncCh <- refreshRequest{}
		}
	}()
}

// evaluate runs the strategy over the current series and, on an entry
// signal, sizes and dispatches a limit order.
func (e *Engine) evaluate(ctx context.Context) {
	e.setPhase(PhaseEvaluating)
	defer e.setPhase(PhaseStreaming)

	candles := e.agg.Candles()
	decision := e.strat.Evaluate(candles)
	if !decision.EnterLong {
		return
	}

	pnlRatio := 0.0
	if e.cfg.EquityKRW > 0 {
		pnlRatio = e.orders.RealizedPnL() / e.cfg.EquityKRW
	}
	if risk.DailyStopTriggered(pnlRatio, e.cfg.DailyStopRatio) {
		e.logger.Warn("daily stop active, skipping entry", "pnl_ratio", pnlRatio)
		return
	}

	atr := strategy.ATR(candles)
	volume := risk.PositionSize(e.cfg.EquityKRW, atr, e.cfg.RiskPerTrade)
	if volume <= 0 {
		return
	}

	e.setPhase(PhaseOrdering)
	e.dispatchOrder(ctx, domain.OrderRequest{
		Market:  e.selectedMarket,
		Side:    domain.SideBuy,
		OrdType: domain.OrdTypeLimit,
		Price:   decision.LimitPrice,
		Volume:  volume,
	})
}

// dispatchOrder submits off the event loop; the completion comes back
// through asyncCh tagged with the current generation.
func (e *Engine) dispatchOrder(ctx context.Context, req domain.OrderRequest) {
	bid, ask := e.agg.BestBidAsk()
	gen := e.gen
	mkt := e.selectedMarket
	go func() {
		res := e.orders.Place(ctx, req, bid, ask)
		e.asyncCh <- orderDone{gen: gen, market: mkt, result: res}
	}()
}

func (e *Engine) setPhase(p Phase) {
	if e.phase == p {
		return
	}
	e.logger.Debug("phase transition", "from", e.phase.String(), "to", p.String())
	e.phase = p
}

func sideOf(isBuy bool) string {
	if isBuy {
		return domain.SideBuy
	}
	return domain.SideSell
}
