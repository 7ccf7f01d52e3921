// Package order implements the order lifecycle: normalization, signed
// submission, pending-order tracking through partial fills, and
// execution-quality metrics (slippage, fill rate).
package order

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/infra/storage"
	"trader_go/internal/infra/upbit"
)

const closeEpsilon = 1e-8

// Manager submits orders through the gateway and tracks every accepted
// order until its terminal state. Pending orders are keyed by exchange
// uuid under a single mutex; the stream handler is the only writer of
// fill state.
type Manager struct {
	gw          domain.Gateway
	feeRate     float64
	minNotional float64
	emit        func(domain.Event)
	journal     *storage.Journal // nil disables persistence
	logger      *slog.Logger
	nowMs       func() int64

	mu          sync.Mutex
	pending     map[string]*domain.PendingOrder
	position    domain.Position
	realizedPnL float64
}

// NewManager creates an order manager. journal may be nil; emit must
// not be.
func NewManager(gw domain.Gateway, feeRate, minNotional float64, emit func(domain.Event), journal *storage.Journal) *Manager {
	return &Manager{
		gw:          gw,
		feeRate:     feeRate,
		minNotional: minNotional,
		emit:        emit,
		journal:     journal,
		logger:      slog.Default().With("module", "order_manager"),
		nowMs:       func() int64 { return time.Now().UnixMilli() },
		pending:     make(map[string]*domain.PendingOrder),
	}
}

// Place normalizes the request per order type, submits it, and on
// acceptance registers a PendingOrder snapshotting the top of book as
// the slippage reference. The returned result mirrors the gateway's:
// a rejection is reported, never retried here.
func (m *Manager) Place(ctx context.Context, req domain.OrderRequest, refBid, refAsk float64) domain.OrderResult {
	normalized := req
	isBuy := req.IsBuy()
	if normalized.OrdType == "" {
		normalized.OrdType = domain.OrdTypeLimit
	}
	normalized.OrdType = strings.ToLower(normalized.OrdType)

	switch normalized.OrdType {
	case domain.OrdTypeLimit:
		normalized.Price = upbit.NormalizePrice(req.Price)
		normalized.Volume = upbit.NormalizeVolume(normalized.Price, req.Volume, isBuy, m.minNotional)
	case domain.OrdTypePrice:
		// Market buy: the price field carries the total KRW to spend.
		normalized.Price = math.Floor(math.Max(req.Price, m.minNotional))
		normalized.Volume = 0
	case domain.OrdTypeMarket:
		// Market sell: volume only, quantized against a reference price.
		refPrice := req.Price
		if refPrice <= 0 {
			refPrice = 1.0
		}
		normalized.Volume = upbit.NormalizeVolume(refPrice, req.Volume, isBuy, m.minNotional)
		normalized.Price = 0
	}

	res, err := m.gw.PostOrder(ctx, normalized)
	if err != nil {
		reason := fmt.Sprintf("REST failure: %v", err)
		m.logger.Warn("order submit failed", "market", req.Market, slog.Any("error", err))
		m.emit(domain.OrderRejected{Market: req.Market, Reason: reason})
		res.ErrorMessage = reason
		return res
	}

	if !res.Accepted {
		msg := res.ErrorMessage
		if msg == "" {
			msg = res.RawResponse
		}
		if msg == "" {
			msg = "unknown error"
		}
		reason := msg
		if res.HTTPStatus > 0 {
			reason = fmt.Sprintf("HTTP %d %s", res.HTTPStatus, msg)
		}
		if res.HTTPStatus == 429 {
			m.logger.Warn("rate limited", "context", "order", "status", res.HTTPStatus, "reason", reason)
		} else {
			m.logger.Warn("order rejected", "reason", reason)
		}
		m.emit(domain.OrderRejected{Market: req.Market, Reason: reason})
		return res
	}

	ctxOrder := &domain.PendingOrder{
		IsBuy:           isBuy,
		Price:           normalized.Price,
		Volume:          normalized.Volume,
		SubmittedMs:     m.nowMs(),
		BestBidAtSubmit: refBid,
		BestAskAtSubmit: refAsk,
	}
	m.mu.Lock()
	m.pending[res.UUID] = ctxOrder
	m.mu.Unlock()

	gross := normalized.Price * normalized.Volume
	m.logger.Info("order accepted",
		"uuid", res.UUID,
		"market", req.Market,
		"side", sideLabel(isBuy),
		"price", normalized.Price,
		"volume", normalized.Volume,
		"gross", gross,
		"fee_est", gross*m.feeRate,
		"best_bid", refBid,
		"best_ask", refAsk,
	)
	m.emit(domain.OrderAccepted{
		Market: req.Market,
		UUID:   res.UUID,
		IsBuy:  isBuy,
		Price:  normalized.Price,
		Volume: normalized.Volume,
	})

	if m.journal != nil {
		rec := &storage.OrderRecord{
			UUID:        res.UUID,
			Market:      req.Market,
			Side:        sideLabel(isBuy),
			OrdType:     normalized.OrdType,
			Price:       normalized.Price,
			Volume:      normalized.Volume,
			SubmittedAt: time.UnixMilli(ctxOrder.SubmittedMs),
		}
		if err := m.journal.SaveOrder(rec); err != nil {
			m.logger.Warn("journal write failed", slog.Any("error", err))
		}
	}
	return res
}

// HandleUpdate reconciles one private own-order event: applies every
// fill, updates the position, and retires the order on its terminal
// state with a final fill-rate and average-slippage summary.
func (m *Manager) HandleUpdate(u domain.OrderUpdate) {
	for _, fill := range u.Fills {
		m.applyFill(u.Market, u.UUID, u.IsBuy, fill)
	}

	if u.Remaining <= 0 || u.State == "done" {
		m.mu.Lock()
		ctxOrder, ok := m.pending[u.UUID]
		if ok {
			delete(m.pending, u.UUID)
		}
		m.mu.Unlock()
		if !ok {
			return
		}

		reference := ctxOrder.SlippageReference()
		avgFill := ctxOrder.WeightedFillPrice
		slipAbs, slipBps := 0.0, 0.0
		if reference > 0 && avgFill > 0 {
			if ctxOrder.IsBuy {
				slipAbs = avgFill - reference
			} else {
				slipAbs = reference - avgFill
			}
			slipBps = slipAbs / reference * 10_000
		}
		m.logger.Info("order completed",
			"uuid", u.UUID,
			"fill_rate", ctxOrder.FillRate(),
			"avg_fill", avgFill,
			"slippage", slipAbs,
			"slippage_bps", slipBps,
		)
		if m.journal != nil {
			rec := &storage.ExecutionRecord{
				UUID:           u.UUID,
				Market:         u.Market,
				IsBuy:          ctxOrder.IsBuy,
				AvgFillPrice:   avgFill,
				FilledVolume:   ctxOrder.FilledVolume,
				FillRate:       ctxOrder.FillRate(),
				AvgSlippageBps: slipBps,
				CompletedAt:    time.UnixMilli(m.nowMs()),
			}
			if err := m.journal.SaveExecution(rec); err != nil {
				m.logger.Warn("journal write failed", slog.Any("error", err))
			}
		}
	}
}

// applyFill folds one execution into position and pending-order state.
// Fills for untracked uuids (orders placed outside this process) still
// move the position.
func (m *Manager) applyFill(market, uuid string, isBuy bool, fill domain.OrderFill) {
	if fill.Price <= 0 || fill.Volume <= 0 {
		return
	}
	ts := fill.TsMs
	if ts <= 0 {
		ts = m.nowMs()
	}

	m.emit(domain.OrderExecuted{Market: market, TsMs: ts, Price: fill.Price, IsBuy: isBuy})
	m.updatePosition(market, isBuy, fill.Price, fill.Volume)

	m.mu.Lock()
	ctxOrder, ok := m.pending[uuid]
	if !ok {
		m.mu.Unlock()
		return
	}
	prevFilled := ctxOrder.FilledVolume
	ctxOrder.FilledVolume += fill.Volume
	if ctxOrder.FilledVolume > 0 {
		ctxOrder.WeightedFillPrice = (ctxOrder.WeightedFillPrice*prevFilled + fill.Price*fill.Volume) / ctxOrder.FilledVolume
	}
	reference := ctxOrder.SlippageReference()
	fillRate := ctxOrder.FillRate()
	isBuyOrder := ctxOrder.IsBuy
	m.mu.Unlock()

	if reference > 0 {
		slipAbs := fill.Price - reference
		if !isBuyOrder {
			slipAbs = reference - fill.Price
		}
		m.logger.Info("order fill",
			"uuid", uuid,
			"volume", fill.Volume,
			"price", fill.Price,
			"slippage", slipAbs,
			"slippage_bps", slipAbs/reference*10_000,
			"fill_rate", fillRate,
		)
	}
}

// updatePosition re-averages on buys and unwinds on sells. A sell that
// covers the whole quantity within a small residue zeroes the record;
// quantity never goes negative.
func (m *Manager) updatePosition(market string, isBuy bool, price, volume float64) {
	if volume <= 0 {
		return
	}
	m.mu.Lock()
	if isBuy {
		totalCost := m.position.AvgPrice*m.position.Qty + price*volume
		m.position.Qty += volume
		if m.position.Qty > 0 {
			m.position.AvgPrice = totalCost / m.position.Qty
		} else {
			m.position.AvgPrice = 0
		}
	} else {
		closed := math.Min(volume, m.position.Qty)
		m.realizedPnL += (price - m.position.AvgPrice) * closed
		if volume >= m.position.Qty-closeEpsilon {
			m.position.Qty = 0
			m.position.AvgPrice = 0
		} else {
			m.position.Qty -= volume
		}
	}
	pos := m.position
	m.mu.Unlock()

	m.emit(domain.PositionChanged{Market: market, Qty: pos.Qty, AvgPrice: pos.AvgPrice})
}

// Cancel submits a cancellation. Success removes the pending order;
// failure leaves it tracked since the order may still be live.
func (m *Manager) Cancel(ctx context.Context, market, uuid string) domain.OrderResult {
	if uuid == "" {
		return domain.OrderResult{}
	}

	res, err := m.gw.CancelOrder(ctx, uuid)
	if err != nil {
		reason := fmt.Sprintf("Cancel failed: %v", err)
		m.logger.Warn("cancel failed", "uuid", uuid, slog.Any("error", err))
		m.emit(domain.OrderRejected{Market: market, Reason: reason})
		res.ErrorMessage = reason
		return res
	}
	if !res.Accepted {
		msg := res.ErrorMessage
		if msg == "" {
			msg = res.RawResponse
		}
		if msg == "" {
			msg = "unknown error"
		}
		reason := msg
		if res.HTTPStatus > 0 {
			reason = fmt.Sprintf("Cancel HTTP %d %s", res.HTTPStatus, msg)
		}
		if res.HTTPStatus == 429 {
			m.logger.Warn("rate limited", "context", "cancel", "status", res.HTTPStatus, "reason", reason)
		} else {
			m.logger.Warn("cancel rejected", "reason", reason)
		}
		m.emit(domain.OrderRejected{Market: market, Reason: reason})
		return res
	}

	m.mu.Lock()
	delete(m.pending, uuid)
	m.mu.Unlock()
	m.logger.Info("order cancel confirmed", "uuid", uuid)
	return res
}

// Pending returns a copy of the tracked order, if any.
func (m *Manager) Pending(uuid string) (domain.PendingOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[uuid]
	if !ok {
		return domain.PendingOrder{}, false
	}
	return *p, true
}

// PendingCount returns the number of tracked orders.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Position returns the current position record.
func (m *Manager) Position() domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// RealizedPnL returns the cumulative realized profit in quote currency.
func (m *Manager) RealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedPnL
}

func sideLabel(isBuy bool) string {
	if isBuy {
		return "BUY"
	}
	return "SELL"
}
