package market

import (
	"sync"
	"time"

	"trader_go/internal/domain"
)

const (
	// notifyIntervalMs throttles "candles updated" notifications so a
	// burst of trades cannot flood consumers.
	notifyIntervalMs = 1_000
)

// Aggregator maintains a live, bounded candle series from the trade
// stream plus the best bid/ask from the orderbook stream.
//
// The incremental path is a latency optimization only: Replace installs
// the authoritative REST series and supersedes anything built from
// trades. Exactly one still-forming candle sits at the tail; closed
// intervals are immutable history.
//
// Safe for a single stream-side writer with concurrent readers.
type Aggregator struct {
	mu         sync.RWMutex
	candles    []domain.Candle
	intervalMs int64
	maxLen     int

	bestBid float64
	bestAsk float64

	lastNotifyMs int64
	nowMs        func() int64 // injectable for tests
}

// NewAggregator creates an aggregator for the given interval and
// sliding-window length.
func NewAggregator(intervalMin, maxLen int) *Aggregator {
	return &Aggregator{
		intervalMs: int64(intervalMin) * 60_000,
		maxLen:     maxLen,
		nowMs:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Replace atomically installs an authoritative oldest-first series.
func (a *Aggregator) Replace(series []domain.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candles = append(a.candles[:0:0], series...)
}

// ApplyTrade folds one trade event into the series and reports whether
// a throttled "updated" notification should fire.
//
// Trades inside the tail interval mutate the tail; a trade past the
// window appends a candle seeded with open = previous close; trades
// older than the tail are discarded without retroactive correction.
// Trades arriving before any baseline exists are dropped too; the
// REST refresh establishes the series.
func (a *Aggregator) ApplyTrade(price, volume float64, tsMs int64) bool {
	if price <= 0 || tsMs <= 0 {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.candles) == 0 {
		return false
	}
	last := &a.candles[len(a.candles)-1]
	if tsMs < last.TsMs {
		return false
	}

	if tsMs-last.TsMs >= a.intervalMs {
		next := domain.Candle{
			TsMs:   tsMs,
			Open:   last.Close,
			Close:  price,
			High:   last.Close,
			Low:    last.Close,
			Volume: volume,
		}
		if price > next.High {
			next.High = price
		}
		if price < next.Low {
			next.Low = price
		}
		a.candles = append(a.candles, next)
		if len(a.candles) > a.maxLen {
			a.candles = a.candles[1:]
		}
	} else {
		last.Close = price
		if price > last.High {
			last.High = price
		}
		if price < last.Low {
			last.Low = price
		}
		last.Volume += volume
	}

	now := a.nowMs()
	if now-a.lastNotifyMs >= notifyIntervalMs {
		a.lastNotifyMs = now
		return true
	}
	return false
}

// ApplyBook updates the best bid/ask from the top-of-book level.
func (a *Aggregator) ApplyBook(bid, ask float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bestBid = bid
	a.bestAsk = ask
}

// BestBidAsk returns the last seen top-of-book prices.
func (a *Aggregator) BestBidAsk() (bid, ask float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bestBid, a.bestAsk
}

// Candles returns a copy of the current series, oldest first.
func (a *Aggregator) Candles() []domain.Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.Candle(nil), a.candles...)
}

// Len returns the current series length.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.candles)
}
