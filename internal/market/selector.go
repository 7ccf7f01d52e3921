package market

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"trader_go/internal/domain"
)

const (
	// DefaultMarket is the hardcoded last-resort fallback; selection
	// must never fail to produce a market.
	DefaultMarket = "KRW-BTC"

	scoreEpsilon = 1e-9
)

// Selector picks one market to trade by balancing liquidity and
// movement: a cheap 24h-notional scan reduces the universe to a top-K
// candidate set, and only those candidates pay for a per-market candle
// fetch. That staged reduce-then-refine shape is the cost control that
// keeps a full-universe scan off the rate limit.
type Selector struct {
	gw         domain.Gateway
	topK       int
	lookback1m int
	retryDelay time.Duration
	logger     *slog.Logger

	// OnScoring, when set, is invoked (on the caller's goroutine) as a
	// cycle moves from the ticker scan to the candidate scoring step.
	OnScoring func()
}

// NewSelector creates a selector over the given gateway.
func NewSelector(gw domain.Gateway, topK, lookback1m int, retryDelay time.Duration) *Selector {
	return &Selector{
		gw:         gw,
		topK:       topK,
		lookback1m: lookback1m,
		retryDelay: retryDelay,
		logger:     slog.Default().With("module", "selector"),
	}
}

// Select runs one selection cycle. REST calls are issued one at a time;
// transport failures retry the same step after a fixed delay, so the
// cycle resumes rather than restarts. The only error returned is a
// cancelled context.
func (s *Selector) Select(ctx context.Context) (string, error) {
	universe, err := s.marketsWithRetry(ctx)
	if err != nil {
		return "", err
	}
	if len(universe) == 0 {
		s.logger.Warn("empty market universe, using default", "market", DefaultMarket)
		return DefaultMarket, nil
	}

	tickers, err := s.tickersWithRetry(ctx, universe)
	if err != nil {
		return "", err
	}

	// Rank by 24h notional descending, keep the top-K candidates.
	sort.SliceStable(tickers, func(i, j int) bool {
		return tickers[i].AccTradePrice24 > tickers[j].AccTradePrice24
	})
	limit := s.topK
	if limit > len(tickers) {
		limit = len(tickers)
	}
	candidates := tickers[:limit]

	if s.OnScoring != nil {
		s.OnScoring()
	}

	bestScore := math.Inf(-1)
	bestMarket := ""
	for _, cand := range candidates {
		candles, err := s.gw.GetCandles(ctx, cand.Market, 1, s.lookback1m)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Skip the candidate; the cycle must keep moving.
			s.logger.Warn("candidate candle fetch failed", "market", cand.Market, slog.Any("error", err))
			continue
		}
		rv := realizedVol(candles)
		if rv <= 0 || cand.AccTradePrice24 <= 0 {
			continue
		}
		score := math.Log(math.Max(scoreEpsilon, cand.AccTradePrice24)) * rv
		if score > bestScore {
			bestScore = score
			bestMarket = cand.Market
		}
	}

	// Fallback chain: first candidate, first market in the universe,
	// hardcoded default.
	if bestMarket == "" {
		if len(candidates) > 0 {
			bestMarket = candidates[0].Market
		} else {
			bestMarket = universe[0]
		}
		s.logger.Info("no positive score, falling back", "market", bestMarket)
	} else {
		s.logger.Info("market selected", "market", bestMarket, "score", bestScore)
	}
	return bestMarket, nil
}

func (s *Selector) marketsWithRetry(ctx context.Context) ([]string, error) {
	for {
		markets, err := s.gw.GetMarkets(ctx)
		if err == nil {
			return markets, nil
		}
		s.logger.Warn("market list fetch failed, retrying", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Selector) tickersWithRetry(ctx context.Context, markets []string) ([]domain.Ticker, error) {
	for {
		tickers, err := s.gw.GetTickers(ctx, markets)
		if err == nil {
			return tickers, nil
		}
		s.logger.Warn("ticker fetch failed, retrying", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

// realizedVol computes the root mean square of consecutive log-returns
// over the series. Pairs with a non-positive close are skipped.
func realizedVol(candles []domain.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	sumSq := 0.0
	n := 0
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close <= 0 || candles[i].Close <= 0 {
			continue
		}
		r := math.Log(candles[i].Close / candles[i-1].Close)
		sumSq += r * r
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}
