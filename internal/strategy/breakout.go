package strategy

import (
	"math"

	"trader_go/internal/domain"
)

const (
	// minCandles is the minimum series length the evaluator accepts.
	minCandles = 8
	// atrPeriod is the true-range lookback.
	atrPeriod = 14
	// breakoutLookback is how many candles before the last form the
	// rolling high.
	breakoutLookback = 5
)

// Breakout is the 5-minute breakout evaluator: enter long when the last
// close clears the rolling high of the preceding candles and the market
// is actually moving (ATR > 0). It is a pure function of the series and
// holds no state.
//
// It never signals an exit; closing the position is left to an external
// stop. That asymmetry is deliberate, not an omission.
type Breakout struct{}

// Evaluate inspects an oldest-first candle series and returns a trade
// decision. Series shorter than 8 candles yield a no-op decision.
func (Breakout) Evaluate(candles []domain.Candle) domain.TradeDecision {
	var d domain.TradeDecision
	if len(candles) < minCandles {
		return d
	}

	last := candles[len(candles)-1]
	atr := averageTrueRange(candles, atrPeriod)

	// Rolling high over the candles preceding the last. The last candle
	// is excluded so that a close at its own high can still break out.
	start := len(candles) - breakoutLookback - 1
	if start < 0 {
		start = 0
	}
	hh := candles[start].High
	for i := start + 1; i < len(candles)-1; i++ {
		if candles[i].High > hh {
			hh = candles[i].High
		}
	}

	if last.Close > hh && atr > 0 {
		d.EnterLong = true
		d.LimitPrice = last.Close
	}
	return d
}

// averageTrueRange is the mean true range over the last n intervals,
// capped at what the series can supply (a previous close is needed for
// every interval).
func averageTrueRange(candles []domain.Candle, n int) float64 {
	if len(candles) < 2 {
		return 0
	}
	start := len(candles) - n
	if start < 1 {
		start = 1
	}
	sum := 0.0
	k := 0
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := math.Max(candles[i].High-candles[i].Low,
			math.Max(math.Abs(candles[i].High-prevClose), math.Abs(candles[i].Low-prevClose)))
		sum += tr
		k++
	}
	if k == 0 {
		return 0
	}
	return sum / float64(k)
}

// ATR exposes the evaluator's volatility proxy for the risk sizer.
func ATR(candles []domain.Candle) float64 {
	return averageTrueRange(candles, atrPeriod)
}
