// Package risk holds the two pure sizing and circuit-breaker rules.
package risk

import "math"

// PositionSize returns the order volume for the given equity, ATR and
// risk fraction: equity * risk / ATR. Zero when ATR is not positive,
// never negative.
func PositionSize(equity, atr, riskPerTrade float64) float64 {
	if atr <= 0 {
		return 0
	}
	return math.Max(0, equity*riskPerTrade/atr)
}

// DailyStopTriggered reports whether the daily loss circuit breaker
// fires. The threshold is sign-insensitive: a stop ratio of 0.03 and
// -0.03 both trip at a -3% day.
func DailyStopTriggered(dailyPnLRatio, dailyStopRatio float64) bool {
	return dailyPnLRatio <= -math.Abs(dailyStopRatio)
}
