package upbit

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// MinNotionalKRW is the exchange's hard minimum order value.
	MinNotionalKRW = 5000.0
	// FeeRateTaker is the spot taker fee fraction.
	FeeRateTaker = 0.0005

	quantEpsilon = 1e-9
)

// TickSize returns the minimum price increment for the given price band.
// Ticks get coarser at higher KRW magnitudes.
func TickSize(price float64) float64 {
	switch {
	case price >= 2_000_000:
		return 1_000
	case price >= 1_000_000:
		return 500
	case price >= 500_000:
		return 100
	case price >= 100_000:
		return 50
	case price >= 50_000:
		return 10
	case price >= 10_000:
		return 5
	case price >= 1_000:
		return 1
	case price >= 100:
		return 0.1
	case price >= 10:
		return 0.01
	case price >= 1:
		return 0.001
	default:
		return 0.0001
	}
}

// NormalizePrice floors a price to its band tick and rounds the result
// to 8 decimals to shake out floating-point noise. Non-positive prices
// normalize to 0. The operation is idempotent.
func NormalizePrice(price float64) float64 {
	if price <= 0 {
		return 0
	}
	tick := TickSize(price)
	scaled := math.Floor(price/tick+quantEpsilon) * tick
	return math.Round(scaled*1e8) / 1e8
}

// NormalizeVolume returns the order volume quantized to 8 decimals,
// raised to the minimum that satisfies the notional floor. Buys inflate
// the minimum by 1/(1-fee) so post-fee proceeds still clear the floor.
//
// Flooring first favors not over-spending; the final ceiling correction
// guarantees the exchange's hard minimum is never violated.
func NormalizeVolume(price, volume float64, isBuy bool, minNotional float64) float64 {
	if price <= 0 {
		return 0
	}
	minVolume := minNotional / price
	if isBuy && FeeRateTaker > 0 {
		minVolume = math.Max(minVolume, (minNotional/price)/(1.0-FeeRateTaker))
	}
	target := math.Max(volume, minVolume)
	quantized := math.Floor(target*1e8+quantEpsilon) / 1e8
	if quantized < minVolume-quantEpsilon {
		quantized = math.Ceil(minVolume*1e8-quantEpsilon) / 1e8
	}
	if price*quantized < minNotional-quantEpsilon {
		quantized = math.Ceil((minNotional/price)*1e8-quantEpsilon) / 1e8
	}
	return quantized
}

// FormatDecimal renders a price or volume for the wire: plain decimal
// string, at most 8 fractional digits, trailing zeros stripped, never
// scientific notation.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
