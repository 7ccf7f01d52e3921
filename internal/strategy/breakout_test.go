package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trader_go/internal/domain"
)

func risingSeries(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		base := 100 + float64(i)
		out[i] = domain.Candle{
			TsMs:  int64(i) * 300_000,
			Open:  base,
			High:  base + 1,
			Low:   base - 0.5,
			Close: base + 1,
		}
	}
	return out
}

func flatStrategySeries(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{TsMs: int64(i) * 300_000, Open: 100, High: 100, Low: 100, Close: 100}
	}
	return out
}

func TestEvaluate_RisingSeriesEnters(t *testing.T) {
	candles := risingSeries(10)
	d := Breakout{}.Evaluate(candles)

	assert.True(t, d.EnterLong)
	assert.Equal(t, candles[len(candles)-1].Close, d.LimitPrice)
	assert.False(t, d.ExitPosition, "this strategy never signals an exit")
}

func TestEvaluate_FlatSeriesHoldsOff(t *testing.T) {
	d := Breakout{}.Evaluate(flatStrategySeries(20))
	assert.False(t, d.EnterLong, "zero range means ATR is zero")
}

func TestEvaluate_CloseBelowRollingHigh(t *testing.T) {
	candles := risingSeries(10)
	// One earlier spike the last close cannot clear.
	candles[6].High = 500
	d := Breakout{}.Evaluate(candles)
	assert.False(t, d.EnterLong)
}

func TestEvaluate_ShortSeriesIsNoOp(t *testing.T) {
	d := Breakout{}.Evaluate(risingSeries(7))
	assert.False(t, d.EnterLong)
	assert.Zero(t, d.LimitPrice)
}

func TestATR(t *testing.T) {
	assert.Zero(t, ATR(nil))
	assert.Zero(t, ATR(risingSeries(1)))
	assert.Zero(t, ATR(flatStrategySeries(20)))

	// Rising series: every interval has positive true range.
	assert.Greater(t, ATR(risingSeries(10)), 0.0)
	assert.Greater(t, ATR(risingSeries(20)), 0.0)
}
