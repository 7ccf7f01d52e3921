package upbit

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePrice_TickBands(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"above 2M floors to 1000", 2_345_678, 2_345_000},
		{"above 1M floors to 500", 1_234_567, 1_234_500},
		{"above 500k floors to 100", 567_890, 567_800},
		{"above 100k floors to 50", 123_456, 123_450},
		{"above 50k floors to 10", 56_789, 56_780},
		{"above 10k floors to 5", 12_345, 12_345},
		{"above 1k floors to 1", 1_234.7, 1_234},
		{"above 100 floors to 0.1", 123.45, 123.4},
		{"above 10 floors to 0.01", 12.345, 12.34},
		{"above 1 floors to 0.001", 1.2345, 1.234},
		{"below 1 floors to 0.0001", 0.12345, 0.1234},
		{"zero normalizes to zero", 0, 0},
		{"negative normalizes to zero", -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizePrice(tt.price), 1e-9)
		})
	}
}

func TestNormalizePrice_Idempotent(t *testing.T) {
	prices := []float64{0.0007, 0.1234, 3.14159, 99.99, 1_024.77, 45_678.9, 87_654.3, 456_789, 1_999_999, 73_000_000}
	for _, p := range prices {
		once := NormalizePrice(p)
		twice := NormalizePrice(once)
		assert.Equal(t, once, twice, "price %v", p)
	}
}

func TestNormalizeVolume_NotionalFloorNeverViolated(t *testing.T) {
	prices := []float64{0.5, 1, 99.7, 1_234, 56_780, 1_234_500, 98_000_000}
	volumes := []float64{0, 0.00000001, 0.001, 0.5, 3, 1000}
	for _, price := range prices {
		for _, volume := range volumes {
			for _, isBuy := range []bool{true, false} {
				got := NormalizeVolume(price, volume, isBuy, MinNotionalKRW)
				notional := price * got
				assert.GreaterOrEqual(t, notional, MinNotionalKRW-1e-6,
					"price=%v volume=%v isBuy=%v got=%v", price, volume, isBuy, got)
			}
		}
	}
}

func TestNormalizeVolume_RespectsRequestedVolume(t *testing.T) {
	// Requested volume already clears the floor: only quantization applies.
	got := NormalizeVolume(50_000, 2.123456789, false, MinNotionalKRW)
	assert.InDelta(t, 2.12345678, got, 1e-12)
}

func TestNormalizeVolume_BuyCoversFee(t *testing.T) {
	price := 10_000.0
	vol := NormalizeVolume(price, 0, true, MinNotionalKRW)
	// Post-fee proceeds must still clear the floor.
	assert.GreaterOrEqual(t, price*vol*(1.0-FeeRateTaker), MinNotionalKRW-1e-6)

	sellVol := NormalizeVolume(price, 0, false, MinNotionalKRW)
	assert.Greater(t, vol, sellVol, "buy minimum should be inflated by the fee")
}

func TestNormalizeVolume_NonPositivePrice(t *testing.T) {
	assert.Zero(t, NormalizeVolume(0, 1, true, MinNotionalKRW))
	assert.Zero(t, NormalizeVolume(-10, 1, false, MinNotionalKRW))
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1234, "1234"},
		{1234.5, "1234.5"},
		{0.00012345, "0.00012345"},
		{1.10000000, "1.1"},
		{0.1, "0.1"},
	}
	for _, tt := range tests {
		got := FormatDecimal(tt.in)
		assert.Equal(t, tt.want, got)
		assert.False(t, strings.ContainsAny(got, "eE"), "no scientific notation: %s", got)
	}
}

func TestTickSize_Monotone(t *testing.T) {
	// Coarser ticks at higher magnitudes.
	prev := math.Inf(1)
	for _, p := range []float64{3_000_000, 1_500_000, 700_000, 200_000, 60_000, 20_000, 5_000, 500, 50, 5, 0.5} {
		tick := TickSize(p)
		assert.LessOrEqual(t, tick, prev, "price %v", p)
		prev = tick
	}
}
