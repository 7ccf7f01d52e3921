package domain

// Candle represents a single OHLCV interval.
// Timestamps are exchange server time in milliseconds. A series is always
// ordered oldest first; only the last (still forming) candle is mutable.
type Candle struct {
	TsMs   int64   `json:"ts_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Ticker holds a 24h notional snapshot for a single market.
// It is ephemeral: re-fetched on every selection cycle.
type Ticker struct {
	Market          string  `json:"market"`
	AccTradePrice24 float64 `json:"acc_trade_price_24h"`
}

// TradeDecision is the output of a strategy evaluation.
// ExitPosition is carried for symmetry but the breakout strategy never
// sets it; exits are left to an external stop.
type TradeDecision struct {
	EnterLong    bool
	ExitPosition bool
	LimitPrice   float64
}
