package domain

// Event is the outbound notification contract of the engine. Consumers
// (UI, telemetry) receive these over a channel; the engine never blocks
// on a slow consumer.
type Event interface {
	event()
}

// MarketSelected fires once a selection cycle picks a market.
type MarketSelected struct {
	Market string
}

// CandlesUpdated signals that the live candle series changed. Emission
// is throttled by the aggregator.
type CandlesUpdated struct {
	Market string
}

// OrderExecuted fires on every fill observed on the private stream.
type OrderExecuted struct {
	Market string
	TsMs   int64
	Price  float64
	IsBuy  bool
}

// PositionChanged carries the position record after a fill was applied.
type PositionChanged struct {
	Market   string
	Qty      float64
	AvgPrice float64
}

// OrderAccepted fires when the exchange returned an order uuid.
type OrderAccepted struct {
	Market string
	UUID   string
	IsBuy  bool
	Price  float64
	Volume float64
}

// OrderRejected carries the exchange's reason. Rejected orders are
// never retried automatically.
type OrderRejected struct {
	Market string
	Reason string
}

func (MarketSelected) event()  {}
func (CandlesUpdated) event()  {}
func (OrderExecuted) event()   {}
func (PositionChanged) event() {}
func (OrderAccepted) event()   {}
func (OrderRejected) event()   {}

// StreamMessage is a parsed message from one of the market streams,
// delivered into the engine inbox.
type StreamMessage interface {
	stream()
}

// TradeTick is one public trade event.
type TradeTick struct {
	Market string
	Price  float64
	Volume float64
	TsMs   int64
}

// BookTop is the top-of-book level from an orderbook event.
type BookTop struct {
	Market string
	Bid    float64
	Ask    float64
}

// OrderFill is a single execution belonging to an own-order update.
type OrderFill struct {
	Price  float64
	Volume float64
	TsMs   int64
}

// OrderUpdate is a private own-order event: zero or more fills plus the
// remaining volume and terminal state reported by the exchange.
type OrderUpdate struct {
	UUID      string
	Market    string
	IsBuy     bool
	Fills     []OrderFill
	Remaining float64
	State     string
}

// StreamUp signals that a stream (re)connected and subscriptions were
// resent; the engine answers with an authoritative candle refresh.
type StreamUp struct {
	Private bool
}

func (TradeTick) stream()   {}
func (BookTop) stream()     {}
func (OrderUpdate) stream() {}
func (StreamUp) stream()    {}
