package domain

// Order sides and types use the engine vocabulary. Conversion to the
// exchange vocabulary (buy -> bid, sell -> ask) happens only at the
// gateway boundary, never upstream.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	// OrdTypeLimit is a plain limit order with price and volume.
	OrdTypeLimit = "limit"
	// OrdTypePrice is a quote-notional market buy: the price field
	// carries the total KRW to spend, volume is empty.
	OrdTypePrice = "price"
	// OrdTypeMarket is a market sell: only volume is set.
	OrdTypeMarket = "market"
)

// OrderRequest describes an order before gateway normalization.
type OrderRequest struct {
	Market  string
	Side    string
	OrdType string
	Price   float64
	Volume  float64
}

// IsBuy reports whether the request is on the bid side. The exchange
// term is accepted too so callers can round-trip gateway payloads.
func (r OrderRequest) IsBuy() bool {
	return r.Side == SideBuy || r.Side == "bid"
}

// OrderResult is the outcome of an order submit or cancel call.
// Accepted is true iff an order uuid was extracted from the response;
// callers must not infer success from the HTTP status alone.
type OrderResult struct {
	Accepted     bool
	UUID         string
	HTTPStatus   int
	ErrorMessage string
	RawResponse  string
}

// PendingOrder tracks a submitted order until it terminates.
// BestBid/BestAsk are captured at submission time and serve as the
// slippage reference for every fill.
type PendingOrder struct {
	IsBuy             bool
	Price             float64
	Volume            float64
	SubmittedMs       int64
	FilledVolume      float64
	WeightedFillPrice float64
	BestBidAtSubmit   float64
	BestAskAtSubmit   float64
}

// FillRate returns cumulative filled volume over requested volume.
func (p PendingOrder) FillRate() float64 {
	if p.Volume <= 0 {
		return 1.0
	}
	return p.FilledVolume / p.Volume
}

// SlippageReference returns the pre-submission reference price for the
// order's direction, falling back to the requested price when no book
// level was captured.
func (p PendingOrder) SlippageReference() float64 {
	if p.IsBuy {
		if p.BestAskAtSubmit > 0 {
			return p.BestAskAtSubmit
		}
		return p.Price
	}
	if p.BestBidAtSubmit > 0 {
		return p.BestBidAtSubmit
	}
	return p.Price
}

// Position is the single mutable position record of an engine instance.
// Quantity is never negative; a sell that closes the position within a
// small residue zeroes it out.
type Position struct {
	Qty      float64
	AvgPrice float64
}
