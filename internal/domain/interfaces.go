package domain

import "context"

// Gateway is the authenticated REST surface of the exchange. It is an
// explicitly injected dependency of every component that talks to the
// exchange; there is no process-global client.
type Gateway interface {
	// GetMarkets returns the quote-currency-filtered market universe,
	// preserving exchange order.
	GetMarkets(ctx context.Context) ([]string, error)
	// GetTickers returns 24h notional snapshots, batching internally
	// when the exchange caps symbols per call.
	GetTickers(ctx context.Context, markets []string) ([]Ticker, error)
	// GetCandles returns count minute candles of the given unit,
	// normalized to oldest first.
	GetCandles(ctx context.Context, market string, unit, count int) ([]Candle, error)
	// PostOrder submits a normalized order. A non-nil error means the
	// request never produced an exchange response (transport failure);
	// exchange-level rejection is reported inside the result.
	PostOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// CancelOrder cancels by exchange uuid, same error contract as
	// PostOrder.
	CancelOrder(ctx context.Context, uuid string) (OrderResult, error)
}

// StreamWorker is a reconnecting market-data stream connection.
type StreamWorker interface {
	Connect(ctx context.Context) error
	Subscribe(market string)
	Disconnect()
	IsConnected() bool
}
