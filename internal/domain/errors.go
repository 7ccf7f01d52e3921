package domain

import "errors"

var (
	// ErrNoCredentials is returned when a signed call is attempted
	// without an access/secret key pair. The call must be aborted
	// locally, never sent unsigned.
	ErrNoCredentials = errors.New("missing api credentials")

	// ErrEmptyMarket is returned for requests without a market id.
	ErrEmptyMarket = errors.New("empty market")

	// ErrNoMarketSelected is returned when an order is placed before a
	// selection cycle completed.
	ErrNoMarketSelected = errors.New("no market selected")

	// ErrMalformedPayload marks an unparseable exchange payload. Such
	// payloads are dropped without retry; the next periodic message
	// supersedes them.
	ErrMalformedPayload = errors.New("malformed payload")
)
