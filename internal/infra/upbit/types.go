package upbit

import (
	"bytes"
	"strconv"
)

// Upbit serializes some numeric fields as JSON numbers and others as
// strings depending on the channel. flexFloat/flexInt accept both.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*f = 0
		return nil // tolerate junk fields, the message may still be usable
	}
	*f = flexFloat(v)
	return nil
}

type flexInt int64

func (i *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		*i = 0
		return nil
	}
	*i = flexInt(v)
	return nil
}

// REST payloads.

type marketPayload struct {
	Market string `json:"market"`
}

type tickerPayload struct {
	Market           string    `json:"market"`
	AccTradePrice24h flexFloat `json:"acc_trade_price_24h"`
}

type candlePayload struct {
	Timestamp            flexInt   `json:"timestamp"`
	OpeningPrice         flexFloat `json:"opening_price"`
	HighPrice            flexFloat `json:"high_price"`
	LowPrice             flexFloat `json:"low_price"`
	TradePrice           flexFloat `json:"trade_price"`
	CandleAccTradeVolume flexFloat `json:"candle_acc_trade_volume"`
}

type orderPayload struct {
	UUID string `json:"uuid"`
}

type errorPayload struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// WebSocket payloads.

type wsEnvelope struct {
	Type string `json:"type"`
}

type wsTrade struct {
	Code           string    `json:"code"`
	TradePrice     flexFloat `json:"trade_price"`
	TradeVolume    flexFloat `json:"trade_volume"`
	TradeTimestamp flexInt   `json:"trade_timestamp"`
}

type wsOrderbook struct {
	Code           string `json:"code"`
	OrderbookUnits []struct {
		BidPrice flexFloat `json:"bid_price"`
		AskPrice flexFloat `json:"ask_price"`
	} `json:"orderbook_units"`
}

type wsMyOrder struct {
	Code            string    `json:"code"`
	UUID            string    `json:"uuid"`
	Side            string    `json:"side"` // bid / ask
	TradePrice      flexFloat `json:"trade_price"`
	TradeVolume     flexFloat `json:"trade_volume"`
	TradeTimestamp  flexInt   `json:"trade_timestamp"`
	RemainingVolume flexFloat `json:"remaining_volume"`
	State           string    `json:"state"`
	Trades          []struct {
		TradePrice     flexFloat `json:"trade_price"`
		TradeVolume    flexFloat `json:"trade_volume"`
		TradeTimestamp flexInt   `json:"trade_timestamp"`
	} `json:"trades"`
}
