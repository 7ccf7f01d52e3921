package upbit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trader_go/internal/domain"
	"trader_go/internal/infra"
)

const (
	// DefaultBaseURL is the production REST endpoint.
	DefaultBaseURL = "https://api.upbit.com"

	// tickerBatchSize is the symbols-per-call cap on /v1/ticker.
	// Batches are issued strictly sequentially to respect rate limits.
	tickerBatchSize = 15
)

// Client is the Upbit REST gateway (boundary layer). It owns request
// signing, order normalization and wire decoding; everything upstream
// works with domain types only.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

var _ domain.Gateway = (*Client)(nil)

// NewClient creates a new Upbit API client. Empty credentials are
// valid: public endpoints keep working, signed calls fail closed.
func NewClient(baseURL, accessKey, secretKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(accessKey, secretKey),
		logger: slog.Default().With("module", "upbit_client"),
	}
}

// Signer exposes the token builder for the private stream subscription.
func (c *Client) Signer() *Signer {
	return c.signer
}

// GetMarkets returns all KRW-quoted markets in exchange order.
func (c *Client) GetMarkets(ctx context.Context) ([]string, error) {
	query := url.Values{"isDetails": {"false"}}
	body, _, err := c.get(ctx, "/v1/market/all", query)
	if err != nil {
		return nil, err
	}

	var payload []marketPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: market list: %v", domain.ErrMalformedPayload, err)
	}

	markets := make([]string, 0, len(payload))
	for _, m := range payload {
		if strings.HasPrefix(m.Market, "KRW-") {
			markets = append(markets, m.Market)
		}
	}
	return markets, nil
}

// GetTickers fetches 24h notional snapshots, batching sequentially.
// Entries without a market id or with a non-positive notional are
// dropped as invalid.
func (c *Client) GetTickers(ctx context.Context, markets []string) ([]domain.Ticker, error) {
	out := make([]domain.Ticker, 0, len(markets))
	for start := 0; start < len(markets); start += tickerBatchSize {
		end := start + tickerBatchSize
		if end > len(markets) {
			end = len(markets)
		}
		chunk := markets[start:end]

		query := url.Values{"markets": {strings.Join(chunk, ",")}}
		body, _, err := c.get(ctx, "/v1/ticker", query)
		if err != nil {
			return nil, err
		}

		var payload []tickerPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: ticker batch: %v", domain.ErrMalformedPayload, err)
		}
		for _, t := range payload {
			if t.Market == "" || float64(t.AccTradePrice24h) <= 0 {
				continue
			}
			out = append(out, domain.Ticker{
				Market:          t.Market,
				AccTradePrice24: float64(t.AccTradePrice24h),
			})
		}
	}
	return out, nil
}

// GetCandles fetches minute candles. The exchange returns newest first;
// the result is reversed to oldest first for all downstream consumers.
func (c *Client) GetCandles(ctx context.Context, market string, unit, count int) ([]domain.Candle, error) {
	if market == "" {
		return nil, domain.ErrEmptyMarket
	}
	query := url.Values{
		"market": {market},
		"count":  {strconv.Itoa(count)},
	}
	body, _, err := c.get(ctx, fmt.Sprintf("/v1/candles/minutes/%d", unit), query)
	if err != nil {
		return nil, err
	}

	var payload []candlePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: candles: %v", domain.ErrMalformedPayload, err)
	}

	candles := make([]domain.Candle, 0, len(payload))
	for i := len(payload) - 1; i >= 0; i-- {
		p := payload[i]
		candles = append(candles, domain.Candle{
			TsMs:   int64(p.Timestamp),
			Open:   float64(p.OpeningPrice),
			High:   float64(p.HighPrice),
			Low:    float64(p.LowPrice),
			Close:  float64(p.TradePrice),
			Volume: float64(p.CandleAccTradeVolume),
		})
	}
	return candles, nil
}

// PostOrder signs and submits an order. Side and type are converted to
// the exchange vocabulary here; limit price and volume are normalized
// (idempotent, so pre-normalized requests pass through unchanged).
func (c *Client) PostOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	var result domain.OrderResult
	if req.Market == "" {
		return result, domain.ErrEmptyMarket
	}

	isBuy := req.IsBuy()
	side := "ask"
	if isBuy {
		side = "bid"
	}
	ordType := strings.ToLower(req.OrdType)
	if ordType == "" {
		ordType = domain.OrdTypeLimit
	}

	price := req.Price
	volume := req.Volume
	if ordType == domain.OrdTypeLimit {
		price = NormalizePrice(price)
		volume = NormalizeVolume(price, volume, isBuy, MinNotionalKRW)
	}

	params := url.Values{
		"market":   {req.Market},
		"side":     {side},
		"ord_type": {ordType},
	}
	switch ordType {
	case domain.OrdTypeLimit:
		params.Set("price", FormatDecimal(price))
		params.Set("volume", FormatDecimal(volume))
	case domain.OrdTypePrice: // market buy, price carries total KRW
		params.Set("price", FormatDecimal(req.Price))
	case domain.OrdTypeMarket: // market sell
		params.Set("volume", FormatDecimal(req.Volume))
	}

	token := c.signer.AuthToken(params)
	if token == "" {
		return result, domain.ErrNoCredentials
	}

	bodyMap := make(map[string]string, len(params))
	for k := range params {
		bodyMap[k] = params.Get(k)
	}
	bodyJSON, err := json.Marshal(bodyMap)
	if err != nil {
		return result, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(bodyJSON))
	if err != nil {
		return result, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", token)
	httpReq.Header.Set("User-Agent", infra.DefaultUserAgent)

	return c.doOrderRequest(httpReq)
}

// CancelOrder cancels by exchange uuid.
func (c *Client) CancelOrder(ctx context.Context, uuid string) (domain.OrderResult, error) {
	var result domain.OrderResult
	if uuid == "" {
		return result, fmt.Errorf("empty order uuid")
	}

	params := url.Values{"uuid": {uuid}}
	token := c.signer.AuthToken(params)
	if token == "" {
		return result, domain.ErrNoCredentials
	}

	reqURL := c.baseURL + "/v1/order?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return result, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", token)
	httpReq.Header.Set("User-Agent", infra.DefaultUserAgent)

	return c.doOrderRequest(httpReq)
}

// doOrderRequest executes a signed order call and classifies the reply.
// HTTP >= 400 is a non-accepted result; 429 is only flagged in the
// message, the code path is the same as any other rejection.
func (c *Client) doOrderRequest(req *http.Request) (domain.OrderResult, error) {
	var result domain.OrderResult

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}

	result.HTTPStatus = resp.StatusCode
	result.RawResponse = string(body)
	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusTooManyRequests {
			result.ErrorMessage = "HTTP 429 rate limited"
		} else {
			result.ErrorMessage = fmt.Sprintf("HTTP error %d", resp.StatusCode)
			var ep errorPayload
			if json.Unmarshal(body, &ep) == nil && ep.Error.Message != "" {
				result.ErrorMessage += ": " + ep.Error.Message
			}
		}
		return result, nil
	}

	var op orderPayload
	if err := json.Unmarshal(body, &op); err != nil {
		c.logger.Warn("unparseable order response", "error", err)
	}
	result.UUID = op.UUID
	result.Accepted = result.UUID != ""
	return result, nil
}

// get executes an unsigned GET and returns the body for 2xx replies.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited", "path", path, "status", resp.StatusCode)
			return nil, resp.StatusCode, fmt.Errorf("HTTP 429 rate limited: %s", path)
		}
		return nil, resp.StatusCode, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, path)
	}
	return body, resp.StatusCode, nil
}
