package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"
)

// RESTBroker talks to the brokerage order API over signed HTTP requests.
// HTTPClient is injectable so tests can point it at httptest servers.
type RESTBroker struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
	Limiter    RateLimiter

	nextID atomic.Int64
}

func NewRESTBroker(baseURL, apiKey, secret string) *RESTBroker {
	b := &RESTBroker{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Secret:     secret,
		HTTPClient: NewDefaultHTTPClient(),
		Limiter:    NewTokenBucketLimiter(10, 20),
	}
	b.nextID.Store(time.Now().Unix() << 10)
	return b
}

// NewDefaultHTTPClient provides an http.Client with a sane timeout.
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// NextOrderID hands out process-unique order IDs. Seeded from the clock so
// IDs stay unique across restarts.
func (b *RESTBroker) NextOrderID() int64 {
	return b.nextID.Add(1)
}

func (b *RESTBroker) specParams(spec OrderSpec) map[string]string {
	params := map[string]string{
		"ticker":   spec.Ticker,
		"orderId":  strconv.FormatInt(spec.OrderID, 10),
		"type":     string(spec.Type),
		"action":   string(spec.Action),
		"quantity": strconv.FormatFloat(spec.Size, 'f', -1, 64),
		"price":    strconv.FormatFloat(spec.LimitPrice, 'f', 2, 64),
		"tif":      string(spec.TIF),
	}
	if spec.AuxPrice != 0 {
		params["auxPrice"] = strconv.FormatFloat(spec.AuxPrice, 'f', 2, 64)
	}
	if spec.TIF == TIFGoodTillDate {
		params["goodTill"] = strconv.FormatInt(spec.GoodTill.Unix(), 10)
	}
	return params
}

func (b *RESTBroker) do(ctx context.Context, method, path string, params map[string]string) error {
	_, err := b.doBody(ctx, method, path, params)
	return err
}

func (b *RESTBroker) doBody(ctx context.Context, method, path string, params map[string]string) ([]byte, error) {
	if b.HTTPClient == nil {
		return nil, fmt.Errorf("http client not set")
	}
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	query, sig := SignParams(params, b.Secret)
	endpoint := b.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewBuffer(nil))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", b.APIKey)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Message != "" {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return body, nil
}

func (b *RESTBroker) PlaceOrder(ctx context.Context, spec OrderSpec) error {
	return b.do(ctx, http.MethodPost, "/v1/orders", b.specParams(spec))
}

// ModifyOrder replaces the resting order in place, keyed by order id.
func (b *RESTBroker) ModifyOrder(ctx context.Context, spec OrderSpec) error {
	return b.do(ctx, http.MethodPut, "/v1/orders", b.specParams(spec))
}

func (b *RESTBroker) CancelOrder(ctx context.Context, ticker string, orderID int64) error {
	return b.do(ctx, http.MethodDelete, "/v1/orders", map[string]string{
		"ticker":  ticker,
		"orderId": strconv.FormatInt(orderID, 10),
	})
}

// OpenOrders lists the ids of orders still resting at the broker.
func (b *RESTBroker) OpenOrders(ctx context.Context, ticker string) ([]int64, error) {
	body, err := b.doBody(ctx, http.MethodGet, "/v1/orders", map[string]string{
		"ticker": ticker,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Orders []struct {
			OrderID int64 `json:"orderId"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse open orders: %w", err)
	}
	ids := make([]int64, 0, len(out.Orders))
	for _, o := range out.Orders {
		ids = append(ids, o.OrderID)
	}
	return ids, nil
}

// BrokerPosition returns the broker-side share count for the ticker.
func (b *RESTBroker) BrokerPosition(ctx context.Context, ticker string) (int, error) {
	body, err := b.doBody(ctx, http.MethodGet, "/v1/positions", map[string]string{
		"ticker": ticker,
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		ShareCount int `json:"shareCount"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("parse position: %w", err)
	}
	return out.ShareCount, nil
}

// Quote returns the current best bid and ask.
func (b *RESTBroker) Quote(ctx context.Context, ticker string) (bid, ask float64, err error) {
	body, err := b.doBody(ctx, http.MethodGet, "/v1/quotes", map[string]string{
		"ticker": ticker,
	})
	if err != nil {
		return 0, 0, err
	}
	var out struct {
		Bid float64 `json:"bid"`
		Ask float64 `json:"ask"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, 0, fmt.Errorf("parse quote: %w", err)
	}
	return out.Bid, out.Ask, nil
}
