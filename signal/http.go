package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HTTPPoller fetches directional predictions from the signal service and
// caches the latest one per ticker. It implements Provider; engines read
// the cache, the poll loop refreshes it.
type HTTPPoller struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Interval   time.Duration

	mu     sync.RWMutex
	latest map[string]Signal
	log    *zap.Logger
}

func NewHTTPPoller(baseURL, apiKey string, interval time.Duration, log *zap.Logger) *HTTPPoller {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &HTTPPoller{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Interval:   interval,
		latest:     make(map[string]Signal),
		log:        log,
	}
}

// Latest implements Provider.
func (p *HTTPPoller) Latest(ticker string) (Signal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sig, ok := p.latest[ticker]
	return sig, ok
}

type signalPayload struct {
	Direction string `json:"direction"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// Poll fetches the current signal for one ticker. A 204 means the service
// has no prediction yet; the cache is left untouched.
func (p *HTTPPoller) Poll(ctx context.Context, ticker string) error {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("parse signal endpoint: %w", err)
	}
	u.Path = "/v1/signals"
	q := u.Query()
	q.Set("ticker", ticker)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if p.APIKey != "" {
		req.Header.Set("X-API-KEY", p.APIKey)
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch signal: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal service returned %d", resp.StatusCode)
	}

	var payload signalPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}
	dir := Direction(payload.Direction)
	if dir != Bullish && dir != Bearish {
		return fmt.Errorf("unknown direction %q", payload.Direction)
	}

	p.mu.Lock()
	p.latest[ticker] = Signal{
		Ticker:    ticker,
		Direction: dir,
		Timestamp: time.Unix(payload.Timestamp, 0),
		Source:    payload.Source,
	}
	p.mu.Unlock()
	return nil
}

// RunLoop polls every ticker on the configured interval until ctx is done.
// Poll failures are logged and retried on the next tick.
func (p *HTTPPoller) RunLoop(ctx context.Context, tickers []string) {
	t := time.NewTicker(p.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, ticker := range tickers {
				if err := p.Poll(ctx, ticker); err != nil {
					p.log.Warn("signal poll failed",
						zap.String("ticker", ticker), zap.Error(err))
				}
			}
		}
	}
}
