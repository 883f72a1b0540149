package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trade-executor-go/market"
)

// StreamClient maintains the websocket subscription for quote, bar and
// account event streams. One connection carries all tickers.
type StreamClient struct {
	Endpoint string
	APIKey   string
	Dialer   *websocket.Dialer

	tickers []string
	log     *zap.Logger
}

func NewStreamClient(endpoint, apiKey string, log *zap.Logger) *StreamClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Dialer:   websocket.DefaultDialer,
		log:      log,
	}
}

// Subscribe adds a ticker before the stream starts.
func (c *StreamClient) Subscribe(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker required")
	}
	c.tickers = append(c.tickers, ticker)
	return nil
}

func (c *StreamClient) streamURL() (string, error) {
	if len(c.tickers) == 0 {
		return "", fmt.Errorf("no tickers subscribed")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse stream endpoint: %w", err)
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("tickers", strings.Join(c.tickers, ","))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects once and pumps messages until the connection drops or ctx is
// cancelled. Returns the read error that ended the session.
func (c *StreamClient) Run(ctx context.Context, events EventHandler, md *market.Service) error {
	target, err := c.streamURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.APIKey != "" {
		header.Set("X-API-KEY", c.APIKey)
	}
	conn, _, err := c.Dialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := Dispatch(raw, events, md); err != nil {
			c.log.Warn("dropping malformed stream message", zap.Error(err))
		}
	}
}

// RunLoop keeps the stream alive, reconnecting with doubling backoff capped
// at 30s. Returns only when ctx is cancelled.
func (c *StreamClient) RunLoop(ctx context.Context, events EventHandler, md *market.Service) {
	backoff := time.Second
	for {
		err := c.Run(ctx, events, md)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}
