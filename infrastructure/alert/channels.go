package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ZapChannel writes alerts into the process log.
type ZapChannel struct {
	log  *zap.Logger
	name string
}

func NewZapChannel(name string, log *zap.Logger) *ZapChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapChannel{log: log, name: name}
}

func (c *ZapChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields, zap.String("level", string(alert.Level)))
	fields = append(fields, zap.Time("at", alert.Timestamp))
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelCritical:
		c.log.Error(alert.Message, fields...)
	case LevelWarning:
		c.log.Warn(alert.Message, fields...)
	default:
		c.log.Info(alert.Message, fields...)
	}
	return nil
}

func (c *ZapChannel) Name() string { return c.name }

// WebhookChannel POSTs alerts as JSON to an external endpoint.
type WebhookChannel struct {
	URL        string
	HTTPClient *http.Client
	name       string
}

func NewWebhookChannel(name, url string) *WebhookChannel {
	return &WebhookChannel{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		name:       name,
	}
}

func (c *WebhookChannel) Send(alert Alert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"level":   string(alert.Level),
		"message": alert.Message,
		"at":      alert.Timestamp.UTC().Format(time.RFC3339),
		"fields":  alert.Fields,
	})
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Post(c.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) Name() string { return c.name }

// MockChannel records alerts for tests.
type MockChannel struct {
	mu     sync.Mutex
	sent   []Alert
	name   string
	SendFn func(Alert) error
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(alert Alert) error {
	if c.SendFn != nil {
		if err := c.SendFn(alert); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, alert)
	return nil
}

func (c *MockChannel) Name() string { return c.name }

func (c *MockChannel) Sent() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.sent))
	copy(out, c.sent)
	return out
}
