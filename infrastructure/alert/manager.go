// Package alert fans urgent operational events out to notification channels
// with per-message throttling.
package alert

import (
	"fmt"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert is one notification event.
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel delivers alerts somewhere: a log, a webhook, a pager.
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler suppresses repeats of the same alert inside the interval.
type Throttler struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	interval time.Duration
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
	}
}

func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Notifier routes alerts to every registered channel.
type Notifier struct {
	mu       sync.RWMutex
	channels []Channel
	throttle *Throttler
}

func NewNotifier(channels []Channel, throttleInterval time.Duration) *Notifier {
	return &Notifier{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// Send delivers the alert to all channels. Repeats of the same level and
// message inside the throttle interval are dropped silently. If every
// channel fails the last error is returned.
func (n *Notifier) Send(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s:%s", alert.Level, alert.Message)
	if !n.throttle.Allow(key) {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	var lastErr error
	delivered := 0
	for _, ch := range n.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s: %w", ch.Name(), err)
		} else {
			delivered++
		}
	}
	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (n *Notifier) Info(message string, fields map[string]interface{}) error {
	return n.Send(Alert{Level: LevelInfo, Message: message, Fields: fields})
}

func (n *Notifier) Warning(message string, fields map[string]interface{}) error {
	return n.Send(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (n *Notifier) Critical(message string, fields map[string]interface{}) error {
	return n.Send(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

func (n *Notifier) AddChannel(ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, ch)
}

func (n *Notifier) Channels() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (n *Notifier) ResetThrottle() {
	n.throttle.Clear()
}
