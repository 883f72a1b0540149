package signal

import "time"

// Direction is the predicted price direction for a ticker.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// Signal is one directional prediction. Timestamp identifies the signal;
// a provider returning the same timestamp twice is reporting the same
// signal, not a new one.
type Signal struct {
	Ticker    string
	Direction Direction
	Timestamp time.Time
	Source    string
}

// Provider serves the most recent signal for a ticker. Latest returns
// false when no signal has been produced yet.
type Provider interface {
	Latest(ticker string) (Signal, bool)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ticker string) (Signal, bool)

func (f ProviderFunc) Latest(ticker string) (Signal, bool) { return f(ticker) }

// Static is a fixed-signal Provider used in tests and simulation.
type Static struct {
	Signals map[string]Signal
}

func (s *Static) Latest(ticker string) (Signal, bool) {
	sig, ok := s.Signals[ticker]
	return sig, ok
}
