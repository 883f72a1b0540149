package market

import (
	"sync"
	"time"
)

// Service holds the market state for every subscribed ticker: the live
// quote book and the rolling bar history. The gateway stream writes into
// it, the executors read from it.
type Service struct {
	mu      sync.RWMutex
	books   map[string]*Book
	history map[string]*BarHistory

	barWindow time.Duration
}

func NewService(barWindow time.Duration) *Service {
	return &Service{
		books:     make(map[string]*Book),
		history:   make(map[string]*BarHistory),
		barWindow: barWindow,
	}
}

// Book returns the quote book for ticker, creating it on first use.
func (s *Service) Book(ticker string) *Book {
	s.mu.RLock()
	b, ok := s.books[ticker]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[ticker]; ok {
		return b
	}
	b = NewBook()
	s.books[ticker] = b
	return b
}

// History returns the bar history for ticker, creating it on first use.
func (s *Service) History(ticker string) *BarHistory {
	s.mu.RLock()
	h, ok := s.history[ticker]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.history[ticker]; ok {
		return h
	}
	h = NewBarHistory(s.barWindow)
	s.history[ticker] = h
	return h
}

// OnQuotePrice routes a price tick into the ticker's book.
func (s *Service) OnQuotePrice(ticker string, tick Tick, price float64) {
	s.Book(ticker).UpdatePrice(tick, price)
}

// OnQuoteSize routes a size tick into the ticker's book.
func (s *Service) OnQuoteSize(ticker string, tick Tick, size float64) {
	s.Book(ticker).UpdateSize(tick, size)
}

// OnBar records a completed bar and prunes the window.
func (s *Service) OnBar(ticker string, bar Bar) {
	h := s.History(ticker)
	h.Add(bar)
	h.Prune()
}
