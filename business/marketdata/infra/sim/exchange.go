// Package sim provides an in-memory venue for dry runs and tests.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

// Exchange is an in-memory quote and balance source. Quotes and balances
// are set by the caller and served verbatim.
type Exchange struct {
	name string

	mu       sync.RWMutex
	quotes   map[string]domain.Quote
	balances map[string]domain.Balance
	seq      uint64
}

// NewExchange creates an empty simulated venue.
func NewExchange(name string) *Exchange {
	return &Exchange{
		name:     name,
		quotes:   make(map[string]domain.Quote),
		balances: make(map[string]domain.Balance),
	}
}

// Name returns the venue identifier.
func (e *Exchange) Name() string {
	return e.name
}

// SetQuote installs or replaces the quote for a pair. The quote is stamped
// with the current time and a fresh sequence number.
func (e *Exchange) SetQuote(pair domain.Pair, bid, ask, bidSize, askSize decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.quotes[pair.String()] = domain.Quote{
		Exchange:  e.name,
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Sequence:  e.seq,
		Timestamp: time.Now(),
	}
}

// SetQuoteAt is SetQuote with an explicit observation time, for tests that
// exercise staleness handling.
func (e *Exchange) SetQuoteAt(pair domain.Pair, bid, ask, bidSize, askSize decimal.Decimal, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.quotes[pair.String()] = domain.Quote{
		Exchange:  e.name,
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Sequence:  e.seq,
		Timestamp: at,
	}
}

// SetBalance installs or replaces the free balance for a currency.
func (e *Exchange) SetBalance(currency string, free decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[currency] = domain.Balance{
		Exchange: e.name,
		Currency: currency,
		Free:     free,
		Locked:   decimal.Zero,
	}
}

// GetQuote serves the installed quote for pair.
func (e *Exchange) GetQuote(_ context.Context, pair domain.Pair) (*domain.Quote, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	quote, ok := e.quotes[pair.String()]
	if !ok {
		return nil, apperror.New(apperror.CodeUnknownPair,
			apperror.WithContext(pair.String()+"@"+e.name))
	}
	return &quote, nil
}

// GetBalances serves all installed balances.
func (e *Exchange) GetBalances(_ context.Context) ([]domain.Balance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	balances := make([]domain.Balance, 0, len(e.balances))
	for _, b := range e.balances {
		balances = append(balances, b)
	}
	return balances, nil
}
