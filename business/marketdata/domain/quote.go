// Package domain contains the core domain types for the marketdata context.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pair represents a trading pair, e.g. BTC-USDT.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses a "BASE-QUOTE" symbol.
func ParsePair(symbol string) (Pair, error) {
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair symbol %q, expected BASE-QUOTE", symbol)
	}
	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

// MustParsePair is ParsePair that panics on malformed input. For tests and
// static configuration only.
func MustParsePair(symbol string) Pair {
	p, err := ParsePair(symbol)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pair symbol (e.g. "BTC-USDT").
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// Invert returns the inverted pair.
func (p Pair) Invert() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// Quote is a top-of-book observation from one venue.
type Quote struct {
	Exchange  string
	Pair      Pair
	Bid       decimal.Decimal // best price a buyer pays, in quote currency per base unit
	Ask       decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	Sequence  uint64
	Timestamp time.Time
}

// Validate checks the quote is usable for pricing.
func (q Quote) Validate() error {
	if q.Exchange == "" {
		return fmt.Errorf("quote for %s missing exchange", q.Pair)
	}
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return fmt.Errorf("quote %s@%s has non-positive prices (bid=%s ask=%s)",
			q.Pair, q.Exchange, q.Bid, q.Ask)
	}
	if q.Bid.GreaterThan(q.Ask) {
		return fmt.Errorf("quote %s@%s is crossed (bid=%s > ask=%s)",
			q.Pair, q.Exchange, q.Bid, q.Ask)
	}
	return nil
}

// Age returns how long ago the quote was observed.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// IsStale reports whether the quote is older than window at time now.
func (q Quote) IsStale(window time.Duration, now time.Time) bool {
	return q.Age(now) > window
}

// Mid returns the mid-market price.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Snapshot is the result of one synchronized fetch round across all venues.
// Quotes holds every successfully fetched quote; Failed names the
// (exchange, pair) fetches that errored or timed out; Delayed names the
// fetches that were queued on a venue rate limiter past the configured
// bound before being admitted. A snapshot with failures or delays is still
// usable as long as the caller accepts degraded coverage.
type Snapshot struct {
	Quotes   []Quote
	Failed   []FailedFetch
	Delayed  []DelayedFetch
	TakenAt  time.Time
	Degraded bool
}

// FailedFetch records one fetch that did not produce a quote.
type FailedFetch struct {
	Exchange string
	Pair     Pair
	Err      error
}

// DelayedFetch records one fetch admitted only after an excessive limiter
// wait. Its quote is present in Quotes; the entry marks it as suspect.
type DelayedFetch struct {
	Exchange string
	Pair     Pair
	Delay    time.Duration
}

// FailureFraction returns failed/(failed+succeeded).
func (s *Snapshot) FailureFraction() float64 {
	total := len(s.Quotes) + len(s.Failed)
	if total == 0 {
		return 0
	}
	return float64(len(s.Failed)) / float64(total)
}

// Fresh returns the quotes not older than window at time now.
func (s *Snapshot) Fresh(window time.Duration, now time.Time) []Quote {
	fresh := make([]Quote, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		if !q.IsStale(window, now) {
			fresh = append(fresh, q)
		}
	}
	return fresh
}
