package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the available amount of one currency on one venue.
type Balance struct {
	Exchange string
	Currency string
	Free     decimal.Decimal
	Locked   decimal.Decimal
}

// Total returns free plus locked funds.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// BalanceSheet is a point-in-time view of balances across all venues.
type BalanceSheet struct {
	Balances map[string]map[string]Balance // exchange -> currency -> balance
	TakenAt  time.Time
}

// NewBalanceSheet builds an empty sheet.
func NewBalanceSheet() *BalanceSheet {
	return &BalanceSheet{
		Balances: make(map[string]map[string]Balance),
		TakenAt:  time.Now(),
	}
}

// Set records a balance, replacing any previous entry.
func (s *BalanceSheet) Set(b Balance) {
	byCurrency, ok := s.Balances[b.Exchange]
	if !ok {
		byCurrency = make(map[string]Balance)
		s.Balances[b.Exchange] = byCurrency
	}
	byCurrency[b.Currency] = b
}

// Free returns the free balance for (exchange, currency), zero if unknown.
func (s *BalanceSheet) Free(exchange, currency string) decimal.Decimal {
	if byCurrency, ok := s.Balances[exchange]; ok {
		if b, ok := byCurrency[currency]; ok {
			return b.Free
		}
	}
	return decimal.Zero
}
