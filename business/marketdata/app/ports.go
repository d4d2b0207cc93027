// Package app contains application services and port definitions for the marketdata context.
package app

import (
	"context"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
)

// QuoteProvider fetches top-of-book quotes from one venue.
type QuoteProvider interface {
	// Name returns the venue identifier (e.g. "kraken").
	Name() string

	// GetQuote retrieves the current top-of-book quote for a trading pair.
	GetQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error)
}

// BalanceProvider fetches account balances from one venue.
type BalanceProvider interface {
	Name() string

	// GetBalances retrieves all non-zero balances for the account.
	GetBalances(ctx context.Context) ([]domain.Balance, error)
}
