// Package di contains dependency injection tokens for the marketdata context.
package di

import (
	"github.com/fdemarco/cyclearb/business/marketdata/app"
	"github.com/fdemarco/cyclearb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Fetcher        = di.NewToken[*app.Fetcher]("marketdata.Fetcher")
	BalanceService = di.NewToken[*app.BalanceService]("marketdata.BalanceService")
)

// Private dependency tokens - internal to marketdata module
var (
	QuoteProviders   = di.NewToken[[]app.QuoteProvider]("marketdata:quoteProviders")
	BalanceProviders = di.NewToken[[]app.BalanceProvider]("marketdata:balanceProviders")
)

// Helper functions for type-safe access
func GetFetcher(c di.ServiceRegistry) *app.Fetcher {
	return di.GetToken(c, Fetcher)
}

func GetBalanceService(c di.ServiceRegistry) *app.BalanceService {
	return di.GetToken(c, BalanceService)
}

func GetQuoteProviders(c di.ServiceRegistry) []app.QuoteProvider {
	return di.GetToken(c, QuoteProviders)
}

func GetBalanceProviders(c di.ServiceRegistry) []app.BalanceProvider {
	return di.GetToken(c, BalanceProviders)
}
