// Package marketdata implements the market data bounded context: venue
// adapters, the snapshot fetcher and the balance service.
package marketdata

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fdemarco/cyclearb/business/marketdata/app"
	mdDI "github.com/fdemarco/cyclearb/business/marketdata/di"
	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/business/marketdata/infra/rest"
	"github.com/fdemarco/cyclearb/business/marketdata/infra/sim"
	"github.com/fdemarco/cyclearb/business/marketdata/infra/stream"
	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/di"
	"github.com/fdemarco/cyclearb/internal/health"
	"github.com/fdemarco/cyclearb/internal/monolith"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// Module implements the marketdata bounded context.
type Module struct {
	feeds []*stream.Feed
}

// RegisterServices registers all marketdata services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, mdDI.QuoteProviders, func(sr di.ServiceRegistry) []app.QuoteProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		var providers []app.QuoteProvider
		for name, ex := range cfg.Exchanges {
			provider, err := m.buildQuoteProvider(name, ex, log)
			if err != nil {
				panic("failed to create quote provider for " + name + ": " + err.Error())
			}
			providers = append(providers, provider)
		}
		return providers
	})

	di.RegisterToken(c, mdDI.BalanceProviders, func(sr di.ServiceRegistry) []app.BalanceProvider {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		var providers []app.BalanceProvider
		for name, ex := range cfg.Exchanges {
			if ex.Simulated {
				providers = append(providers, simExchange(name))
				continue
			}
			provider, err := rest.NewProvider(rest.ProviderConfig{
				Name:           name,
				BaseURL:        ex.BaseURL,
				APIKey:         ex.APIKey,
				RequestTimeout: ex.RequestTimeout,
			}, log)
			if err != nil {
				panic("failed to create balance provider for " + name + ": " + err.Error())
			}
			providers = append(providers, provider)
		}
		return providers
	})

	di.RegisterToken(c, mdDI.Fetcher, func(sr di.ServiceRegistry) *app.Fetcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)
		limiters := sr.Get("limiters").(*ratelimit.Registry)

		pairs := make(map[string][]domain.Pair, len(cfg.Exchanges))
		for name, ex := range cfg.Exchanges {
			for _, symbol := range ex.Pairs {
				pair, err := domain.ParsePair(symbol)
				if err != nil {
					panic("bad pair for " + name + ": " + err.Error())
				}
				pairs[name] = append(pairs[name], pair)
			}
		}

		return app.NewFetcher(
			mdDI.GetQuoteProviders(sr),
			pairs,
			limiters,
			app.FetcherConfig{
				FetchTimeout:       cfg.Detector.SnapshotTimeout,
				MaxFailureFraction: cfg.Detector.MaxStaleFraction,
			},
			log,
		)
	})

	di.RegisterToken(c, mdDI.BalanceService, func(sr di.ServiceRegistry) *app.BalanceService {
		log := sr.Get("logger").(*slog.Logger)
		return app.NewBalanceService(mdDI.GetBalanceProviders(sr), log)
	})

	return nil
}

func (m *Module) buildQuoteProvider(name string, ex config.ExchangeConfig, log *slog.Logger) (app.QuoteProvider, error) {
	if ex.Simulated {
		return simExchange(name), nil
	}
	if ex.WebSocketURL != "" {
		pairs := make([]domain.Pair, 0, len(ex.Pairs))
		for _, symbol := range ex.Pairs {
			pair, err := domain.ParsePair(symbol)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair)
		}
		feed, err := stream.NewFeed(stream.FeedConfig{
			Name:         name,
			WebSocketURL: ex.WebSocketURL,
			Pairs:        pairs,
		}, log)
		if err != nil {
			return nil, err
		}
		m.feeds = append(m.feeds, feed)
		return feed, nil
	}
	return rest.NewProvider(rest.ProviderConfig{
		Name:           name,
		BaseURL:        ex.BaseURL,
		APIKey:         ex.APIKey,
		RequestTimeout: ex.RequestTimeout,
	}, log)
}

// Startup connects all streaming feeds. A feed that fails to connect keeps
// retrying in the background; the REST path still serves other venues.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	for _, feed := range m.feeds {
		if err := feed.Start(ctx); err != nil {
			log.Warn("quote feed connection failed, snapshots will degrade until it recovers",
				slog.String("exchange", feed.Name()),
				slog.Any("error", err))
		}
	}

	log.Info("marketdata module started", slog.Int("feeds", len(m.feeds)))
	return nil
}

// HealthChecks returns one freshness probe per streaming feed, keyed by
// "feed:<exchange>". A feed that has not delivered a tick within maxAge
// reports the process degraded.
func (m *Module) HealthChecks(maxAge time.Duration) map[string]health.CheckFunc {
	checks := make(map[string]health.CheckFunc, len(m.feeds))
	for _, feed := range m.feeds {
		checks["feed:"+feed.Name()] = health.FreshnessCheck(maxAge, feed.LastUpdate)
	}
	return checks
}

// Shutdown closes all streaming feed connections.
func (m *Module) Shutdown() {
	for _, feed := range m.feeds {
		_ = feed.Stop()
	}
}

// simExchanges are shared per venue name so the quote and balance sides of
// a simulated venue observe the same state.
var (
	simExchanges   = map[string]*sim.Exchange{}
	simExchangesMu sync.Mutex
)

func simExchange(name string) *sim.Exchange {
	simExchangesMu.Lock()
	defer simExchangesMu.Unlock()
	if ex, ok := simExchanges[name]; ok {
		return ex
	}
	ex := sim.NewExchange(name)
	simExchanges[name] = ex
	return ex
}
