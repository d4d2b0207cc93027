package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/circuitbreaker"
	"github.com/fdemarco/cyclearb/internal/httpclient"
)

// ProviderConfig holds the venue connection parameters.
type ProviderConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Provider fetches quotes and balances over the venue's REST API. All
// requests go through a circuit breaker so a venue outage stops hitting
// the API instead of burning the rate-limit budget.
type Provider struct {
	name    string
	client  httpclient.Client
	breaker *circuitbreaker.Breaker[*httpclient.Response]
	logger  *slog.Logger
}

// NewProvider creates a REST provider for one venue.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (*Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("rest: provider name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required for %s", cfg.Name)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}

	client, err := httpclient.New(
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
		httpclient.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("rest: http client for %s: %w", cfg.Name, err)
	}

	log := logger.With(
		slog.String("component", "marketdata.rest"),
		slog.String("exchange", cfg.Name),
	)

	breakerCfg := circuitbreaker.DefaultConfig(cfg.Name + "-rest")
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("circuit breaker state change",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}

	return &Provider{
		name:    cfg.Name,
		client:  client,
		breaker: circuitbreaker.New[*httpclient.Response](breakerCfg),
		logger:  log,
	}, nil
}

// Name returns the venue identifier.
func (p *Provider) Name() string {
	return p.name
}

// GetQuote fetches the top-of-book ticker for pair.
func (p *Provider) GetQuote(ctx context.Context, pair domain.Pair) (*domain.Quote, error) {
	resp, err := p.breaker.Execute(func() (*httpclient.Response, error) {
		return p.client.NewRequestWithOptions(
			httpclient.WithResponseErrorHandler(venueErrorHandler),
			httpclient.WithLabels(
				httpclient.NewLabel("exchange", p.name),
				httpclient.NewLabel("endpoint", "ticker"),
			),
		).
			SetQueryParam("symbol", pair.String()).
			Get(ctx, "/api/v1/ticker")
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "ticker "+pair.String()+"@"+p.name)
	}

	var ticker tickerResponse
	if err := json.Unmarshal(resp.Body(), &ticker); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "decode ticker from "+p.name)
	}

	return p.toQuote(pair, ticker)
}

func (p *Provider) toQuote(pair domain.Pair, t tickerResponse) (*domain.Quote, error) {
	bid, err := decimal.NewFromString(t.BidPrice)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad bid price from "+p.name)
	}
	ask, err := decimal.NewFromString(t.AskPrice)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad ask price from "+p.name)
	}
	bidSize, err := decimal.NewFromString(t.BidQty)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad bid size from "+p.name)
	}
	askSize, err := decimal.NewFromString(t.AskQty)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad ask size from "+p.name)
	}

	return &domain.Quote{
		Exchange:  p.name,
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Sequence:  t.Sequence,
		Timestamp: time.UnixMilli(t.Timestamp),
	}, nil
}

// GetBalances fetches all account balances.
func (p *Provider) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	resp, err := p.breaker.Execute(func() (*httpclient.Response, error) {
		return p.client.NewRequestWithOptions(
			httpclient.WithResponseErrorHandler(venueErrorHandler),
			httpclient.WithLabels(
				httpclient.NewLabel("exchange", p.name),
				httpclient.NewLabel("endpoint", "balances"),
			),
		).
			Get(ctx, "/api/v1/balances")
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "balances @"+p.name)
	}

	var payload balancesResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "decode balances from "+p.name)
	}

	balances := make([]domain.Balance, 0, len(payload.Balances))
	for _, entry := range payload.Balances {
		free, err := decimal.NewFromString(entry.Free)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad balance from "+p.name)
		}
		locked, err := decimal.NewFromString(entry.Locked)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeExchangeAPIError, "bad balance from "+p.name)
		}
		balances = append(balances, domain.Balance{
			Exchange: p.name,
			Currency: entry.Currency,
			Free:     free,
			Locked:   locked,
		})
	}
	return balances, nil
}

// venueErrorHandler decodes the venue error envelope on non-2xx responses.
func venueErrorHandler(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	var venueErr errorResponse
	if err := json.Unmarshal(body, &venueErr); err == nil && venueErr.Message != "" {
		return fmt.Errorf("venue error %d: %s (http %d)", venueErr.Code, venueErr.Message, statusCode)
	}
	return fmt.Errorf("venue returned http %d", statusCode)
}
