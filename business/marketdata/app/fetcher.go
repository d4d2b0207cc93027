package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apm"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// FetcherConfig tunes one snapshot round.
type FetcherConfig struct {
	// FetchTimeout bounds each individual quote fetch.
	FetchTimeout time.Duration
	// MaxFailureFraction is the largest tolerated share of failed fetches
	// before the whole snapshot is rejected.
	MaxFailureFraction float64
}

// Fetcher takes synchronized top-of-book snapshots across all venues.
// All fetches of a round run concurrently and the round completes only
// when every fetch has either produced a quote or failed, so the detector
// always sees one coherent view.
type Fetcher struct {
	providers map[string]QuoteProvider
	pairs     map[string][]domain.Pair // venue -> pairs to watch
	limiters  *ratelimit.Registry
	cfg       FetcherConfig
	logger    *slog.Logger
	tracer    apm.Tracer

	limiterDelays metric.Int64Counter
}

// NewFetcher creates a Fetcher. pairs maps each provider name to the pairs
// watched on that venue.
func NewFetcher(
	providers []QuoteProvider,
	pairs map[string][]domain.Pair,
	limiters *ratelimit.Registry,
	cfg FetcherConfig,
	logger *slog.Logger,
) *Fetcher {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 3 * time.Second
	}
	byName := make(map[string]QuoteProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	meter := otel.Meter("marketdata.fetcher")
	delays, _ := meter.Int64Counter("marketdata_limiter_delays_total",
		metric.WithDescription("Quote fetches admitted after an excessive rate limiter wait"))

	return &Fetcher{
		providers:     byName,
		pairs:         pairs,
		limiters:      limiters,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "marketdata.fetcher")),
		tracer:        apm.NewTracer("marketdata.fetcher"),
		limiterDelays: delays,
	}
}

// Snapshot fetches every watched (venue, pair) quote concurrently and
// returns the combined view. Individual failures degrade the snapshot;
// only a failure fraction above MaxFailureFraction fails the round.
func (f *Fetcher) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	ctx, span := f.tracer.StartSpanFromContext(ctx, "fetcher.snapshot")
	defer span.End()

	snap := &domain.Snapshot{TakenAt: time.Now()}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for venue, pairs := range f.pairs {
		provider, ok := f.providers[venue]
		if !ok {
			return nil, apperror.New(apperror.CodeUnknownPair,
				apperror.WithContext("no provider registered for venue "+venue))
		}
		for _, pair := range pairs {
			venue, pair, provider := venue, pair, provider
			g.Go(func() error {
				quote, delay, err := f.fetchOne(gctx, provider, venue, pair)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					snap.Failed = append(snap.Failed, domain.FailedFetch{
						Exchange: venue,
						Pair:     pair,
						Err:      err,
					})
					// Individual failures never abort the barrier.
					return nil
				}
				if delay > 0 {
					snap.Delayed = append(snap.Delayed, domain.DelayedFetch{
						Exchange: venue,
						Pair:     pair,
						Delay:    delay,
					})
					f.limiterDelays.Add(gctx, 1,
						metric.WithAttributes(attribute.String("exchange", venue)))
				}
				snap.Quotes = append(snap.Quotes, *quote)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("quotes", len(snap.Quotes)),
		attribute.Int("failed", len(snap.Failed)),
		attribute.Int("delayed", len(snap.Delayed)),
	)

	if snap.FailureFraction() > f.cfg.MaxFailureFraction {
		err := apperror.New(apperror.CodeSnapshotDegraded,
			apperror.WithContext("too many quote fetches failed"))
		span.NoticeError(err)
		return nil, err
	}

	snap.Degraded = len(snap.Failed) > 0 || len(snap.Delayed) > 0
	if snap.Degraded {
		f.logger.Warn("snapshot degraded",
			slog.Int("quotes", len(snap.Quotes)),
			slog.Int("failed", len(snap.Failed)),
			slog.Int("delayed", len(snap.Delayed)))
	}

	return snap, nil
}

// fetchOne waits on the venue rate limiter, then fetches with a per-fetch
// timeout. A limiter wait that exceeds the configured bound still proceeds;
// the excess delay is returned so the round can mark the snapshot degraded.
func (f *Fetcher) fetchOne(ctx context.Context, provider QuoteProvider, venue string, pair domain.Pair) (*domain.Quote, time.Duration, error) {
	var delay time.Duration
	if err := f.limiters.WaitBounded(ctx, venue); err != nil {
		var de *ratelimit.DelayedError
		if !errors.As(err, &de) {
			return nil, 0, apperror.Wrap(err, apperror.CodeQuoteFetchFailed, "rate limiter wait for "+venue)
		}
		delay = de.Delay
		f.logger.Warn("rate limiter delayed fetch",
			slog.String("exchange", venue),
			slog.Duration("delay", de.Delay))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	quote, err := provider.GetQuote(fetchCtx, pair)
	if err != nil {
		return nil, delay, apperror.Wrap(err, apperror.CodeQuoteFetchFailed,
			pair.String()+"@"+venue)
	}
	if err := quote.Validate(); err != nil {
		return nil, delay, apperror.Wrap(err, apperror.CodeQuoteFetchFailed,
			pair.String()+"@"+venue)
	}
	return quote, delay, nil
}
