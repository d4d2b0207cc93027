package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/business/marketdata/infra/sim"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// failingProvider always errors, standing in for an unreachable venue.
type failingProvider struct {
	name string
}

func (p *failingProvider) Name() string { return p.name }

func (p *failingProvider) GetQuote(context.Context, domain.Pair) (*domain.Quote, error) {
	return nil, errors.New("connection refused")
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testLimiters(venues ...string) *ratelimit.Registry {
	reg := ratelimit.NewRegistry(time.Second)
	for _, v := range venues {
		reg.Add(v, 1000)
	}
	return reg
}

func newVenue(name string, pairs ...string) *sim.Exchange {
	ex := sim.NewExchange(name)
	for _, p := range pairs {
		ex.SetQuote(domain.MustParsePair(p),
			decimal.RequireFromString("100"),
			decimal.RequireFromString("101"),
			decimal.RequireFromString("5"),
			decimal.RequireFromString("5"))
	}
	return ex
}

func TestSnapshotCollectsAllVenues(t *testing.T) {
	kraken := newVenue("kraken", "BTC-USDT", "ETH-USDT")
	coinbase := newVenue("coinbase", "BTC-USDT")

	fetcher := NewFetcher(
		[]QuoteProvider{kraken, coinbase},
		map[string][]domain.Pair{
			"kraken":   {domain.MustParsePair("BTC-USDT"), domain.MustParsePair("ETH-USDT")},
			"coinbase": {domain.MustParsePair("BTC-USDT")},
		},
		testLimiters("kraken", "coinbase"),
		FetcherConfig{FetchTimeout: time.Second, MaxFailureFraction: 0},
		testLogger(),
	)

	snap, err := fetcher.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Quotes) != 3 {
		t.Fatalf("got %d quotes, want 3", len(snap.Quotes))
	}
	if snap.Degraded {
		t.Error("fully successful snapshot marked degraded")
	}
}

func TestSnapshotDegradesOnPartialFailure(t *testing.T) {
	kraken := newVenue("kraken", "BTC-USDT")
	down := &failingProvider{name: "coinbase"}

	fetcher := NewFetcher(
		[]QuoteProvider{kraken, down},
		map[string][]domain.Pair{
			"kraken":   {domain.MustParsePair("BTC-USDT")},
			"coinbase": {domain.MustParsePair("BTC-USDT")},
		},
		testLimiters("kraken", "coinbase"),
		FetcherConfig{FetchTimeout: time.Second, MaxFailureFraction: 0.5},
		testLogger(),
	)

	snap, err := fetcher.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.Degraded {
		t.Error("snapshot with a failed venue not marked degraded")
	}
	if len(snap.Quotes) != 1 || len(snap.Failed) != 1 {
		t.Errorf("got %d quotes / %d failed, want 1 / 1", len(snap.Quotes), len(snap.Failed))
	}
	if snap.Failed[0].Exchange != "coinbase" {
		t.Errorf("failed fetch attributed to %s", snap.Failed[0].Exchange)
	}
}

func TestSnapshotRejectsExcessiveFailures(t *testing.T) {
	kraken := newVenue("kraken", "BTC-USDT")
	down := &failingProvider{name: "coinbase"}

	fetcher := NewFetcher(
		[]QuoteProvider{kraken, down},
		map[string][]domain.Pair{
			"kraken":   {domain.MustParsePair("BTC-USDT")},
			"coinbase": {domain.MustParsePair("BTC-USDT")},
		},
		testLimiters("kraken", "coinbase"),
		FetcherConfig{FetchTimeout: time.Second, MaxFailureFraction: 0.25},
		testLogger(),
	)

	_, err := fetcher.Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected snapshot rejection")
	}
	if apperror.GetCode(err) != apperror.CodeSnapshotDegraded {
		t.Errorf("got code %v, want %v", apperror.GetCode(err), apperror.CodeSnapshotDegraded)
	}
}

func TestSnapshotDegradesOnLimiterDelay(t *testing.T) {
	kraken := newVenue("kraken", "BTC-USDT")

	reg := ratelimit.NewRegistry(10 * time.Millisecond)
	reg.Add("kraken", 10)
	// Drain the token bucket so the fetch has to queue past the bound.
	for reg.Get("kraken").Allow() {
	}

	fetcher := NewFetcher(
		[]QuoteProvider{kraken},
		map[string][]domain.Pair{"kraken": {domain.MustParsePair("BTC-USDT")}},
		reg,
		FetcherConfig{FetchTimeout: time.Second, MaxFailureFraction: 0},
		testLogger(),
	)

	snap, err := fetcher.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Quotes) != 1 {
		t.Fatalf("got %d quotes, want 1; a delayed fetch must still produce its quote", len(snap.Quotes))
	}
	if len(snap.Failed) != 0 {
		t.Errorf("delayed fetch recorded as failure: %v", snap.Failed)
	}
	if len(snap.Delayed) != 1 {
		t.Fatalf("got %d delayed fetches, want 1", len(snap.Delayed))
	}
	if snap.Delayed[0].Exchange != "kraken" || snap.Delayed[0].Delay <= 10*time.Millisecond {
		t.Errorf("delayed entry = %+v, want kraken with delay above the bound", snap.Delayed[0])
	}
	if !snap.Degraded {
		t.Error("snapshot with a limiter-delayed fetch not marked degraded")
	}
}

func TestSnapshotRejectsInvalidQuotes(t *testing.T) {
	venue := sim.NewExchange("kraken")
	// Crossed book: bid above ask.
	venue.SetQuote(domain.MustParsePair("BTC-USDT"),
		decimal.RequireFromString("102"),
		decimal.RequireFromString("101"),
		decimal.RequireFromString("1"),
		decimal.RequireFromString("1"))

	fetcher := NewFetcher(
		[]QuoteProvider{venue},
		map[string][]domain.Pair{"kraken": {domain.MustParsePair("BTC-USDT")}},
		testLimiters("kraken"),
		FetcherConfig{FetchTimeout: time.Second, MaxFailureFraction: 1},
		testLogger(),
	)

	snap, err := fetcher.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Quotes) != 0 {
		t.Error("crossed quote admitted into snapshot")
	}
	if len(snap.Failed) != 1 {
		t.Errorf("got %d failed fetches, want 1", len(snap.Failed))
	}
}
