package stream

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

func testFeed(t *testing.T) *Feed {
	t.Helper()
	feed, err := NewFeed(FeedConfig{
		Name:         "kraken",
		WebSocketURL: "ws://localhost:1",
		Pairs:        []domain.Pair{domain.MustParsePair("BTC-USDT")},
		StaleTimeout: 5 * time.Second,
	}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	return feed
}

func ticker(symbol string, bid, ask string, seq uint64, at time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"symbol":%q,"bidPrice":%q,"bidQty":"5","askPrice":%q,"askQty":"5","sequence":%d,"timestamp":%d}`,
		symbol, bid, ask, seq, at.UnixMilli()))
}

func TestHandleMessageCachesQuote(t *testing.T) {
	feed := testFeed(t)
	now := time.Now()

	feed.handleMessage(context.Background(), ticker("BTC-USDT", "50000", "50010", 1, now))

	quote, err := feed.GetQuote(context.Background(), domain.MustParsePair("BTC-USDT"))
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.Bid.String() != "50000" || quote.Ask.String() != "50010" {
		t.Fatalf("quote = %s/%s, want 50000/50010", quote.Bid, quote.Ask)
	}
	if feed.LastUpdate().IsZero() {
		t.Fatal("LastUpdate not advanced")
	}
}

func TestHandleMessageDropsOldSequences(t *testing.T) {
	feed := testFeed(t)
	now := time.Now()

	feed.handleMessage(context.Background(), ticker("BTC-USDT", "50000", "50010", 5, now))
	feed.handleMessage(context.Background(), ticker("BTC-USDT", "49000", "49010", 4, now))

	quote, err := feed.GetQuote(context.Background(), domain.MustParsePair("BTC-USDT"))
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.Bid.String() != "50000" {
		t.Fatalf("bid = %s, old sequence overwrote newer quote", quote.Bid)
	}
}

func TestHandleMessageIgnoresNoise(t *testing.T) {
	feed := testFeed(t)

	feed.handleMessage(context.Background(), []byte(`{"op":"subscribe","result":"ok"}`))
	feed.handleMessage(context.Background(), []byte(`not json`))
	feed.handleMessage(context.Background(),
		ticker("BTC-USDT", "50010", "50000", 1, time.Now())) // crossed book

	if !feed.LastUpdate().IsZero() {
		t.Fatal("noise advanced LastUpdate")
	}
}

func TestGetQuoteUnknownPair(t *testing.T) {
	feed := testFeed(t)

	_, err := feed.GetQuote(context.Background(), domain.MustParsePair("ETH-USDT"))
	if code := apperror.GetCode(err); code != apperror.CodeUnknownPair {
		t.Fatalf("code = %s, want %s", code, apperror.CodeUnknownPair)
	}
}

func TestGetQuoteStaleCache(t *testing.T) {
	feed := testFeed(t)

	feed.handleMessage(context.Background(),
		ticker("BTC-USDT", "50000", "50010", 1, time.Now().Add(-time.Minute)))

	_, err := feed.GetQuote(context.Background(), domain.MustParsePair("BTC-USDT"))
	if code := apperror.GetCode(err); code != apperror.CodeQuoteStale {
		t.Fatalf("code = %s, want %s", code, apperror.CodeQuoteStale)
	}
}
