// Package stream serves quotes from a venue's WebSocket ticker stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/wsconn"
)

// FeedConfig holds the venue stream parameters.
type FeedConfig struct {
	Name         string
	WebSocketURL string
	Pairs        []domain.Pair
	StaleTimeout time.Duration
}

// tickerEvent is one streamed top-of-book update.
type tickerEvent struct {
	Symbol    string `json:"symbol"`
	BidPrice  string `json:"bidPrice"`
	BidQty    string `json:"bidQty"`
	AskPrice  string `json:"askPrice"`
	AskQty    string `json:"askQty"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

type subscribeRequest struct {
	Op      string   `json:"op"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
}

// Feed keeps a live top-of-book cache fed by the venue's ticker stream and
// serves GetQuote from it. Updates with a sequence number at or below the
// cached one are dropped.
type Feed struct {
	cfg    FeedConfig
	client *wsconn.Client
	logger *slog.Logger

	mu         sync.RWMutex
	quotes     map[string]domain.Quote // pair symbol -> latest quote
	lastUpdate time.Time
}

// NewFeed creates a Feed. Call Start to connect and subscribe.
func NewFeed(cfg FeedConfig, logger *slog.Logger) (*Feed, error) {
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 5 * time.Second
	}

	wsCfg := wsconn.DefaultConfig(cfg.WebSocketURL, cfg.Name)
	client, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, fmt.Errorf("stream: ws client for %s: %w", cfg.Name, err)
	}

	f := &Feed{
		cfg:    cfg,
		client: client,
		logger: logger.With(
			slog.String("component", "marketdata.stream"),
			slog.String("exchange", cfg.Name),
		),
		quotes: make(map[string]domain.Quote),
	}

	client.OnMessage(f.handleMessage)
	client.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			f.logger.Warn("feed state change",
				slog.String("state", string(state)),
				slog.Any("error", err))
			return
		}
		f.logger.Info("feed state change", slog.String("state", string(state)))
		if state == wsconn.StateConnected {
			// Re-subscribe after every (re)connect.
			go f.subscribe(context.Background())
		}
	})

	return f, nil
}

// Name returns the venue identifier.
func (f *Feed) Name() string {
	return f.cfg.Name
}

// Start connects to the stream and subscribes to all configured pairs.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.client.Connect(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeFeedConnectionError, "connect "+f.cfg.Name)
	}
	return nil
}

// Stop closes the stream.
func (f *Feed) Stop() error {
	return f.client.Close()
}

// LastUpdate returns the time of the most recent accepted update. Zero
// before the first update. Feeds a health freshness probe.
func (f *Feed) LastUpdate() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastUpdate
}

// GetQuote serves the cached quote for pair. Returns an error if the pair
// was never streamed or the cached quote is older than StaleTimeout.
func (f *Feed) GetQuote(_ context.Context, pair domain.Pair) (*domain.Quote, error) {
	f.mu.RLock()
	quote, ok := f.quotes[pair.String()]
	f.mu.RUnlock()

	if !ok {
		return nil, apperror.New(apperror.CodeUnknownPair,
			apperror.WithContext(pair.String()+"@"+f.cfg.Name))
	}
	if quote.IsStale(f.cfg.StaleTimeout, time.Now()) {
		return nil, apperror.New(apperror.CodeQuoteStale,
			apperror.WithContext(pair.String()+"@"+f.cfg.Name))
	}
	return &quote, nil
}

func (f *Feed) subscribe(ctx context.Context) {
	symbols := make([]string, len(f.cfg.Pairs))
	for i, p := range f.cfg.Pairs {
		symbols[i] = p.String()
	}

	req := subscribeRequest{Op: "subscribe", Channel: "ticker", Symbols: symbols}
	if err := f.client.SendJSON(ctx, req); err != nil {
		f.logger.Error("subscribe failed", slog.Any("error", err))
	}
}

func (f *Feed) handleMessage(_ context.Context, msg []byte) {
	var event tickerEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		f.logger.Debug("dropping unparseable message", slog.Any("error", err))
		return
	}
	if event.Symbol == "" {
		// Subscription acks and heartbeats share the channel.
		return
	}

	pair, err := domain.ParsePair(event.Symbol)
	if err != nil {
		f.logger.Debug("dropping unknown symbol", slog.String("symbol", event.Symbol))
		return
	}

	quote, err := f.toQuote(pair, event)
	if err != nil {
		f.logger.Debug("dropping bad ticker", slog.Any("error", err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.quotes[pair.String()]; ok && event.Sequence <= prev.Sequence {
		return
	}
	f.quotes[pair.String()] = *quote
	f.lastUpdate = time.Now()
}

func (f *Feed) toQuote(pair domain.Pair, e tickerEvent) (*domain.Quote, error) {
	bid, err := decimal.NewFromString(e.BidPrice)
	if err != nil {
		return nil, err
	}
	ask, err := decimal.NewFromString(e.AskPrice)
	if err != nil {
		return nil, err
	}
	bidSize, err := decimal.NewFromString(e.BidQty)
	if err != nil {
		return nil, err
	}
	askSize, err := decimal.NewFromString(e.AskQty)
	if err != nil {
		return nil, err
	}

	quote := &domain.Quote{
		Exchange:  f.cfg.Name,
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Sequence:  e.Sequence,
		Timestamp: time.UnixMilli(e.Timestamp),
	}
	if err := quote.Validate(); err != nil {
		return nil, err
	}
	return quote, nil
}
