// Package app contains the graph builder, cycle detector and the
// detection pipeline for the arbitrage context.
package app

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/arbitrage/domain"
	mddomain "github.com/fdemarco/cyclearb/business/marketdata/domain"
)

// VenueParams holds the per-venue fees the builder prices into edges.
type VenueParams struct {
	TradingFee    decimal.Decimal
	WithdrawalFee decimal.Decimal
}

// BuilderConfig tunes graph construction.
type BuilderConfig struct {
	StalenessWindow time.Duration
	// TransferEdges connects same-currency nodes across venues, priced
	// with the source venue's withdrawal fee. Without them every cycle is
	// confined to a single venue.
	TransferEdges bool
}

// Builder converts a market snapshot into a price graph.
type Builder struct {
	venues map[string]VenueParams
	cfg    BuilderConfig
	logger *slog.Logger
}

func NewBuilder(venues map[string]VenueParams, cfg BuilderConfig, logger *slog.Logger) *Builder {
	return &Builder{
		venues: venues,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arbitrage.builder")),
	}
}

// Build constructs the graph from the snapshot's fresh quotes. Each quote
// yields two trade edges: selling base at the bid and buying base at the
// ask. Stale quotes are skipped rather than priced optimistically.
func (b *Builder) Build(snap *mddomain.Snapshot, now time.Time) *domain.Graph {
	g := domain.NewGraph()

	skipped := 0
	for _, quote := range snap.Quotes {
		if quote.IsStale(b.cfg.StalenessWindow, now) {
			skipped++
			continue
		}
		params, ok := b.venues[quote.Exchange]
		if !ok {
			b.logger.Warn("quote from unconfigured venue dropped",
				slog.String("exchange", quote.Exchange),
				slog.String("pair", quote.Pair.String()))
			continue
		}
		b.addTradeEdges(g, quote, params)
	}

	if skipped > 0 {
		b.logger.Debug("stale quotes excluded from graph", slog.Int("count", skipped))
	}

	if b.cfg.TransferEdges {
		b.addTransferEdges(g)
	}

	return g
}

func (b *Builder) addTradeEdges(g *domain.Graph, quote mddomain.Quote, params VenueParams) {
	base := domain.NewNode(quote.Pair.Base, quote.Exchange)
	counter := domain.NewNode(quote.Pair.Quote, quote.Exchange)

	// Sell one base unit at the bid.
	sell := domain.Edge{
		From:     base,
		To:       counter,
		Kind:     domain.EdgeTrade,
		Exchange: quote.Exchange,
		Pair:     quote.Pair.String(),
		Side:     domain.SideSell,
		Rate:     quote.Bid,
		Fee:      params.TradingFee,
		Quoted:   quote.Timestamp,
	}
	if err := g.AddEdge(sell); err != nil {
		b.logger.Warn("sell edge rejected", slog.Any("error", err))
	}

	// Buy base with one counter unit at the ask.
	buy := domain.Edge{
		From:     counter,
		To:       base,
		Kind:     domain.EdgeTrade,
		Exchange: quote.Exchange,
		Pair:     quote.Pair.String(),
		Side:     domain.SideBuy,
		Rate:     decimal.NewFromInt(1).Div(quote.Ask),
		Fee:      params.TradingFee,
		Quoted:   quote.Timestamp,
	}
	if err := g.AddEdge(buy); err != nil {
		b.logger.Warn("buy edge rejected", slog.Any("error", err))
	}
}

// addTransferEdges links every currency to its counterpart on every other
// venue that also trades it.
func (b *Builder) addTransferEdges(g *domain.Graph) {
	byCurrency := make(map[string][]string) // currency -> venues holding it
	seen := make(map[string]struct{})
	for _, node := range g.Nodes() {
		currency, exchange, ok := splitNode(node)
		if !ok {
			continue
		}
		key := currency + "@" + exchange
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		byCurrency[currency] = append(byCurrency[currency], exchange)
	}

	for currency, venues := range byCurrency {
		for _, from := range venues {
			params, ok := b.venues[from]
			if !ok {
				continue
			}
			for _, to := range venues {
				if from == to {
					continue
				}
				edge := domain.Edge{
					From:     domain.NewNode(currency, from),
					To:       domain.NewNode(currency, to),
					Kind:     domain.EdgeTransfer,
					Exchange: from,
					Rate:     decimal.NewFromInt(1),
					Fee:      params.WithdrawalFee,
				}
				if err := g.AddEdge(edge); err != nil {
					b.logger.Warn("transfer edge rejected", slog.Any("error", err))
				}
			}
		}
	}
}

func splitNode(node domain.Node) (currency, exchange string, ok bool) {
	s := string(node)
	for i := 0; i < len(s); i++ {
		if s[i] == '@' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
