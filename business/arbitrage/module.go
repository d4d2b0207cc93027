// Package arbitrage implements the arbitrage bounded context: graph
// construction, cycle detection and the polling pipeline.
package arbitrage

import (
	"context"
	"log/slog"

	"github.com/fdemarco/cyclearb/business/arbitrage/app"
	arbDI "github.com/fdemarco/cyclearb/business/arbitrage/di"
	execDI "github.com/fdemarco/cyclearb/business/execution/di"
	mdDI "github.com/fdemarco/cyclearb/business/marketdata/di"
	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/di"
	"github.com/fdemarco/cyclearb/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct{}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, arbDI.Builder, func(sr di.ServiceRegistry) *app.Builder {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		venues := make(map[string]app.VenueParams, len(cfg.Exchanges))
		for name, ex := range cfg.Exchanges {
			venues[name] = app.VenueParams{
				TradingFee:    ex.TradingFeeDecimal(),
				WithdrawalFee: ex.WithdrawalFeeDecimal(),
			}
		}

		return app.NewBuilder(venues, app.BuilderConfig{
			StalenessWindow: cfg.Detector.StalenessWindow,
			TransferEdges:   cfg.Transfers.Enabled,
		}, log)
	})

	di.RegisterToken(c, arbDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)
		return app.NewDetector(app.DetectorConfig{Epsilon: cfg.Detector.Epsilon}, log)
	})

	di.RegisterToken(c, arbDI.Pipeline, func(sr di.ServiceRegistry) *app.Pipeline {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		return app.NewPipeline(
			mdDI.GetFetcher(sr),
			arbDI.GetBuilder(sr),
			arbDI.GetDetector(sr),
			execDI.GetTrader(sr),
			app.PipelineConfig{PollInterval: cfg.Detector.PollInterval},
			log,
		)
	})

	return nil
}

// Startup launches the detection loop. It runs until the application
// context is cancelled.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	pipeline := arbDI.GetPipeline(mono.Services())

	go func() {
		if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
			mono.Logger().Error("detection loop exited", slog.Any("error", err))
		}
	}()

	mono.Logger().Info("arbitrage module started")
	return nil
}
