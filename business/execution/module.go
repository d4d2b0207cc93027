// Package execution implements the execution bounded context: order
// gateways, the leg coordinator and the trade sink.
package execution

import (
	"context"
	"log/slog"

	"github.com/fdemarco/cyclearb/business/execution/app"
	execDI "github.com/fdemarco/cyclearb/business/execution/di"
	"github.com/fdemarco/cyclearb/business/execution/infra/paper"
	"github.com/fdemarco/cyclearb/business/execution/infra/report"
	"github.com/fdemarco/cyclearb/business/execution/infra/rest"
	mdDI "github.com/fdemarco/cyclearb/business/marketdata/di"
	riskDI "github.com/fdemarco/cyclearb/business/risk/di"
	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/di"
	"github.com/fdemarco/cyclearb/internal/monolith"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, execDI.Gateways, func(sr di.ServiceRegistry) []app.OrderGateway {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		var gateways []app.OrderGateway
		for name, ex := range cfg.Exchanges {
			// Dry-run trades on paper regardless of venue wiring; real
			// submission only happens with dry_run disabled on a live venue.
			if cfg.Execution.DryRun || ex.Simulated {
				gateways = append(gateways, paper.NewGateway(name))
				continue
			}
			gw, err := rest.NewGateway(rest.GatewayConfig{
				Name:           name,
				BaseURL:        ex.BaseURL,
				APIKey:         ex.APIKey,
				APISecret:      ex.APISecret,
				RequestTimeout: ex.RequestTimeout,
			}, log)
			if err != nil {
				panic("failed to create order gateway for " + name + ": " + err.Error())
			}
			gateways = append(gateways, gw)
		}
		return gateways
	})

	di.RegisterToken(c, execDI.Sink, func(sr di.ServiceRegistry) app.OutcomeSink {
		log := sr.Get("logger").(*slog.Logger)
		return report.NewSink(log)
	})

	di.RegisterToken(c, execDI.Coordinator, func(sr di.ServiceRegistry) *app.Coordinator {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)
		limiters := sr.Get("limiters").(*ratelimit.Registry)

		return app.NewCoordinator(
			execDI.GetGateways(sr),
			app.NewCommitmentRegistry(),
			limiters,
			app.CoordinatorConfig{
				OrderTimeout:       cfg.Execution.OrderTimeout,
				StatusPollInterval: cfg.Execution.StatusPollInterval,
				MaxQuoteAge:        cfg.Detector.StalenessWindow,
			},
			log,
		)
	})

	di.RegisterToken(c, execDI.Trader, func(sr di.ServiceRegistry) *app.Trader {
		log := sr.Get("logger").(*slog.Logger)
		return app.NewTrader(
			riskDI.GetEngine(sr),
			execDI.GetCoordinator(sr),
			mdDI.GetBalanceService(sr),
			execDI.GetSink(sr),
			log,
		)
	})

	return nil
}

// Startup logs the trading mode.
func (m *Module) Startup(_ context.Context, mono monolith.Monolith) error {
	mono.Logger().Info("execution module started",
		slog.Bool("dry_run", mono.Config().Execution.DryRun))
	return nil
}
