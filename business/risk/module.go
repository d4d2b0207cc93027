// Package risk implements the risk bounded context: plan validation and
// binding-constraint sizing.
package risk

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/risk/app"
	riskDI "github.com/fdemarco/cyclearb/business/risk/di"
	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/di"
	"github.com/fdemarco/cyclearb/internal/monolith"
)

// Module implements the risk bounded context.
type Module struct{}

// RegisterServices registers the risk engine with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, riskDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(*slog.Logger)

		venues := make(map[string]app.VenueLimits, len(cfg.Exchanges))
		for name, ex := range cfg.Exchanges {
			venues[name] = app.VenueLimits{
				MinOrderSize: ex.MinOrderSizeDecimal(),
				MaxOrderSize: ex.MaxOrderSizeDecimal(),
			}
		}

		return app.NewEngine(app.EngineConfig{
			MinProfitFraction: cfg.Risk.MinProfitDecimal(),
			SafetyMarginBps:   decimal.NewFromFloat(cfg.Risk.SafetyMarginBps),
			MaxSlippageBps:    decimal.NewFromFloat(cfg.Risk.MaxSlippageBps),
			ExposureFraction:  cfg.Risk.ExposureFractionDecimal(),
		}, venues, log)
	})
	return nil
}

// Startup has nothing to initialize; the engine is stateless.
func (m *Module) Startup(_ context.Context, mono monolith.Monolith) error {
	mono.Logger().Info("risk module started")
	return nil
}
