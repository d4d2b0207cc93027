package app

import (
	"context"
	"log/slog"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	mdapp "github.com/fdemarco/cyclearb/business/marketdata/app"
	riskapp "github.com/fdemarco/cyclearb/business/risk/app"
)

// Trader bridges detection to execution: it sizes detected cycles with
// the risk engine and hands approved plans to the coordinator, one at a
// time in profitability order.
type Trader struct {
	engine      *riskapp.Engine
	coordinator *Coordinator
	balances    *mdapp.BalanceService
	sink        OutcomeSink
	logger      *slog.Logger
}

func NewTrader(
	engine *riskapp.Engine,
	coordinator *Coordinator,
	balances *mdapp.BalanceService,
	sink OutcomeSink,
	logger *slog.Logger,
) *Trader {
	return &Trader{
		engine:      engine,
		coordinator: coordinator,
		balances:    balances,
		sink:        sink,
		logger:      logger.With(slog.String("component", "execution.trader")),
	}
}

// HandleCycles sizes and executes the round's cycles. Balances are
// refreshed once per round; the engine's batch evaluation then debits a
// working copy so plans in the same round never overlap on capital.
func (t *Trader) HandleCycles(ctx context.Context, cycles []arbdomain.Cycle) error {
	sheet, err := t.balances.Refresh(ctx)
	if err != nil {
		t.logger.Error("balance refresh failed, skipping round", slog.Any("error", err))
		return err
	}

	plans, rejected := t.engine.EvaluateAll(cycles, sheet)
	for _, r := range rejected {
		t.logger.Debug("cycle rejected",
			slog.String("cycle", r.Cycle.String()),
			slog.Any("reason", r.Err))
		t.sink.RecordRejection(ctx, r.Cycle, r.Err)
	}

	for _, plan := range plans {
		outcome, err := t.coordinator.ExecutePlan(ctx, plan)
		if err != nil {
			t.logger.Warn("plan could not start",
				slog.String("plan_id", plan.ID),
				slog.Any("error", err))
			t.sink.RecordRejection(ctx, plan.Cycle, err)
			continue
		}
		t.sink.RecordOutcome(ctx, plan, outcome)
	}
	return nil
}
