// Package report records execution outcomes to the log and metrics.
package report

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	riskdomain "github.com/fdemarco/cyclearb/business/risk/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

// Sink writes outcomes and rejections as structured log records and
// counts them by terminal state and rejection code.
type Sink struct {
	logger *slog.Logger

	outcomes   metric.Int64Counter
	rejections metric.Int64Counter
}

func NewSink(logger *slog.Logger) *Sink {
	meter := otel.Meter("execution.report")
	outcomes, _ := meter.Int64Counter("execution_outcomes_total",
		metric.WithDescription("Recorded plan outcomes, by state"))
	rejections, _ := meter.Int64Counter("risk_rejections_total",
		metric.WithDescription("Cycles rejected before execution, by code"))

	return &Sink{
		logger:     logger.With(slog.String("component", "execution.report")),
		outcomes:   outcomes,
		rejections: rejections,
	}
}

// RecordOutcome logs the plan's terminal state with its economics.
func (s *Sink) RecordOutcome(ctx context.Context, plan *riskdomain.ExecutionPlan, outcome *domain.Outcome) {
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(outcome.State)),
	))

	attrs := []any{
		slog.String("plan_id", outcome.PlanID),
		slog.String("state", string(outcome.State)),
		slog.String("cycle", plan.Cycle.String()),
		slog.String("start_amount", plan.StartAmount.String()),
		slog.String("expected_profit", plan.ExpectedProfit.String()),
		slog.Int("legs_run", len(outcome.Legs)),
		slog.Duration("duration", outcome.Duration()),
	}
	if outcome.Residual != nil {
		attrs = append(attrs, slog.String("residual",
			outcome.Residual.Amount.String()+" "+outcome.Residual.Currency+"@"+outcome.Residual.Exchange))
	}

	switch outcome.State {
	case domain.PlanCompleted:
		s.logger.Info("plan outcome", attrs...)
	default:
		s.logger.Warn("plan outcome", attrs...)
	}
}

// RecordRejection logs a pre-execution rejection with its code.
func (s *Sink) RecordRejection(ctx context.Context, cycle arbdomain.Cycle, err error) {
	code := apperror.GetCode(err)
	s.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", string(code)),
	))
	s.logger.Info("cycle rejected",
		slog.String("cycle", cycle.String()),
		slog.String("code", string(code)),
		slog.Any("error", err))
}
