package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	riskdomain "github.com/fdemarco/cyclearb/business/risk/domain"
	"github.com/fdemarco/cyclearb/internal/apm"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// CoordinatorConfig tunes order submission and monitoring.
type CoordinatorConfig struct {
	OrderTimeout       time.Duration
	StatusPollInterval time.Duration
	// MaxQuoteAge invalidates a plan whose quotes aged past it before the
	// first order went out. Zero disables the check.
	MaxQuoteAge time.Duration
}

// Coordinator executes approved plans leg by leg. Legs run strictly in
// sequence: each leg's input only exists once the previous leg filled.
// There is no automatic unwind; a failure after the first fill leaves the
// plan partially completed with its residual exposure recorded.
type Coordinator struct {
	gateways map[string]OrderGateway
	locks    *CommitmentRegistry
	limiters *ratelimit.Registry
	cfg      CoordinatorConfig
	logger   *slog.Logger
	tracer   apm.Tracer

	plansExecuted metric.Int64Counter
	legsFilled    metric.Int64Counter
}

func NewCoordinator(
	gateways []OrderGateway,
	locks *CommitmentRegistry,
	limiters *ratelimit.Registry,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *Coordinator {
	if cfg.StatusPollInterval <= 0 {
		cfg.StatusPollInterval = 250 * time.Millisecond
	}
	byName := make(map[string]OrderGateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}

	meter := otel.Meter("execution.coordinator")
	plans, _ := meter.Int64Counter("execution_plans_total",
		metric.WithDescription("Plans executed, by terminal state"))
	legs, _ := meter.Int64Counter("execution_legs_filled_total",
		metric.WithDescription("Legs filled"))

	return &Coordinator{
		gateways:      byName,
		locks:         locks,
		limiters:      limiters,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "execution.coordinator")),
		tracer:        apm.NewTracer("execution.coordinator"),
		plansExecuted: plans,
		legsFilled:    legs,
	}
}

// ExecutePlan runs the plan to a terminal state and returns its outcome.
// The returned error is non-nil only when the plan could not start at all
// (commitment contention or unknown venue); leg failures are expressed in
// the outcome.
func (c *Coordinator) ExecutePlan(ctx context.Context, plan *riskdomain.ExecutionPlan) (*domain.Outcome, error) {
	ctx, span := c.tracer.StartSpanFromContext(ctx, "coordinator.execute_plan")
	defer span.End()
	span.SetAttributes(
		attribute.String("plan.id", plan.ID),
		attribute.Int("plan.legs", len(plan.Legs)),
	)

	// A plan priced off quotes that aged out is discarded, never
	// submitted: the edge rates it was sized on no longer exist.
	if c.cfg.MaxQuoteAge > 0 {
		if stale := stalestEdge(plan, time.Now(), c.cfg.MaxQuoteAge); stale != "" {
			err := apperror.New(apperror.CodeCycleInvalidated,
				apperror.WithContext("quote for "+stale+" aged past "+c.cfg.MaxQuoteAge.String()))
			span.NoticeError(err)
			return nil, err
		}
	}

	keys := commitmentKeys(plan)
	ok, contended := c.locks.TryAcquire(plan.ID, keys)
	if !ok {
		err := apperror.New(apperror.CodeBalanceCommitted,
			apperror.WithContext("balance "+contended+" committed to another plan"))
		span.NoticeError(err)
		return nil, err
	}
	defer c.locks.Release(plan.ID)

	for _, leg := range plan.Legs {
		if _, ok := c.gateways[leg.Exchange]; ok {
			continue
		}
		err := apperror.New(apperror.CodeOrderSubmitFailed,
			apperror.WithContext("no gateway for venue "+leg.Exchange))
		span.NoticeError(err)
		return nil, err
	}

	outcome := &domain.Outcome{
		PlanID:    plan.ID,
		State:     domain.PlanExecuting,
		StartedAt: time.Now(),
	}
	log := c.logger.With(slog.String("plan_id", plan.ID))
	log.Info("plan execution started",
		slog.String("cycle", plan.Cycle.String()),
		slog.String("start_amount", plan.StartAmount.String()))

	for i, leg := range plan.Legs {
		result := c.executeLeg(ctx, plan, i, leg)
		outcome.Legs = append(outcome.Legs, result)

		if result.Order.State.Succeeded() {
			c.legsFilled.Add(ctx, 1)
			continue
		}

		// A failed first leg leaves no exposure: nothing was converted.
		// Any later failure strands the previous leg's proceeds.
		if i == 0 {
			outcome.State = domain.PlanAborted
		} else {
			outcome.State = domain.PlanPartiallyCompleted
			prev := plan.Legs[i-1]
			residualExchange := prev.ToExchange
			if residualExchange == "" {
				residualExchange = prev.Exchange
			}
			outcome.Residual = &domain.ResidualExposure{
				Exchange: residualExchange,
				Currency: prev.OutCurrency,
				Amount:   realizedOut(prev, outcome.Legs[i-1].Order),
			}
		}
		outcome.FinishedAt = time.Now()
		c.finish(ctx, span, log, outcome, result)
		return outcome, nil
	}

	outcome.State = domain.PlanCompleted
	outcome.FinishedAt = time.Now()
	c.plansExecuted.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(outcome.State))))
	log.Info("plan completed",
		slog.Int("legs", len(outcome.Legs)),
		slog.Duration("duration", outcome.Duration()))
	return outcome, nil
}

func (c *Coordinator) finish(ctx context.Context, span apm.Span, log *slog.Logger, outcome *domain.Outcome, failed domain.LegResult) {
	c.plansExecuted.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(outcome.State))))
	span.SetAttributes(attribute.String("plan.state", string(outcome.State)))
	if failed.Err != nil {
		span.NoticeError(failed.Err)
	}
	attrs := []any{
		slog.String("state", string(outcome.State)),
		slog.Int("failed_leg", failed.Index),
		slog.Any("error", failed.Err),
	}
	if outcome.Residual != nil {
		attrs = append(attrs,
			slog.String("residual", outcome.Residual.Amount.String()+" "+
				outcome.Residual.Currency+"@"+outcome.Residual.Exchange))
	}
	log.Warn("plan did not complete", attrs...)
}

// executeLeg submits one leg and monitors it to a terminal state.
func (c *Coordinator) executeLeg(ctx context.Context, plan *riskdomain.ExecutionPlan, index int, leg riskdomain.PlannedLeg) domain.LegResult {
	ctx, span := c.tracer.StartSpanFromContext(ctx, "coordinator.execute_leg")
	defer span.End()
	span.SetAttributes(
		attribute.Int("leg.index", index),
		attribute.String("leg.exchange", leg.Exchange),
		attribute.String("leg.pair", leg.Pair),
	)

	gateway := c.gateways[leg.Exchange]

	if leg.Kind == arbdomain.EdgeTransfer {
		return c.executeTransfer(ctx, gateway, index, leg)
	}

	order := domain.Order{
		ClientOrderID: domain.NewClientOrderID(),
		Exchange:      leg.Exchange,
		Pair:          leg.Pair,
		Side:          leg.Side,
		Amount:        leg.InAmount,
		LimitPrice:    leg.LimitPrice,
		State:         domain.LegPending,
	}

	req := OrderRequest{
		ClientOrderID: order.ClientOrderID,
		Pair:          leg.Pair,
		Side:          leg.Side,
		Amount:        leg.InAmount,
		LimitPrice:    leg.LimitPrice,
	}

	// Order placement draws on the same per-venue request budget as the
	// quote fetchers.
	if err := c.limiters.Wait(ctx, leg.Exchange); err != nil {
		order.State = domain.LegTimedOut
		return domain.LegResult{Index: index, Order: order, Err: err}
	}

	if err := gateway.PlaceOrder(ctx, req); err != nil {
		// The submission may have reached the venue even though the
		// response did not reach us. Ask before declaring failure: a
		// blind resubmit could double-spend the leg.
		status, statusErr := gateway.GetOrderStatus(ctx, order.ClientOrderID)
		if statusErr != nil {
			order.State = domain.LegRejected
			span.NoticeError(err)
			return domain.LegResult{Index: index, Order: order,
				Err: apperror.Wrap(err, apperror.CodeOrderSubmitFailed, leg.Pair+"@"+leg.Exchange)}
		}
		c.logger.Warn("order submission errored but order exists, monitoring",
			slog.String("plan_id", plan.ID),
			slog.String("client_order_id", order.ClientOrderID))
		order.State = status.State
	} else {
		order.State = domain.LegSubmitted
	}
	order.SubmittedAt = time.Now()

	return c.monitorOrder(ctx, gateway, index, order)
}

// monitorOrder polls the venue until the order is terminal or the order
// timeout expires. On timeout one final reconciliation query decides
// between a late fill and a timed-out leg.
func (c *Coordinator) monitorOrder(ctx context.Context, gateway OrderGateway, index int, order domain.Order) domain.LegResult {
	deadline := time.NewTimer(c.cfg.OrderTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(c.cfg.StatusPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			order.State = domain.LegTimedOut
			return domain.LegResult{Index: index, Order: order, Err: ctx.Err()}

		case <-deadline.C:
			status, err := gateway.GetOrderStatus(ctx, order.ClientOrderID)
			if err == nil && status.State.Terminal() {
				return c.settle(index, order, status)
			}
			order.State = domain.LegTimedOut
			order.CompletedAt = time.Now()
			return domain.LegResult{Index: index, Order: order,
				Err: apperror.New(apperror.CodeOrderTimedOut,
					apperror.WithContext(order.Pair+"@"+order.Exchange))}

		case <-poll.C:
			if err := c.limiters.Wait(ctx, order.Exchange); err != nil {
				continue
			}
			status, err := gateway.GetOrderStatus(ctx, order.ClientOrderID)
			if err != nil {
				// Transient status failures are retried until the timeout.
				continue
			}
			if status.State.Terminal() {
				return c.settle(index, order, status)
			}
		}
	}
}

func (c *Coordinator) settle(index int, order domain.Order, status *OrderStatus) domain.LegResult {
	order.State = status.State
	order.FilledAmount = status.FilledAmount
	order.AvgFillPrice = status.AvgFillPrice
	order.CompletedAt = time.Now()

	result := domain.LegResult{Index: index, Order: order}
	switch status.State {
	case domain.LegRejected:
		result.Err = apperror.New(apperror.CodeOrderRejected,
			apperror.WithContext(order.Pair+"@"+order.Exchange))
	case domain.LegPartiallyFilled:
		result.Err = apperror.New(apperror.CodePartialExecution,
			apperror.WithContext("filled "+status.FilledAmount.String()+" of "+order.Amount.String()))
	}
	return result
}

func (c *Coordinator) executeTransfer(ctx context.Context, gateway OrderGateway, index int, leg riskdomain.PlannedLeg) domain.LegResult {
	order := domain.Order{
		ClientOrderID: domain.NewClientOrderID(),
		Exchange:      leg.Exchange,
		Side:          leg.Side,
		Amount:        leg.InAmount,
		State:         domain.LegSubmitted,
		SubmittedAt:   time.Now(),
	}

	transferer, ok := gateway.(TransferGateway)
	if !ok {
		order.State = domain.LegRejected
		return domain.LegResult{Index: index, Order: order,
			Err: apperror.New(apperror.CodeOrderSubmitFailed,
				apperror.WithContext("venue "+leg.Exchange+" has no transfer support"))}
	}

	if err := c.limiters.Wait(ctx, leg.Exchange); err != nil {
		order.State = domain.LegTimedOut
		return domain.LegResult{Index: index, Order: order, Err: err}
	}

	if err := transferer.Transfer(ctx, leg.InCurrency, leg.InAmount, leg.ToExchange); err != nil {
		order.State = domain.LegRejected
		order.CompletedAt = time.Now()
		return domain.LegResult{Index: index, Order: order,
			Err: apperror.Wrap(err, apperror.CodeOrderSubmitFailed, "transfer from "+leg.Exchange)}
	}

	order.State = domain.LegFilled
	order.FilledAmount = leg.InAmount
	order.CompletedAt = time.Now()
	return domain.LegResult{Index: index, Order: order}
}

// realizedOut returns the proceeds a filled leg actually produced. Fills
// can land away from the planned quantity and rate, so the planned
// ExpectedOut, which already prices the venue fee in, is scaled by the
// realized fill value over the planned one. Legs without fill detail
// (transfers, venues that report none) fall back to the planned amount.
func realizedOut(leg riskdomain.PlannedLeg, order domain.Order) decimal.Decimal {
	if leg.Kind != arbdomain.EdgeTrade ||
		!order.FilledAmount.IsPositive() || !order.AvgFillPrice.IsPositive() ||
		!leg.InAmount.IsPositive() || !leg.LimitPrice.IsPositive() {
		return leg.ExpectedOut
	}
	planned := leg.InAmount.Mul(leg.LimitPrice)
	realized := order.FilledAmount.Mul(order.AvgFillPrice)
	return leg.ExpectedOut.Mul(realized).Div(planned)
}

// stalestEdge returns the pair of the first trade edge older than maxAge,
// or "" when all quotes are still fresh. Transfer edges carry no quote.
func stalestEdge(plan *riskdomain.ExecutionPlan, now time.Time, maxAge time.Duration) string {
	for _, edge := range plan.Cycle.Edges {
		if edge.Kind != arbdomain.EdgeTrade || edge.Quoted.IsZero() {
			continue
		}
		if now.Sub(edge.Quoted) > maxAge {
			return edge.Pair + "@" + edge.Exchange
		}
	}
	return ""
}

func commitmentKeys(plan *riskdomain.ExecutionPlan) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, leg := range plan.Legs {
		outExchange := leg.ToExchange
		if outExchange == "" {
			outExchange = leg.Exchange
		}
		for _, key := range []string{
			CommitmentKey(leg.Exchange, leg.InCurrency),
			CommitmentKey(outExchange, leg.OutCurrency),
		} {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
	}
	return keys
}
