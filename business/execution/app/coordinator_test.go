package app_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	"github.com/fdemarco/cyclearb/business/execution/app"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	"github.com/fdemarco/cyclearb/business/execution/infra/paper"
	riskdomain "github.com/fdemarco/cyclearb/business/risk/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() app.CoordinatorConfig {
	return app.CoordinatorConfig{
		OrderTimeout:       100 * time.Millisecond,
		StatusPollInterval: 10 * time.Millisecond,
	}
}

func tradeLeg(exchange, pair, in, out, inAmount, outAmount string) riskdomain.PlannedLeg {
	return riskdomain.PlannedLeg{
		Exchange:    exchange,
		ToExchange:  exchange,
		Pair:        pair,
		Side:        arbdomain.SideSell,
		Kind:        arbdomain.EdgeTrade,
		InCurrency:  in,
		OutCurrency: out,
		InAmount:    dec(inAmount),
		ExpectedOut: dec(outAmount),
		LimitPrice:  dec("1"),
	}
}

// threeLegPlan converts A -> B -> C -> A on one venue.
func threeLegPlan(exchange string) *riskdomain.ExecutionPlan {
	return &riskdomain.ExecutionPlan{
		ID: riskdomain.NewPlanID(),
		Legs: []riskdomain.PlannedLeg{
			tradeLeg(exchange, "A-B", "A", "B", "100", "99"),
			tradeLeg(exchange, "B-C", "B", "C", "99", "98"),
			tradeLeg(exchange, "C-A", "C", "A", "98", "104"),
		},
		StartExchange:  exchange,
		StartCurrency:  "A",
		StartAmount:    dec("100"),
		ExpectedReturn: dec("104"),
		ExpectedProfit: dec("4"),
		CreatedAt:      time.Now(),
	}
}

func newCoordinator(gateways ...app.OrderGateway) (*app.Coordinator, *app.CommitmentRegistry) {
	locks := app.NewCommitmentRegistry()
	limiters := ratelimit.NewRegistry(0)
	return app.NewCoordinator(gateways, locks, limiters, testConfig(), testLogger()), locks
}

func TestExecutePlanCompletesAllLegs(t *testing.T) {
	gw := paper.NewGateway("kraken")
	coord, locks := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanCompleted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanCompleted)
	}
	if len(outcome.Legs) != 3 {
		t.Fatalf("got %d leg results, want 3", len(outcome.Legs))
	}
	for i, leg := range outcome.Legs {
		if leg.Order.State != domain.LegFilled {
			t.Fatalf("leg %d state = %s, want %s", i, leg.Order.State, domain.LegFilled)
		}
		if leg.Err != nil {
			t.Fatalf("leg %d err = %v", i, leg.Err)
		}
	}
	if gw.OrderCount() != 3 {
		t.Fatalf("OrderCount = %d, want 3", gw.OrderCount())
	}
	if locks.Held(app.CommitmentKey("kraken", "A")) {
		t.Fatal("commitments not released after completion")
	}
}

func TestExecutePlanFirstLegFailureAborts(t *testing.T) {
	gw := paper.NewGateway("kraken")
	gw.RejectPair("A-B")
	coord, _ := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanAborted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanAborted)
	}
	if outcome.Residual != nil {
		t.Fatalf("Residual = %+v, want nil: nothing was converted", outcome.Residual)
	}
	if code := apperror.GetCode(outcome.Legs[0].Err); code != apperror.CodeOrderRejected {
		t.Fatalf("leg 0 code = %s, want %s", code, apperror.CodeOrderRejected)
	}
	// Later legs must never reach the venue.
	if gw.OrderCount() != 1 {
		t.Fatalf("OrderCount = %d, want 1", gw.OrderCount())
	}
}

func TestExecutePlanLaterLegFailureIsPartial(t *testing.T) {
	gw := paper.NewGateway("kraken")
	gw.RejectPair("B-C")
	coord, _ := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanPartiallyCompleted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanPartiallyCompleted)
	}
	if outcome.Residual == nil {
		t.Fatal("partial completion must record residual exposure")
	}
	if outcome.Residual.Exchange != "kraken" || outcome.Residual.Currency != "B" {
		t.Fatalf("residual at %s@%s, want B@kraken", outcome.Residual.Currency, outcome.Residual.Exchange)
	}
	if !outcome.Residual.Amount.Equal(dec("99")) {
		t.Fatalf("residual amount = %s, want first leg's proceeds 99", outcome.Residual.Amount)
	}
	if gw.OrderCount() != 2 {
		t.Fatalf("OrderCount = %d, want 2: third leg must not submit", gw.OrderCount())
	}
}

func TestExecutePlanResidualUsesRealizedFill(t *testing.T) {
	gw := paper.NewGateway("kraken")
	// The first leg fills 3% below its limit, so the plan holds less B
	// than sized for when the second leg then bounces.
	gw.FillPairAt("A-B", dec("0.97"))
	gw.RejectPair("B-C")
	coord, _ := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanPartiallyCompleted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanPartiallyCompleted)
	}
	if outcome.Residual == nil {
		t.Fatal("partial completion must record residual exposure")
	}
	// 99 planned out scaled by the realized fill value: 99 * 0.97.
	if !outcome.Residual.Amount.Equal(dec("96.03")) {
		t.Fatalf("residual amount = %s, want realized proceeds 96.03", outcome.Residual.Amount)
	}
}

func TestExecutePlanHeldOrderTimesOut(t *testing.T) {
	gw := paper.NewGateway("kraken")
	gw.HoldPair("A-B")
	coord, _ := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanAborted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanAborted)
	}
	leg := outcome.Legs[0]
	if leg.Order.State != domain.LegTimedOut {
		t.Fatalf("leg state = %s, want %s", leg.Order.State, domain.LegTimedOut)
	}
	if code := apperror.GetCode(leg.Err); code != apperror.CodeOrderTimedOut {
		t.Fatalf("leg code = %s, want %s", code, apperror.CodeOrderTimedOut)
	}
}

func TestExecutePlanSubmitErrorReconcilesViaStatus(t *testing.T) {
	// The venue registers the order but the response is lost. The
	// coordinator must query before declaring failure instead of
	// resubmitting.
	gw := paper.NewGateway("kraken")
	gw.FailSubmissions(errors.New("connection reset"))
	coord, _ := newCoordinator(gw)

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanCompleted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanCompleted)
	}
	if gw.OrderCount() != 3 {
		t.Fatalf("OrderCount = %d, want 3: no duplicate submissions", gw.OrderCount())
	}
}

func TestExecutePlanRefusesContendedBalances(t *testing.T) {
	gw := paper.NewGateway("kraken")
	coord, locks := newCoordinator(gw)

	locks.TryAcquire("other-plan", []string{app.CommitmentKey("kraken", "B")})

	outcome, err := coord.ExecutePlan(context.Background(), threeLegPlan("kraken"))
	if outcome != nil {
		t.Fatalf("outcome = %+v, want nil", outcome)
	}
	if code := apperror.GetCode(err); code != apperror.CodeBalanceCommitted {
		t.Fatalf("code = %s, want %s", code, apperror.CodeBalanceCommitted)
	}
	if gw.OrderCount() != 0 {
		t.Fatalf("OrderCount = %d, want 0", gw.OrderCount())
	}
}

func TestExecutePlanRequiresGatewaysForAllLegs(t *testing.T) {
	gw := paper.NewGateway("kraken")
	coord, locks := newCoordinator(gw)

	plan := threeLegPlan("kraken")
	plan.Legs[2].Exchange = "okx"

	_, err := coord.ExecutePlan(context.Background(), plan)
	if code := apperror.GetCode(err); code != apperror.CodeOrderSubmitFailed {
		t.Fatalf("code = %s, want %s", code, apperror.CodeOrderSubmitFailed)
	}
	// The early bail-out must not leak commitments.
	if locks.Held(app.CommitmentKey("kraken", "A")) {
		t.Fatal("commitments not released after gateway check failure")
	}
}

func TestExecutePlanTransferLeg(t *testing.T) {
	kraken := paper.NewGateway("kraken")
	coinbase := paper.NewGateway("coinbase")
	coord, _ := newCoordinator(kraken, coinbase)

	plan := &riskdomain.ExecutionPlan{
		ID: riskdomain.NewPlanID(),
		Legs: []riskdomain.PlannedLeg{
			tradeLeg("kraken", "A-B", "A", "B", "100", "99"),
			{
				Exchange:    "kraken",
				ToExchange:  "coinbase",
				Kind:        arbdomain.EdgeTransfer,
				InCurrency:  "B",
				OutCurrency: "B",
				InAmount:    dec("99"),
				ExpectedOut: dec("98.9"),
			},
			tradeLeg("coinbase", "B-A", "B", "A", "98.9", "103"),
		},
		StartExchange: "kraken",
		StartCurrency: "A",
		StartAmount:   dec("100"),
		CreatedAt:     time.Now(),
	}

	outcome, err := coord.ExecutePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}

	if outcome.State != domain.PlanCompleted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanCompleted)
	}
	if outcome.Legs[1].Order.State != domain.LegFilled {
		t.Fatalf("transfer leg state = %s, want %s", outcome.Legs[1].Order.State, domain.LegFilled)
	}
	if kraken.OrderCount() != 1 || coinbase.OrderCount() != 1 {
		t.Fatalf("order counts = %d/%d, want 1 trade per venue",
			kraken.OrderCount(), coinbase.OrderCount())
	}
}

func TestExecutePlanDiscardsStaleQuotedPlan(t *testing.T) {
	gw := paper.NewGateway("kraken")
	locks := app.NewCommitmentRegistry()
	cfg := testConfig()
	cfg.MaxQuoteAge = time.Second
	coord := app.NewCoordinator([]app.OrderGateway{gw}, locks, ratelimit.NewRegistry(0), cfg, testLogger())

	plan := threeLegPlan("kraken")
	plan.Cycle = arbdomain.NewCycle([]arbdomain.Edge{{
		From:     "A@kraken",
		To:       "B@kraken",
		Kind:     arbdomain.EdgeTrade,
		Exchange: "kraken",
		Pair:     "A-B",
		Quoted:   time.Now().Add(-time.Minute),
	}}, time.Now())

	outcome, err := coord.ExecutePlan(context.Background(), plan)
	if outcome != nil {
		t.Fatalf("outcome = %+v, want nil", outcome)
	}
	if code := apperror.GetCode(err); code != apperror.CodeCycleInvalidated {
		t.Fatalf("code = %s, want %s", code, apperror.CodeCycleInvalidated)
	}
	if gw.OrderCount() != 0 {
		t.Fatalf("OrderCount = %d, want 0: stale plan must never submit", gw.OrderCount())
	}
}

func TestExecutePlanHonorsCancelledContext(t *testing.T) {
	gw := paper.NewGateway("kraken")
	gw.HoldPair("A-B")
	coord, _ := newCoordinator(gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := coord.ExecutePlan(ctx, threeLegPlan("kraken"))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if outcome.State != domain.PlanAborted {
		t.Fatalf("State = %s, want %s", outcome.State, domain.PlanAborted)
	}
	if !errors.Is(outcome.Legs[0].Err, context.Canceled) {
		t.Fatalf("leg err = %v, want context.Canceled", outcome.Legs[0].Err)
	}
}
