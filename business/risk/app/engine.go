// Package app contains the risk engine for the risk context.
package app

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	mddomain "github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/business/risk/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

// VenueLimits holds the order-size bounds of one venue, expressed in the
// leg's input currency.
type VenueLimits struct {
	MinOrderSize decimal.Decimal
	MaxOrderSize decimal.Decimal // zero means unbounded
}

// EngineConfig tunes plan acceptance and sizing.
type EngineConfig struct {
	// MinProfitFraction is the minimum cycle return, e.g. 0.01 for 1%.
	MinProfitFraction decimal.Decimal
	// SafetyMarginBps is added on top of MinProfitFraction before a cycle
	// qualifies.
	SafetyMarginBps decimal.Decimal
	// MaxSlippageBps is the assumed adverse move per trade leg.
	MaxSlippageBps decimal.Decimal
	// ExposureFraction caps the committed share of the free start balance.
	ExposureFraction decimal.Decimal
}

// Engine turns detected cycles into sized execution plans, or rejects
// them. Checks run in a fixed order so a rejection always names the first
// failed constraint.
type Engine struct {
	cfg    EngineConfig
	venues map[string]VenueLimits
	logger *slog.Logger
}

func NewEngine(cfg EngineConfig, venues map[string]VenueLimits, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		venues: venues,
		logger: logger.With(slog.String("component", "risk.engine")),
	}
}

var (
	one  = decimal.NewFromInt(1)
	tenK = decimal.NewFromInt(10000)
)

// Evaluate validates and sizes one cycle against the balance sheet.
func (e *Engine) Evaluate(cycle arbdomain.Cycle, sheet *mddomain.BalanceSheet) (*domain.ExecutionPlan, error) {
	if sheet == nil {
		return nil, apperror.New(apperror.CodePlanRejected,
			apperror.WithContext(string(domain.ReasonNoBalanceSheet)))
	}

	// 1. Gross profit must clear the threshold plus safety margin.
	profit := decimal.NewFromFloat(cycle.ProfitFraction())
	required := e.cfg.MinProfitFraction.Add(e.cfg.SafetyMarginBps.Div(tenK))
	if profit.LessThan(required) {
		return nil, apperror.New(apperror.CodeBelowMinProfit,
			apperror.WithContext("profit "+profit.String()+" below required "+required.String()))
	}

	startCurrency, startExchange, ok := splitNode(cycle.StartNode())
	if !ok {
		return nil, apperror.New(apperror.CodePlanRejected,
			apperror.WithContext("malformed start node "+string(cycle.StartNode())))
	}

	// Cumulative effective rate before each leg maps leg-input amounts
	// back into start-currency units.
	cumRates := make([]decimal.Decimal, len(cycle.Edges))
	cum := one
	for i, edge := range cycle.Edges {
		cumRates[i] = cum
		cum = cum.Mul(edge.EffectiveRate())
	}

	// 2. Leg size bounds must admit some start amount at all.
	minStart := decimal.Zero
	maxStart := decimal.Zero // zero means unbounded
	for i, edge := range cycle.Edges {
		limits, ok := e.venues[edge.Exchange]
		if !ok || edge.Kind != arbdomain.EdgeTrade {
			continue
		}
		if limits.MinOrderSize.IsPositive() {
			needed := limits.MinOrderSize.Div(cumRates[i])
			if needed.GreaterThan(minStart) {
				minStart = needed
			}
		}
		if limits.MaxOrderSize.IsPositive() {
			bound := limits.MaxOrderSize.Div(cumRates[i])
			if maxStart.IsZero() || bound.LessThan(maxStart) {
				maxStart = bound
			}
		}
	}
	if !maxStart.IsZero() && minStart.GreaterThan(maxStart) {
		return nil, apperror.New(apperror.CodeOrderSizeOutOfRange,
			apperror.WithContext("leg size bounds admit no feasible amount"))
	}

	// 3. The start balance, scaled by the exposure cap, must cover the
	// minimum feasible size.
	available := sheet.Free(startExchange, startCurrency)
	startAmount := available.Mul(e.cfg.ExposureFraction)
	if !maxStart.IsZero() && startAmount.GreaterThan(maxStart) {
		startAmount = maxStart
	}
	if startAmount.LessThanOrEqual(decimal.Zero) || startAmount.LessThan(minStart) {
		return nil, apperror.New(apperror.CodeInsufficientBalance,
			apperror.WithContext(startCurrency+"@"+startExchange+" free="+available.String()))
	}

	// 4. The profit must survive assumed slippage on every trade leg.
	tradeLegs := 0
	for _, edge := range cycle.Edges {
		if edge.Kind == arbdomain.EdgeTrade {
			tradeLegs++
		}
	}
	slippage := e.cfg.MaxSlippageBps.Mul(decimal.NewFromInt(int64(tradeLegs))).Div(tenK)
	if profit.Sub(slippage).LessThanOrEqual(decimal.Zero) {
		return nil, apperror.New(apperror.CodeSlippageExceeded,
			apperror.WithContext("profit "+profit.String()+" consumed by slippage allowance "+slippage.String()))
	}

	plan := e.buildPlan(cycle, startExchange, startCurrency, startAmount)
	e.logger.Info("plan approved",
		slog.String("plan_id", plan.ID),
		slog.String("start", startCurrency+"@"+startExchange),
		slog.String("amount", plan.StartAmount.String()),
		slog.String("expected_profit", plan.ExpectedProfit.String()))
	return plan, nil
}

// EvaluateAll sizes a batch of cycles against one balance sheet. Each
// approved plan's start amount is deducted from a working copy so plans
// approved in the same round never claim the same capital twice.
func (e *Engine) EvaluateAll(cycles []arbdomain.Cycle, sheet *mddomain.BalanceSheet) ([]*domain.ExecutionPlan, []RejectedCycle) {
	working := copySheet(sheet)

	var plans []*domain.ExecutionPlan
	var rejected []RejectedCycle
	for _, cycle := range cycles {
		plan, err := e.Evaluate(cycle, working)
		if err != nil {
			rejected = append(rejected, RejectedCycle{Cycle: cycle, Err: err})
			continue
		}
		plans = append(plans, plan)
		debit(working, plan.StartExchange, plan.StartCurrency, plan.StartAmount)
	}
	return plans, rejected
}

// RejectedCycle pairs a cycle with its rejection.
type RejectedCycle struct {
	Cycle arbdomain.Cycle
	Err   error
}

func (e *Engine) buildPlan(cycle arbdomain.Cycle, startExchange, startCurrency string, startAmount decimal.Decimal) *domain.ExecutionPlan {
	legs := make([]domain.PlannedLeg, len(cycle.Edges))
	amount := startAmount
	for i, edge := range cycle.Edges {
		inCur, _, _ := splitNode(edge.From)
		outCur, toExchange, _ := splitNode(edge.To)
		out := amount.Mul(edge.EffectiveRate())
		legs[i] = domain.PlannedLeg{
			Exchange:    edge.Exchange,
			ToExchange:  toExchange,
			Pair:        edge.Pair,
			Side:        edge.Side,
			Kind:        edge.Kind,
			InCurrency:  inCur,
			OutCurrency: outCur,
			InAmount:    amount,
			ExpectedOut: out,
			LimitPrice:  edge.Rate,
		}
		amount = out
	}

	return &domain.ExecutionPlan{
		ID:             domain.NewPlanID(),
		Cycle:          cycle,
		Legs:           legs,
		StartExchange:  startExchange,
		StartCurrency:  startCurrency,
		StartAmount:    startAmount,
		ExpectedReturn: amount,
		ExpectedProfit: amount.Sub(startAmount),
		CreatedAt:      time.Now(),
	}
}

func copySheet(sheet *mddomain.BalanceSheet) *mddomain.BalanceSheet {
	if sheet == nil {
		return nil
	}
	out := mddomain.NewBalanceSheet()
	out.TakenAt = sheet.TakenAt
	for _, byCurrency := range sheet.Balances {
		for _, b := range byCurrency {
			out.Set(b)
		}
	}
	return out
}

func debit(sheet *mddomain.BalanceSheet, exchange, currency string, amount decimal.Decimal) {
	byCurrency, ok := sheet.Balances[exchange]
	if !ok {
		return
	}
	b, ok := byCurrency[currency]
	if !ok {
		return
	}
	b.Free = b.Free.Sub(amount)
	if b.Free.IsNegative() {
		b.Free = decimal.Zero
	}
	byCurrency[currency] = b
}

func splitNode(node arbdomain.Node) (currency, exchange string, ok bool) {
	s := string(node)
	for i := 0; i < len(s); i++ {
		if s[i] == '@' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
