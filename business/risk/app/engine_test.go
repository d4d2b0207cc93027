package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	mddomain "github.com/fdemarco/cyclearb/business/marketdata/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func defaultConfig() EngineConfig {
	return EngineConfig{
		MinProfitFraction: dec("0.01"),
		SafetyMarginBps:   dec("5"),
		MaxSlippageBps:    dec("10"),
		ExposureFraction:  dec("0.25"),
	}
}

// testCycle builds the three-venue loop A@kraken -> B@okx -> C@coinbase
// -> A@kraken: raw product 1.05, roughly 4.3% after fees.
func testCycle(t *testing.T) arbdomain.Cycle {
	t.Helper()
	g := arbdomain.NewGraph()
	specs := []struct {
		from, to  arbdomain.Node
		exchange  string
		pair      string
		rate, fee string
	}{
		{"A@kraken", "B@okx", "kraken", "A-B", "0.5", "0.001"},
		{"B@okx", "C@coinbase", "okx", "B-C", "3.0", "0.001"},
		{"C@coinbase", "A@kraken", "coinbase", "C-A", "0.7", "0.005"},
	}
	edges := make([]arbdomain.Edge, 0, len(specs))
	for _, s := range specs {
		err := g.AddEdge(arbdomain.Edge{
			From:     s.from,
			To:       s.to,
			Kind:     arbdomain.EdgeTrade,
			Exchange: s.exchange,
			Pair:     s.pair,
			Side:     arbdomain.SideSell,
			Rate:     dec(s.rate),
			Fee:      dec(s.fee),
		})
		if err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
		e, _ := g.Edge(s.from, s.to)
		edges = append(edges, e)
	}
	return arbdomain.NewCycle(edges, time.Now())
}

func sheetWith(exchange, currency, free string) *mddomain.BalanceSheet {
	sheet := mddomain.NewBalanceSheet()
	sheet.Set(mddomain.Balance{
		Exchange: exchange,
		Currency: currency,
		Free:     dec(free),
	})
	sheet.TakenAt = time.Now()
	return sheet
}

func TestEvaluateApprovesProfitableCycle(t *testing.T) {
	engine := NewEngine(defaultConfig(), nil, testLogger())

	plan, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "1000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if plan.StartExchange != "kraken" || plan.StartCurrency != "A" {
		t.Fatalf("start = %s@%s, want A@kraken", plan.StartCurrency, plan.StartExchange)
	}
	if !plan.StartAmount.Equal(dec("250")) {
		t.Fatalf("StartAmount = %s, want 250 (25%% of 1000)", plan.StartAmount)
	}
	if len(plan.Legs) != 3 {
		t.Fatalf("got %d legs, want 3", len(plan.Legs))
	}
	if !plan.ExpectedProfit.IsPositive() {
		t.Fatalf("ExpectedProfit = %s, want positive", plan.ExpectedProfit)
	}
	if plan.ID == "" {
		t.Fatal("plan has no ID")
	}
}

func TestEvaluateChainsLegAmounts(t *testing.T) {
	engine := NewEngine(defaultConfig(), nil, testLogger())

	plan, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "1000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	amount := plan.StartAmount
	for i, leg := range plan.Legs {
		if !leg.InAmount.Equal(amount) {
			t.Fatalf("leg %d InAmount = %s, want %s", i, leg.InAmount, amount)
		}
		if leg.ToExchange != leg.Exchange && leg.Kind == arbdomain.EdgeTrade {
			// Trade edges of this cycle land on the next venue's node, so
			// ToExchange names where the proceeds live.
			if leg.ToExchange == "" {
				t.Fatalf("leg %d has no ToExchange", i)
			}
		}
		amount = leg.ExpectedOut
	}
	if !plan.ExpectedReturn.Equal(amount) {
		t.Fatalf("ExpectedReturn = %s, want final leg out %s", plan.ExpectedReturn, amount)
	}
	if !plan.ExpectedProfit.Equal(amount.Sub(plan.StartAmount)) {
		t.Fatalf("ExpectedProfit = %s, want return minus start", plan.ExpectedProfit)
	}
}

func TestEvaluateRejectsBelowMinProfit(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinProfitFraction = dec("0.05")
	engine := NewEngine(cfg, nil, testLogger())

	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "1000"))
	if err == nil {
		t.Fatal("expected rejection at 5% threshold")
	}
	if code := apperror.GetCode(err); code != apperror.CodeBelowMinProfit {
		t.Fatalf("code = %s, want %s", code, apperror.CodeBelowMinProfit)
	}
}

func TestEvaluateSafetyMarginTightensThreshold(t *testing.T) {
	// The cycle clears 4.2%; a 1% floor plus a 350bps margin pushes the
	// requirement past it.
	cfg := defaultConfig()
	cfg.SafetyMarginBps = dec("350")
	engine := NewEngine(cfg, nil, testLogger())

	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "1000"))
	if code := apperror.GetCode(err); code != apperror.CodeBelowMinProfit {
		t.Fatalf("code = %s, want %s", code, apperror.CodeBelowMinProfit)
	}
}

func TestEvaluateRejectsInfeasibleOrderSizes(t *testing.T) {
	venues := map[string]VenueLimits{
		// The first leg demands at least 1000 A but caps at 500 A.
		"kraken": {MinOrderSize: dec("1000"), MaxOrderSize: dec("500")},
	}
	engine := NewEngine(defaultConfig(), venues, testLogger())

	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "100000"))
	if code := apperror.GetCode(err); code != apperror.CodeOrderSizeOutOfRange {
		t.Fatalf("code = %s, want %s", code, apperror.CodeOrderSizeOutOfRange)
	}
}

func TestEvaluateRejectsInsufficientBalance(t *testing.T) {
	engine := NewEngine(defaultConfig(), nil, testLogger())

	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "0"))
	if code := apperror.GetCode(err); code != apperror.CodeInsufficientBalance {
		t.Fatalf("code = %s, want %s", code, apperror.CodeInsufficientBalance)
	}
}

func TestEvaluateExposureBelowMinOrderIsInsufficient(t *testing.T) {
	venues := map[string]VenueLimits{
		"kraken": {MinOrderSize: dec("100")},
	}
	engine := NewEngine(defaultConfig(), venues, testLogger())

	// 25% of 200 is 50 A, under the 100 A leg minimum.
	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "200"))
	if code := apperror.GetCode(err); code != apperror.CodeInsufficientBalance {
		t.Fatalf("code = %s, want %s", code, apperror.CodeInsufficientBalance)
	}
}

func TestEvaluateCapsStartAtMaxOrderSize(t *testing.T) {
	venues := map[string]VenueLimits{
		"kraken": {MaxOrderSize: dec("100")},
	}
	engine := NewEngine(defaultConfig(), venues, testLogger())

	plan, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "10000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !plan.StartAmount.Equal(dec("100")) {
		t.Fatalf("StartAmount = %s, want capped at 100", plan.StartAmount)
	}
}

func TestEvaluateRejectsWhenSlippageConsumesProfit(t *testing.T) {
	// 150bps assumed slippage on each of three trade legs swallows 4.2%.
	cfg := defaultConfig()
	cfg.MaxSlippageBps = dec("150")
	engine := NewEngine(cfg, nil, testLogger())

	_, err := engine.Evaluate(testCycle(t), sheetWith("kraken", "A", "1000"))
	if code := apperror.GetCode(err); code != apperror.CodeSlippageExceeded {
		t.Fatalf("code = %s, want %s", code, apperror.CodeSlippageExceeded)
	}
}

func TestEvaluateRejectsWithoutBalanceSheet(t *testing.T) {
	engine := NewEngine(defaultConfig(), nil, testLogger())

	_, err := engine.Evaluate(testCycle(t), nil)
	if code := apperror.GetCode(err); code != apperror.CodePlanRejected {
		t.Fatalf("code = %s, want %s", code, apperror.CodePlanRejected)
	}
}

func TestEvaluateAllDebitsCapitalBetweenPlans(t *testing.T) {
	cfg := defaultConfig()
	cfg.ExposureFraction = dec("1")
	engine := NewEngine(cfg, nil, testLogger())

	// Two copies of the same cycle contend for one balance: the first
	// claims the full exposure, the second finds an empty account.
	cycles := []arbdomain.Cycle{testCycle(t), testCycle(t)}
	plans, rejected := engine.EvaluateAll(cycles, sheetWith("kraken", "A", "1000"))

	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	if !plans[0].StartAmount.Equal(dec("1000")) {
		t.Fatalf("StartAmount = %s, want 1000", plans[0].StartAmount)
	}
	if len(rejected) != 1 {
		t.Fatalf("got %d rejections, want 1", len(rejected))
	}
	if code := apperror.GetCode(rejected[0].Err); code != apperror.CodeInsufficientBalance {
		t.Fatalf("rejection code = %s, want %s", code, apperror.CodeInsufficientBalance)
	}
}

func TestEvaluateAllLeavesOriginalSheetUntouched(t *testing.T) {
	cfg := defaultConfig()
	cfg.ExposureFraction = dec("1")
	engine := NewEngine(cfg, nil, testLogger())

	sheet := sheetWith("kraken", "A", "1000")
	engine.EvaluateAll([]arbdomain.Cycle{testCycle(t)}, sheet)

	if !sheet.Free("kraken", "A").Equal(dec("1000")) {
		t.Fatalf("caller's sheet mutated: free = %s", sheet.Free("kraken", "A"))
	}
}
