package app

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/arbitrage/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func addEdge(t *testing.T, g *domain.Graph, from, to domain.Node, rate, fee string) {
	t.Helper()
	err := g.AddEdge(domain.Edge{
		From: from,
		To:   to,
		Kind: domain.EdgeTrade,
		Rate: decimal.RequireFromString(rate),
		Fee:  decimal.RequireFromString(fee),
	})
	if err != nil {
		t.Fatalf("AddEdge %s -> %s: %v", from, to, err)
	}
}

// Three venues quoting A->B at 0.5, B->C at 3.0 and C->A at 0.7. The raw
// product is 1.05; fees of 10bps, 10bps and 50bps leave roughly 4.3%.
func referenceGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	addEdge(t, g, "A@kraken", "B@okx", "0.5", "0.001")
	addEdge(t, g, "B@okx", "C@coinbase", "3.0", "0.001")
	addEdge(t, g, "C@coinbase", "A@kraken", "0.7", "0.005")
	return g
}

func TestDetectFindsProfitableCycle(t *testing.T) {
	d := NewDetector(DetectorConfig{}, testLogger())

	cycles := d.Detect(referenceGraph(t), time.Now())
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}

	c := cycles[0]
	if c.Length() != 3 {
		t.Fatalf("Length = %d, want 3", c.Length())
	}
	want := 1.05 * 0.999 * 0.999 * 0.995
	if math.Abs(c.ProfitFactor()-want) > 1e-6 {
		t.Fatalf("ProfitFactor = %v, want %v", c.ProfitFactor(), want)
	}
	if c.WeightSum >= 0 {
		t.Fatalf("WeightSum = %v, want negative", c.WeightSum)
	}
}

func TestDetectReturnsEdgesInExecutionOrder(t *testing.T) {
	d := NewDetector(DetectorConfig{}, testLogger())

	cycles := d.Detect(referenceGraph(t), time.Now())
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}

	c := cycles[0]
	for i, e := range c.Edges {
		if e.From != c.Nodes[i] || e.To != c.Nodes[i+1] {
			t.Fatalf("edge %d is %s -> %s, nodes say %s -> %s", i, e.From, e.To, c.Nodes[i], c.Nodes[i+1])
		}
	}
	if c.Nodes[0] != c.Nodes[len(c.Nodes)-1] {
		t.Fatalf("cycle does not close: %s vs %s", c.Nodes[0], c.Nodes[len(c.Nodes)-1])
	}
}

func TestDetectNoCycleInFairMarket(t *testing.T) {
	g := domain.NewGraph()
	// Product 0.5 * 3.0 * 0.6 = 0.9, no round trip gains.
	addEdge(t, g, "A@x", "B@x", "0.5", "0")
	addEdge(t, g, "B@x", "C@x", "3.0", "0")
	addEdge(t, g, "C@x", "A@x", "0.6", "0")

	d := NewDetector(DetectorConfig{}, testLogger())
	if cycles := d.Detect(g, time.Now()); len(cycles) != 0 {
		t.Fatalf("got %d cycles in a fair market, want 0", len(cycles))
	}
}

func TestDetectFeesEraseMarginalCycle(t *testing.T) {
	d := NewDetector(DetectorConfig{}, testLogger())

	// Product 1.002 is profitable without fees.
	free := domain.NewGraph()
	addEdge(t, free, "A@x", "B@x", "1.001", "0")
	addEdge(t, free, "B@x", "A@x", "1.001", "0")
	if cycles := d.Detect(free, time.Now()); len(cycles) != 1 {
		t.Fatalf("fee-free graph: got %d cycles, want 1", len(cycles))
	}

	// The same quotes with 20bps per leg net below 1.0.
	priced := domain.NewGraph()
	addEdge(t, priced, "A@x", "B@x", "1.001", "0.002")
	addEdge(t, priced, "B@x", "A@x", "1.001", "0.002")
	if cycles := d.Detect(priced, time.Now()); len(cycles) != 0 {
		t.Fatalf("priced graph: got %d cycles, want 0", len(cycles))
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	d := NewDetector(DetectorConfig{}, testLogger())
	g := referenceGraph(t)
	now := time.Now()

	first := d.Detect(g, now)
	second := d.Detect(g, now)

	if len(first) != len(second) {
		t.Fatalf("runs disagree: %d vs %d cycles", len(first), len(second))
	}
	for i := range first {
		if first[i].CanonicalKey() != second[i].CanonicalKey() {
			t.Fatalf("cycle %d differs: %q vs %q", i, first[i].CanonicalKey(), second[i].CanonicalKey())
		}
	}
}

func TestDetectSelectsDisjointCyclesMostProfitableFirst(t *testing.T) {
	g := domain.NewGraph()
	// Two-leg cycle through B@x returning 2%.
	addEdge(t, g, "A@x", "B@x", "1.02", "0")
	addEdge(t, g, "B@x", "A@x", "1.0", "0")
	// A second cycle through B@x returning 5% shares the node, so only
	// one of the two can execute.
	addEdge(t, g, "B@x", "C@x", "1.05", "0")
	addEdge(t, g, "C@x", "B@x", "1.0", "0")
	// An independent cycle on another venue survives selection.
	addEdge(t, g, "D@y", "E@y", "1.01", "0")
	addEdge(t, g, "E@y", "D@y", "1.0", "0")

	d := NewDetector(DetectorConfig{}, testLogger())
	cycles := d.Detect(g, time.Now())

	if len(cycles) < 1 {
		t.Fatal("no cycles detected")
	}
	for i := 1; i < len(cycles); i++ {
		if cycles[i].WeightSum < cycles[i-1].WeightSum {
			t.Fatalf("cycles out of order: %v before %v", cycles[i-1].WeightSum, cycles[i].WeightSum)
		}
	}
	for i := 0; i < len(cycles); i++ {
		for j := i + 1; j < len(cycles); j++ {
			if cycles[i].SharesNodeWith(cycles[j]) {
				t.Fatalf("selected cycles %d and %d share a node", i, j)
			}
		}
	}
	// The most profitable candidate through B@x must win the contention.
	if math.Abs(cycles[0].ProfitFactor()-1.05) > 1e-9 {
		t.Fatalf("best cycle ProfitFactor = %v, want 1.05", cycles[0].ProfitFactor())
	}
}

func TestDetectEmptyGraph(t *testing.T) {
	d := NewDetector(DetectorConfig{}, testLogger())
	if cycles := d.Detect(domain.NewGraph(), time.Now()); len(cycles) != 0 {
		t.Fatalf("got %d cycles from empty graph", len(cycles))
	}
}
