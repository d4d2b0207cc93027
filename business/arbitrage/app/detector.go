package app

import (
	"log/slog"
	"sort"
	"time"

	"github.com/fdemarco/cyclearb/business/arbitrage/domain"
)

// DetectorConfig tunes cycle acceptance.
type DetectorConfig struct {
	// Epsilon is the minimum weight improvement treated as real. It keeps
	// float noise from fabricating cycles whose product is ~1.0.
	Epsilon float64
}

// Detector finds profitable cycles in a price graph with Bellman-Ford.
// A cycle whose edge weights sum below zero multiplies the balance that
// traverses it, since weights are negative log effective rates.
type Detector struct {
	cfg    DetectorConfig
	logger *slog.Logger
}

func NewDetector(cfg DetectorConfig, logger *slog.Logger) *Detector {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-9
	}
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arbitrage.detector")),
	}
}

// Detect returns all node-disjoint profitable cycles, most profitable
// first. Cycles that survive dedup but share a node with a more
// profitable cycle are dropped: executing both would contend for the
// same balances.
func (d *Detector) Detect(g *domain.Graph, now time.Time) []domain.Cycle {
	n := g.NodeCount()
	if n == 0 {
		return nil
	}

	// Initializing every distance to zero is equivalent to running from a
	// virtual source with zero-weight edges to all nodes, so cycles are
	// found regardless of connectivity.
	dist := make([]float64, n)
	predEdge := make([]int, n)
	for i := range predEdge {
		predEdge[i] = -1
	}

	edges := g.Edges()
	edgeFrom := make([]int, len(edges))
	edgeTo := make([]int, len(edges))
	for i, e := range edges {
		edgeFrom[i], _ = g.NodeIndex(e.From)
		edgeTo[i], _ = g.NodeIndex(e.To)
	}

	for iter := 0; iter < n-1; iter++ {
		improved := false
		for i, e := range edges {
			if dist[edgeFrom[i]]+e.Weight < dist[edgeTo[i]]-d.cfg.Epsilon {
				dist[edgeTo[i]] = dist[edgeFrom[i]] + e.Weight
				predEdge[edgeTo[i]] = i
				improved = true
			}
		}
		if !improved {
			break
		}
	}

	// Every edge that can still relax proves a reachable negative cycle.
	var candidates []domain.Cycle
	seen := make(map[string]struct{})
	for i, e := range edges {
		if dist[edgeFrom[i]]+e.Weight >= dist[edgeTo[i]]-d.cfg.Epsilon {
			continue
		}
		cycle, ok := d.extractCycle(g, predEdge, edgeFrom, edgeTo[i], now)
		if !ok {
			continue
		}
		if cycle.WeightSum >= -d.cfg.Epsilon {
			continue
		}
		key := cycle.CanonicalKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, cycle)
	}

	// Deterministic order: most profitable first, shorter cycles and the
	// smaller canonical key break ties.
	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if diff := ca.WeightSum - cb.WeightSum; diff < -d.cfg.Epsilon || diff > d.cfg.Epsilon {
			return ca.WeightSum < cb.WeightSum
		}
		if ca.Length() != cb.Length() {
			return ca.Length() < cb.Length()
		}
		return ca.CanonicalKey() < cb.CanonicalKey()
	})

	var selected []domain.Cycle
	for _, c := range candidates {
		disjoint := true
		for _, s := range selected {
			if c.SharesNodeWith(s) {
				disjoint = false
				break
			}
		}
		if disjoint {
			selected = append(selected, c)
		}
	}

	if len(selected) > 0 {
		d.logger.Debug("cycles detected",
			slog.Int("candidates", len(candidates)),
			slog.Int("selected", len(selected)))
	}

	return selected
}

// extractCycle walks predecessor edges from a relaxable node. After n
// steps the walk is guaranteed to sit inside the negative cycle; a second
// walk collects the loop.
func (d *Detector) extractCycle(g *domain.Graph, predEdge, edgeFrom []int, start int, now time.Time) (domain.Cycle, bool) {
	n := g.NodeCount()

	node := start
	for i := 0; i < n; i++ {
		ei := predEdge[node]
		if ei < 0 {
			return domain.Cycle{}, false
		}
		node = edgeFrom[ei]
	}

	// node is now on the cycle. Collect edges until it repeats.
	var reversed []domain.Edge
	visited := make(map[int]struct{})
	cur := node
	for {
		if _, ok := visited[cur]; ok {
			break
		}
		visited[cur] = struct{}{}
		ei := predEdge[cur]
		if ei < 0 {
			return domain.Cycle{}, false
		}
		reversed = append(reversed, g.EdgeAt(ei))
		cur = edgeFrom[ei]
	}

	// Trim any lead-in: keep only the loop that closes on cur.
	loopStart := -1
	for i, e := range reversed {
		from, _ := g.NodeIndex(e.From)
		if from == cur {
			loopStart = i
			break
		}
	}
	if loopStart < 0 {
		return domain.Cycle{}, false
	}
	reversed = reversed[:loopStart+1]

	// Predecessor edges run backwards; flip them into execution order.
	ordered := make([]domain.Edge, len(reversed))
	for i, e := range reversed {
		ordered[len(reversed)-1-i] = e
	}

	return domain.NewCycle(ordered, now), true
}
