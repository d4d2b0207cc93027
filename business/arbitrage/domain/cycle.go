package domain

import (
	"math"
	"strings"
	"time"
)

// Cycle is a closed sequence of edges whose weights sum below zero, i.e.
// following it multiplies the starting balance by ProfitFactor > 1 before
// execution costs beyond the already-priced fees.
type Cycle struct {
	Nodes      []Node // Nodes[0] == Nodes[len-1]
	Edges      []Edge
	WeightSum  float64
	DetectedAt time.Time
}

// NewCycle builds a cycle from its edges and stamps the detection time.
func NewCycle(edges []Edge, at time.Time) Cycle {
	nodes := make([]Node, 0, len(edges)+1)
	sum := 0.0
	for i, e := range edges {
		if i == 0 {
			nodes = append(nodes, e.From)
		}
		nodes = append(nodes, e.To)
		sum += e.Weight
	}
	return Cycle{
		Nodes:      nodes,
		Edges:      edges,
		WeightSum:  sum,
		DetectedAt: at,
	}
}

// Length returns the number of legs.
func (c Cycle) Length() int {
	return len(c.Edges)
}

// ProfitFactor returns exp(-WeightSum), the multiplicative return on a
// unit of the starting currency.
func (c Cycle) ProfitFactor() float64 {
	return math.Exp(-c.WeightSum)
}

// ProfitFraction returns ProfitFactor - 1.
func (c Cycle) ProfitFraction() float64 {
	return c.ProfitFactor() - 1
}

// StartNode returns the first node of the cycle.
func (c Cycle) StartNode() Node {
	if len(c.Nodes) == 0 {
		return ""
	}
	return c.Nodes[0]
}

// CanonicalKey returns a rotation-invariant identity: the node sequence
// rotated so the lexicographically smallest node comes first. The same
// loop discovered from different entry points maps to one key.
func (c Cycle) CanonicalKey() string {
	if len(c.Nodes) < 2 {
		return ""
	}
	ring := c.Nodes[:len(c.Nodes)-1]
	n := len(ring)

	minIdx := 0
	for i := 1; i < n; i++ {
		if ring[i] < ring[minIdx] {
			minIdx = i
		}
	}

	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString("->")
		}
		sb.WriteString(string(ring[(minIdx+i)%n]))
	}
	return sb.String()
}

// SharesNodeWith reports whether the two cycles touch any common node.
func (c Cycle) SharesNodeWith(other Cycle) bool {
	seen := make(map[Node]struct{}, len(c.Nodes))
	for _, n := range c.Nodes[:len(c.Nodes)-1] {
		seen[n] = struct{}{}
	}
	for _, n := range other.Nodes[:len(other.Nodes)-1] {
		if _, ok := seen[n]; ok {
			return true
		}
	}
	return false
}

// String renders the cycle path.
func (c Cycle) String() string {
	parts := make([]string, len(c.Nodes))
	for i, n := range c.Nodes {
		parts[i] = string(n)
	}
	return strings.Join(parts, " -> ")
}
