// Package domain contains the price graph and cycle types for the
// arbitrage context.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Node identifies a currency on a specific venue, e.g. "BTC@kraken".
// Scoping nodes by venue lets one graph express both in-venue trades and
// cross-venue transfers.
type Node string

// NewNode builds a node from currency and exchange.
func NewNode(currency, exchange string) Node {
	return Node(currency + "@" + exchange)
}

// EdgeKind distinguishes trades from cross-venue transfers.
type EdgeKind string

const (
	EdgeTrade    EdgeKind = "trade"
	EdgeTransfer EdgeKind = "transfer"
)

// Side is the order side a trade edge maps to during execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Edge is one directed conversion. Weight is -ln(rate * (1 - fee)): a
// negative-weight-sum cycle multiplies balances by more than 1.
type Edge struct {
	From     Node
	To       Node
	Kind     EdgeKind
	Exchange string
	Pair     string // trading pair symbol for trade edges, empty for transfers
	Side     Side   // order side for trade edges
	Rate     decimal.Decimal
	Fee      decimal.Decimal // fraction, e.g. 0.001
	Weight   float64
	Quoted   time.Time
}

// EffectiveRate returns rate * (1 - fee): the units of To received per
// unit of From after fees.
func (e Edge) EffectiveRate() decimal.Decimal {
	return e.Rate.Mul(decimal.NewFromInt(1).Sub(e.Fee))
}

// Graph is a directed multigraph-free price graph. Adding an edge that
// already exists replaces it.
type Graph struct {
	nodes     []Node
	nodeIndex map[Node]int
	adj       [][]int
	edges     []Edge
	edgeIndex map[string]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodeIndex: make(map[Node]int),
		edgeIndex: make(map[string]int),
	}
}

// AddNode inserts node if absent and returns its index.
func (g *Graph) AddNode(node Node) int {
	if idx, ok := g.nodeIndex[node]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.nodeIndex[node] = idx
	g.adj = append(g.adj, nil)
	return idx
}

// AddEdge inserts or replaces the directed edge and computes its weight.
// Edges with a non-positive effective rate are rejected: their weight
// would be undefined.
func (g *Graph) AddEdge(edge Edge) error {
	eff := edge.EffectiveRate()
	if !eff.IsPositive() {
		return fmt.Errorf("edge %s -> %s has non-positive effective rate %s", edge.From, edge.To, eff)
	}
	rate, _ := eff.Float64()
	edge.Weight = -math.Log(rate)

	fromIdx := g.AddNode(edge.From)
	g.AddNode(edge.To)

	key := string(edge.From) + ":" + string(edge.To)
	if idx, ok := g.edgeIndex[key]; ok {
		g.edges[idx] = edge
		return nil
	}

	idx := len(g.edges)
	g.edges = append(g.edges, edge)
	g.edgeIndex[key] = idx
	g.adj[fromIdx] = append(g.adj[fromIdx], idx)
	return nil
}

// Edge returns the edge from -> to, if present.
func (g *Graph) Edge(from, to Node) (Edge, bool) {
	idx, ok := g.edgeIndex[string(from)+":"+string(to)]
	if !ok {
		return Edge{}, false
	}
	return g.edges[idx], true
}

// Nodes returns all nodes.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Edges returns all edges.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Index-based accessors for the detector, which works on node indices.

func (g *Graph) NodeAt(idx int) Node {
	return g.nodes[idx]
}

func (g *Graph) EdgeAt(idx int) Edge {
	return g.edges[idx]
}

func (g *Graph) NodeIndex(node Node) (int, bool) {
	idx, ok := g.nodeIndex[node]
	return idx, ok
}

func (g *Graph) Outgoing(nodeIdx int) []int {
	return g.adj[nodeIdx]
}
