// Package paper provides a simulated order gateway for dry runs and tests.
package paper

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fdemarco/cyclearb/business/execution/app"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	"github.com/fdemarco/cyclearb/internal/apperror"
)

// Gateway fills every order instantly at its limit price. Behavior can be
// bent per pair to exercise failure paths: rejected pairs bounce, held
// pairs never leave the submitted state.
type Gateway struct {
	name string

	mu          sync.Mutex
	orders      map[string]app.OrderStatus
	rejectPairs map[string]bool
	holdPairs   map[string]bool
	fillPrices  map[string]decimal.Decimal
	submitErr   error
}

func NewGateway(name string) *Gateway {
	return &Gateway{
		name:        name,
		orders:      make(map[string]app.OrderStatus),
		rejectPairs: make(map[string]bool),
		holdPairs:   make(map[string]bool),
		fillPrices:  make(map[string]decimal.Decimal),
	}
}

// Name returns the venue identifier.
func (g *Gateway) Name() string {
	return g.name
}

// RejectPair makes future orders for pair come back rejected.
func (g *Gateway) RejectPair(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectPairs[pair] = true
}

// HoldPair makes future orders for pair hang in the submitted state.
func (g *Gateway) HoldPair(pair string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.holdPairs[pair] = true
}

// FillPairAt makes future orders for pair fill at price instead of their
// limit price, imitating slippage.
func (g *Gateway) FillPairAt(pair string, price decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillPrices[pair] = price
}

// FailSubmissions makes PlaceOrder return err while still registering the
// order, imitating a response lost on the wire.
func (g *Gateway) FailSubmissions(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr = err
}

// PlaceOrder registers the order and settles it according to the
// configured behavior. Resubmission with a known client order ID is a
// no-op, as the idempotency contract requires.
func (g *Gateway) PlaceOrder(_ context.Context, req app.OrderRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.orders[req.ClientOrderID]; exists {
		return nil
	}

	status := app.OrderStatus{ClientOrderID: req.ClientOrderID}
	switch {
	case g.rejectPairs[req.Pair]:
		status.State = domain.LegRejected
		status.FilledAmount = decimal.Zero
	case g.holdPairs[req.Pair]:
		status.State = domain.LegSubmitted
	default:
		status.State = domain.LegFilled
		status.FilledAmount = req.Amount
		status.AvgFillPrice = req.LimitPrice
		if price, ok := g.fillPrices[req.Pair]; ok {
			status.AvgFillPrice = price
		}
	}
	g.orders[req.ClientOrderID] = status

	return g.submitErr
}

// GetOrderStatus looks up a registered order.
func (g *Gateway) GetOrderStatus(_ context.Context, clientOrderID string) (*app.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.orders[clientOrderID]
	if !ok {
		return nil, apperror.New(apperror.CodeOrderStatusFailed,
			apperror.WithContext("unknown order "+clientOrderID+" on "+g.name))
	}
	return &status, nil
}

// Transfer always succeeds.
func (g *Gateway) Transfer(context.Context, string, decimal.Decimal, string) error {
	return nil
}

// OrderCount returns the number of registered orders.
func (g *Gateway) OrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}
