// Package app contains the execution coordinator and its ports.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
	"github.com/fdemarco/cyclearb/business/execution/domain"
	riskdomain "github.com/fdemarco/cyclearb/business/risk/domain"
)

// OrderRequest is one order submission. ClientOrderID is the idempotency
// key: venues must treat a resubmission with the same ID as a no-op.
// Amount is denominated in the leg's input currency and LimitPrice is the
// output-per-input rate the plan was sized at, not the pair's native quote
// convention; gateways translate where their venue requires base-quantity
// orders.
type OrderRequest struct {
	ClientOrderID string
	Pair          string
	Side          arbdomain.Side
	Amount        decimal.Decimal
	LimitPrice    decimal.Decimal
}

// OrderStatus is a venue's view of an order.
type OrderStatus struct {
	ClientOrderID string
	State         domain.LegState
	FilledAmount  decimal.Decimal
	AvgFillPrice  decimal.Decimal
}

// OrderGateway submits and tracks orders on one venue.
type OrderGateway interface {
	Name() string

	// PlaceOrder submits the order. Implementations must be idempotent on
	// ClientOrderID.
	PlaceOrder(ctx context.Context, req OrderRequest) error

	// GetOrderStatus looks an order up by its client order ID. Returns a
	// CodeOrderStatusFailed error if the venue has no such order.
	GetOrderStatus(ctx context.Context, clientOrderID string) (*OrderStatus, error)
}

// TransferGateway moves funds between venues. Optional: a gateway that
// does not implement it cannot serve cycles with transfer legs.
type TransferGateway interface {
	Transfer(ctx context.Context, currency string, amount decimal.Decimal, toExchange string) error
}

// OutcomeSink receives execution results and risk rejections.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, plan *riskdomain.ExecutionPlan, outcome *domain.Outcome)
	RecordRejection(ctx context.Context, cycle arbdomain.Cycle, err error)
}
