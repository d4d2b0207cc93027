// Package domain contains plan and rejection types for the risk context.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
)

// RejectionReason names the first risk check a cycle failed.
type RejectionReason string

const (
	ReasonBelowMinProfit       RejectionReason = "below_min_profit"
	ReasonOrderSizeOutOfRange  RejectionReason = "order_size_out_of_range"
	ReasonInsufficientBalance  RejectionReason = "insufficient_balance"
	ReasonSlippageUnprofitable RejectionReason = "slippage_unprofitable"
	ReasonNoBalanceSheet       RejectionReason = "no_balance_sheet"
)

// PlannedLeg is one sized order derived from a cycle edge.
type PlannedLeg struct {
	Exchange string
	// ToExchange is the receiving venue for transfer legs; equals
	// Exchange for trade legs.
	ToExchange  string
	Pair        string
	Side        arbdomain.Side
	Kind        arbdomain.EdgeKind
	InCurrency  string
	OutCurrency string
	// InAmount is spent in InCurrency; ExpectedOut is the post-fee
	// proceeds in OutCurrency at the quoted rate.
	InAmount    decimal.Decimal
	ExpectedOut decimal.Decimal
	// LimitPrice is the quoted rate the sizing assumed, expressed as
	// OutCurrency per unit of InCurrency: the bid for sells and 1/ask
	// for buys, matching the Amount being denominated in InCurrency
	// throughout execution. Zero for transfers.
	LimitPrice decimal.Decimal
}

// ExecutionPlan is a fully sized, risk-approved cycle ready for the
// coordinator.
type ExecutionPlan struct {
	ID             string
	Cycle          arbdomain.Cycle
	Legs           []PlannedLeg
	StartExchange  string
	StartCurrency  string
	StartAmount    decimal.Decimal
	ExpectedReturn decimal.Decimal // ExpectedOut of the final leg
	ExpectedProfit decimal.Decimal // ExpectedReturn - StartAmount
	CreatedAt      time.Time
}

// NewPlanID returns a fresh plan identifier.
func NewPlanID() string {
	return uuid.NewString()
}
