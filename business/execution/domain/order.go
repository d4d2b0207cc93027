// Package domain contains the order and plan state machines for the
// execution context.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	arbdomain "github.com/fdemarco/cyclearb/business/arbitrage/domain"
)

// LegState is the lifecycle of one submitted leg.
type LegState string

const (
	LegPending         LegState = "pending"
	LegSubmitted       LegState = "submitted"
	LegFilled          LegState = "filled"
	LegPartiallyFilled LegState = "partially_filled"
	LegRejected        LegState = "rejected"
	LegTimedOut        LegState = "timed_out"
)

// Terminal reports whether the leg has reached a final state.
func (s LegState) Terminal() bool {
	switch s {
	case LegFilled, LegPartiallyFilled, LegRejected, LegTimedOut:
		return true
	}
	return false
}

// Succeeded reports whether the leg produced its full expected output.
func (s LegState) Succeeded() bool {
	return s == LegFilled
}

var legTransitions = map[LegState][]LegState{
	LegPending:   {LegSubmitted, LegRejected},
	LegSubmitted: {LegFilled, LegPartiallyFilled, LegRejected, LegTimedOut},
}

// CanTransition reports whether from -> to is a legal leg transition.
func (s LegState) CanTransition(to LegState) bool {
	for _, next := range legTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PlanState is the lifecycle of a whole execution plan.
type PlanState string

const (
	PlanPlanned            PlanState = "planned"
	PlanExecuting          PlanState = "executing"
	PlanCompleted          PlanState = "completed"
	PlanPartiallyCompleted PlanState = "partially_completed"
	PlanAborted            PlanState = "aborted"
)

// Terminal reports whether the plan has reached a final state.
func (s PlanState) Terminal() bool {
	switch s {
	case PlanCompleted, PlanPartiallyCompleted, PlanAborted:
		return true
	}
	return false
}

var planTransitions = map[PlanState][]PlanState{
	PlanPlanned:   {PlanExecuting, PlanAborted},
	PlanExecuting: {PlanCompleted, PlanPartiallyCompleted, PlanAborted},
}

// CanTransition reports whether from -> to is a legal plan transition.
func (s PlanState) CanTransition(to PlanState) bool {
	for _, next := range planTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is one exchange order tracked through its life.
type Order struct {
	ClientOrderID string
	Exchange      string
	Pair          string
	Side          arbdomain.Side
	Amount        decimal.Decimal
	LimitPrice    decimal.Decimal
	State         LegState
	FilledAmount  decimal.Decimal
	AvgFillPrice  decimal.Decimal
	SubmittedAt   time.Time
	CompletedAt   time.Time
}

// NewClientOrderID returns a fresh idempotency key for order submission.
// Resubmitting with the same key must not create a second order on a
// conforming venue.
func NewClientOrderID() string {
	return uuid.NewString()
}

// LegResult records the terminal state of one leg attempt.
type LegResult struct {
	Index int
	Order Order
	Err   error
}

// ResidualExposure describes funds stranded mid-cycle when a later leg
// fails: the plan holds Amount of Currency on Exchange instead of the
// start currency. Unwinding is a human decision, never automatic.
type ResidualExposure struct {
	Exchange string
	Currency string
	Amount   decimal.Decimal
}

// Outcome is the full record of one plan execution.
type Outcome struct {
	PlanID     string
	State      PlanState
	Legs       []LegResult
	Residual   *ResidualExposure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns wall time from start to finish.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
