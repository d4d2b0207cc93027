package app

import (
	"context"

	"github.com/fdemarco/cyclearb/business/arbitrage/domain"
	mddomain "github.com/fdemarco/cyclearb/business/marketdata/domain"
)

// SnapshotSource provides one synchronized market view per call.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*mddomain.Snapshot, error)
}

// CycleSink receives detected cycles, most profitable first. The pipeline
// does not wait for execution outcomes; a sink that trades does so on its
// own schedule.
type CycleSink interface {
	HandleCycles(ctx context.Context, cycles []domain.Cycle) error
}
