// Package di contains dependency injection tokens for the arbitrage context.
package di

import (
	"github.com/fdemarco/cyclearb/business/arbitrage/app"
	"github.com/fdemarco/cyclearb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Pipeline = di.NewToken[*app.Pipeline]("arbitrage.Pipeline")
)

// Private dependency tokens - internal to arbitrage module
var (
	Builder  = di.NewToken[*app.Builder]("arbitrage:builder")
	Detector = di.NewToken[*app.Detector]("arbitrage:detector")
)

// Helper functions for type-safe access
func GetPipeline(c di.ServiceRegistry) *app.Pipeline {
	return di.GetToken(c, Pipeline)
}

func GetBuilder(c di.ServiceRegistry) *app.Builder {
	return di.GetToken(c, Builder)
}

func GetDetector(c di.ServiceRegistry) *app.Detector {
	return di.GetToken(c, Detector)
}
