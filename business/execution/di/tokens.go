// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fdemarco/cyclearb/business/execution/app"
	"github.com/fdemarco/cyclearb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Trader = di.NewToken[*app.Trader]("execution.Trader")
)

// Private dependency tokens - internal to execution module
var (
	Coordinator = di.NewToken[*app.Coordinator]("execution:coordinator")
	Gateways    = di.NewToken[[]app.OrderGateway]("execution:gateways")
	Sink        = di.NewToken[app.OutcomeSink]("execution:sink")
)

// Helper functions for type-safe access
func GetTrader(c di.ServiceRegistry) *app.Trader {
	return di.GetToken(c, Trader)
}

func GetCoordinator(c di.ServiceRegistry) *app.Coordinator {
	return di.GetToken(c, Coordinator)
}

func GetGateways(c di.ServiceRegistry) []app.OrderGateway {
	return di.GetToken(c, Gateways)
}

func GetSink(c di.ServiceRegistry) app.OutcomeSink {
	return di.GetToken(c, Sink)
}
