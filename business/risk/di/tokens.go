// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/fdemarco/cyclearb/business/risk/app"
	"github.com/fdemarco/cyclearb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine = di.NewToken[*app.Engine]("risk.Engine")
)

// Helper functions for type-safe access
func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}
