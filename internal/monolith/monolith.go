// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"log/slog"
	"time"

	"github.com/fdemarco/cyclearb/internal/config"
	"github.com/fdemarco/cyclearb/internal/di"
	"github.com/fdemarco/cyclearb/internal/ratelimit"
)

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() *slog.Logger
	Limiters() *ratelimit.Registry
	Services() di.ServiceRegistry
}

// Module represents a bounded context module that can register services and start up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements the Monolith interface.
type app struct {
	config    *config.Config
	logger    *slog.Logger
	limiters  *ratelimit.Registry
	container di.Container
}

// New creates a new Monolith instance. One rate limiter is registered per
// configured exchange so every module shares the same request budget.
func New(cfg *config.Config, log *slog.Logger) (*app, error) {
	maxDelay := time.Duration(0)
	for _, ex := range cfg.Exchanges {
		if ex.MaxLimiterDelay > maxDelay {
			maxDelay = ex.MaxLimiterDelay
		}
	}

	limiters := ratelimit.NewRegistry(maxDelay)
	for name, ex := range cfg.Exchanges {
		limiters.Add(name, ex.RequestsPerSec)
	}

	container := di.NewContainer()

	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("limiters", limiters)

	return &app{
		config:    cfg,
		logger:    log,
		limiters:  limiters,
		container: container,
	}, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() *slog.Logger {
	return a.logger
}

func (a *app) Limiters() *ratelimit.Registry {
	return a.limiters
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all resources.
func (a *app) Close() error {
	return nil
}
