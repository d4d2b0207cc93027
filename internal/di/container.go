// Package di provides a minimal service container used to wire modules together.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under name, instantiating it on
	// first access when it was registered as a factory. Panics if the name
	// is unknown; wiring errors are programming errors, not runtime ones.
	Get(name string) any
}

// Container is the write side of the container.
type Container interface {
	ServiceRegistry

	// Register stores a ready-made service instance.
	Register(name string, svc any)

	// RegisterFactory stores a lazy constructor. The factory runs at most
	// once; its result is cached.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type container struct {
	mu        sync.Mutex
	services  map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services:  make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(name string, svc any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = svc
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

func (c *container) Get(name string) any {
	c.mu.Lock()
	if svc, ok := c.services[name]; ok {
		c.mu.Unlock()
		return svc
	}
	factory, ok := c.factories[name]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("di: service %q is not registered", name))
	}
	// Release the lock while the factory runs so factories can resolve
	// their own dependencies through Get.
	c.mu.Unlock()

	svc := factory(c)

	c.mu.Lock()
	c.services[name] = svc
	c.mu.Unlock()
	return svc
}
