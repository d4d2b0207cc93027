package di

// Token is a typed handle for a service name. The type parameter is carried
// purely for compile-time safety in RegisterToken/GetToken.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token for the given service name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the underlying service name.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a typed factory under the token's name.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service from the registry.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	return sr.Get(token.name).(T)
}
