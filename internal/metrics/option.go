package metrics

type ProviderKind string

const (
	PrometheusProvider ProviderKind = "prometheus"
	OtelCollector      ProviderKind = "otelCollector"
)

type Config struct {
	ServiceName string
	Providers   []ProviderCfg
}

type ProviderCfg struct {
	Kind     ProviderKind
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// NewPrometheusConfig returns a pull-based Prometheus provider.
func NewPrometheusConfig() ProviderCfg {
	return ProviderCfg{Kind: PrometheusProvider}
}

// NewOtelCollectorConfig returns a push-based OTLP gRPC provider.
func NewOtelCollectorConfig(endpoint string, headers map[string]string, insecure bool) ProviderCfg {
	return ProviderCfg{
		Kind:     OtelCollector,
		Endpoint: endpoint,
		Headers:  headers,
		Insecure: insecure,
	}
}

type OptionFn func(config Config) Config

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Providers = append(config.Providers, provider)

		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName

		return config
	}
}

type PromServerConfig struct {
	port string
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

func WithPort(port string) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.port = port
		return config
	}
}
