package segmentz

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// DefaultServiceName is used when no service name is configured.
const DefaultServiceName = "service_undefined"

// Config holds all segmentz configuration.
type Config struct {
	Service   ServiceConfig
	Logging   LogConfig
	Collector CollectorConfig
}

// ServiceConfig holds service identity and tracing switches.
type ServiceConfig struct {
	Name           string `envconfig:"POWERTOOLS_SERVICE_NAME" default:"service_undefined"`
	TracingDisable bool   `envconfig:"POWERTOOLS_TRACE_DISABLED" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"SEGMENTZ_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"SEGMENTZ_LOG_DEV" default:"false"`
}

// CollectorConfig sizes the default tracer's collector and async handler pool.
// AsyncWorkers of zero runs async handlers on their own goroutines.
type CollectorConfig struct {
	BufferSize   int `envconfig:"SEGMENTZ_COLLECTOR_BUFFER" default:"1000"`
	AsyncWorkers int `envconfig:"SEGMENTZ_ASYNC_WORKERS" default:"0"`
	AsyncQueue   int `envconfig:"SEGMENTZ_ASYNC_QUEUE" default:"1000"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadConfigOrDefault loads configuration from environment or returns default.
func LoadConfigOrDefault() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: DefaultServiceName,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Collector: CollectorConfig{
			BufferSize: 1000,
			AsyncQueue: 1000,
		},
	}
}
