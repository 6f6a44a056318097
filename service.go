package segmentz

import (
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// ServiceNameResolver supplies the default namespace.
type ServiceNameResolver interface {
	ServiceName() string
}

// ServiceNameFunc adapts a function to ServiceNameResolver.
type ServiceNameFunc func() string

// ServiceName calls f.
func (f ServiceNameFunc) ServiceName() string {
	return f()
}

// StaticServiceName always resolves to itself.
type StaticServiceName string

// ServiceName returns s.
func (s StaticServiceName) ServiceName() string {
	return string(s)
}

// EnvServiceName reads POWERTOOLS_SERVICE_NAME once, on first use,
// falling back to DefaultServiceName. Use it through a pointer.
type EnvServiceName struct {
	once sync.Once
	name string
}

// NewEnvServiceName returns a resolver for POWERTOOLS_SERVICE_NAME.
func NewEnvServiceName() *EnvServiceName {
	return &EnvServiceName{}
}

// ServiceName returns the configured service name.
func (e *EnvServiceName) ServiceName() string {
	e.once.Do(func() {
		var cfg ServiceConfig
		if err := envconfig.Process("", &cfg); err == nil {
			e.name = cfg.Name
		}
		if e.name == "" {
			e.name = DefaultServiceName
		}
	})
	return e.name
}
