package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config controls reliability test intensity.
//
//	SEGMENTZ_RELIABILITY_LEVEL           "", "basic" or "stress"
//	SEGMENTZ_RELIABILITY_DURATION        stress test duration
//	SEGMENTZ_RELIABILITY_MAX_GOROUTINES  concurrent goroutines
type Config struct {
	Level         string        `envconfig:"LEVEL"`
	Duration      time.Duration `envconfig:"DURATION" default:"10s"`
	MaxGoroutines int           `envconfig:"MAX_GOROUTINES" default:"100"`
}

// loadConfig reads Config from the environment and skips the test when
// reliability testing is not enabled.
func loadConfig(t *testing.T) Config {
	t.Helper()

	var cfg Config
	if err := envconfig.Process("segmentz_reliability", &cfg); err != nil {
		t.Fatalf("invalid reliability config: %v", err)
	}
	if cfg.Level == "" {
		t.Skip("SEGMENTZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
	return cfg
}

// stress reports whether the stress level is selected.
func (c Config) stress() bool {
	return c.Level == "stress"
}
