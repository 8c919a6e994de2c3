// Package config loads and validates client settings from a YAML file,
// merging the file over built-in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nimbusctl/nimbus/pkg/telemetry"
	"github.com/nimbusctl/nimbus/pkg/transport"
)

// Settings is the client configuration surface. Every field has a working
// default; a settings file only needs to name what it changes.
type Settings struct {
	// Region is the default region for requests that do not name one.
	Region string `yaml:"region" validate:"required"`

	// Profile selects a shared-credentials-file profile.
	Profile string `yaml:"profile"`

	// Endpoint routes every request to a fixed base URL, for emulators.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	// RateLimit caps client-side requests per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`

	// Retry configures the dispatcher retry policy.
	Retry RetrySettings `yaml:"retry"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// RetrySettings mirrors transport.RetryPolicy in file form.
type RetrySettings struct {
	MaxAttempts       int      `yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelay         Duration `yaml:"base_delay" validate:"gt=0"`
	ThrottleBaseDelay Duration `yaml:"throttle_base_delay" validate:"gt=0"`
	MaxDelay          Duration `yaml:"max_delay" validate:"gt=0"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "200ms" or "30s" as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

var validate = validator.New()

// DefaultSettings returns the built-in configuration: us-east-1, the
// standard retry policy, telemetry defaults, no rate limit.
func DefaultSettings() *Settings {
	policy := transport.DefaultRetryPolicy()
	return &Settings{
		Region: "us-east-1",
		Retry: RetrySettings{
			MaxAttempts:       policy.MaxAttempts,
			BaseDelay:         Duration(policy.BaseDelay),
			ThrottleBaseDelay: Duration(policy.ThrottleBaseDelay),
			MaxDelay:          Duration(policy.MaxDelay),
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads a settings file and merges it over the defaults. A missing
// path ("") returns the defaults unchanged.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		if err := settings.Validate(); err != nil {
			return nil, err
		}
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return settings, nil
}

// Validate checks field constraints and the embedded telemetry config.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.Telemetry != nil {
		if err := s.Telemetry.Validate(); err != nil {
			return fmt.Errorf("invalid telemetry settings: %w", err)
		}
	}
	return nil
}

// RetryPolicy converts the file form into the transport policy.
func (s *Settings) RetryPolicy() transport.RetryPolicy {
	return transport.RetryPolicy{
		MaxAttempts:       s.Retry.MaxAttempts,
		BaseDelay:         s.Retry.BaseDelay.Std(),
		ThrottleBaseDelay: s.Retry.ThrottleBaseDelay.Std(),
		MaxDelay:          s.Retry.MaxDelay.Std(),
	}
}
