package transport

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// RetryPolicy bounds the dispatcher's retry behavior. The policy is
// read-only once the dispatcher is constructed; a shared dispatcher carries
// no other mutable state, so concurrent callers need no coordination.
type RetryPolicy struct {
	// MaxAttempts caps total attempts, including the first. 3 means at
	// most 2 retries.
	MaxAttempts int `validate:"min=1,max=10"`

	// BaseDelay seeds the exponential backoff for transient failures.
	BaseDelay time.Duration `validate:"gt=0"`

	// ThrottleBaseDelay seeds the backoff for throttling failures; the
	// provider asked us to slow down, so it is larger than BaseDelay.
	ThrottleBaseDelay time.Duration `validate:"gt=0"`

	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration `validate:"gt=0"`
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, full-jitter
// exponential backoff from 300ms (1s when throttled), capped at 20s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         300 * time.Millisecond,
		ThrottleBaseDelay: time.Second,
		MaxDelay:          20 * time.Second,
	}
}

var validate = validator.New()

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	return nil
}

// backoff returns the sleep before the given retry (attempt is 1-based,
// counting the attempt that just failed). Full jitter: a uniformly random
// duration up to the capped exponential bound, which spreads synchronized
// clients apart.
func (p RetryPolicy) backoff(attempt int, class apierrors.Class) time.Duration {
	base := p.BaseDelay
	if class == apierrors.ClassThrottling {
		base = p.ThrottleBaseDelay
	}

	bound := base << (attempt - 1)
	if bound > p.MaxDelay || bound <= 0 {
		bound = p.MaxDelay
	}
	return rand.N(bound)
}
