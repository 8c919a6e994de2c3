package client

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
	"github.com/nimbusctl/nimbus/pkg/telemetry"
)

// StatusFunc fetches the current status of an asynchronous operation. An
// empty status means the resource reported nothing usable yet, which the
// waiter treats as still pending.
type StatusFunc func(ctx context.Context) (string, error)

// WaiterSpec configures one polling loop.
type WaiterSpec struct {
	// Name labels the waiter in logs and metrics.
	Name string

	// Interval is the pause between polls.
	Interval time.Duration `validate:"gt=0"`

	// MaxWait bounds the whole wait, measured from the first poll.
	MaxWait time.Duration `validate:"gt=0"`

	// Success is the terminal state that completes the wait.
	Success string `validate:"required"`

	// Failure states abort the wait immediately.
	Failure []string
}

// WaitFor polls fn until it reports the success state, a failure state, an
// operation error, or the deadline. Unknown states count as pending; a
// failure state aborts without waiting for the deadline; cancellation
// interrupts the inter-poll sleep promptly. Retries of the underlying call
// remain the dispatcher's job, the waiter never retries a failed poll.
func (c *Client) WaitFor(ctx context.Context, fn StatusFunc, spec WaiterSpec) (string, error) {
	return waitFor(ctx, fn, spec, c.tel)
}

func waitFor(ctx context.Context, fn StatusFunc, spec WaiterSpec, tel *telemetry.Telemetry) (string, error) {
	if err := validate.Struct(spec); err != nil {
		return "", fmt.Errorf("invalid waiter spec: %w", err)
	}

	log := tel.Logger.WithOperation(spec.Name)
	start := time.Now()
	deadline := time.NewTimer(spec.MaxWait)
	defer deadline.Stop()

	lastState := ""
	for {
		state, err := fn(ctx)
		tel.Metrics.RecordWaiterPoll(spec.Name)
		if err != nil {
			return "", err
		}
		if state != "" {
			lastState = state
		}

		switch {
		case state == spec.Success:
			log.Z().Debug().Str("state", state).Dur("waited", time.Since(start)).Msg("waiter done")
			return state, nil
		case slices.Contains(spec.Failure, state):
			return state, &apierrors.WaiterFailureError{State: state}
		}

		interval := time.NewTimer(spec.Interval)
		select {
		case <-interval.C:
		case <-deadline.C:
			interval.Stop()
			return lastState, &apierrors.WaiterTimeoutError{
				LastState: lastState,
				Waited:    time.Since(start),
			}
		case <-ctx.Done():
			interval.Stop()
			return lastState, ctx.Err()
		}
	}
}
