// Package telemetry provides the observability plumbing shared by the API
// core: structured logging via zerolog, Prometheus metrics for request and
// retry accounting, and OpenTelemetry tracing around dispatched requests.
//
// Initialize at startup and hand the bundle to the client:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil { ... }
//	defer tel.Shutdown(context.Background())
//
// Every piece degrades to a no-op when disabled in configuration, so library
// consumers that want no observability pay nothing.
//
// The core never logs errors in place of returning them; telemetry is
// narration and accounting, the typed error results remain the contract.
package telemetry
