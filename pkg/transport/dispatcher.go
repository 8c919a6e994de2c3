// Package transport executes signed HTTP requests against provider
// endpoints, applying the retry policy and handing raw responses to the
// protocol codec. A single Dispatcher is shared by every service wrapper
// and is safe for concurrent use: the only state it carries is read-only
// configuration.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
	"github.com/nimbusctl/nimbus/pkg/credentials"
	"github.com/nimbusctl/nimbus/pkg/protocol"
	"github.com/nimbusctl/nimbus/pkg/telemetry"
)

// Signer computes a request signature for one attempt. Implemented by
// sigv4.Signer; substituted by tests.
type Signer interface {
	Sign(r *http.Request, body []byte, service, region string, creds credentials.Credentials, now time.Time) error
}

// Dispatcher sends encoded requests with signing, retry, and backoff.
type Dispatcher struct {
	httpClient *http.Client
	policy     RetryPolicy
	signer     Signer
	creds      credentials.Provider
	limiter    *rate.Limiter
	tel        *telemetry.Telemetry
	now        func() time.Time
}

// Options configures a Dispatcher.
type Options struct {
	// HTTPClient is the underlying client. Defaults to a client with a
	// 30 second overall timeout.
	HTTPClient *http.Client

	// Policy is the retry policy. Zero value means DefaultRetryPolicy.
	Policy RetryPolicy

	// Signer signs each attempt. Required.
	Signer Signer

	// Credentials supplies the snapshot fetched immediately before each
	// signing. Required.
	Credentials credentials.Provider

	// RateLimit is an optional client-side requests-per-second cap
	// applied before each attempt. Zero disables it.
	RateLimit float64

	// RateBurst is the limiter burst. Defaults to the ceiling of
	// RateLimit when unset.
	RateBurst int

	// Telemetry supplies logging, metrics, and tracing. Defaults to the
	// silent bundle.
	Telemetry *telemetry.Telemetry

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// NewDispatcher constructs a Dispatcher from options.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Signer == nil {
		return nil, fmt.Errorf("transport: a signer is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("transport: a credentials provider is required")
	}

	policy := opts.Policy
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Dispatcher{
		httpClient: httpClient,
		policy:     policy,
		signer:     opts.Signer,
		creds:      opts.Credentials,
		limiter:    limiter,
		tel:        tel,
		now:        now,
	}, nil
}

// Do encodes spec, then runs the attempt loop against endpoint: fetch a
// fresh credential snapshot, sign with a new timestamp, send, decode.
// Transient and throttling failures retry with backoff up to the policy's
// attempt cap; everything else propagates immediately. One resign retry is
// granted on a signature mismatch, which is how clock skew presents.
func (d *Dispatcher) Do(ctx context.Context, spec *protocol.RequestSpec, endpoint string) (*protocol.Result, error) {
	codec, err := protocol.ForProtocol(spec.Protocol)
	if err != nil {
		return nil, &apierrors.SigningError{Reason: err.Error()}
	}
	encoded, err := codec.Encode(spec)
	if err != nil {
		return nil, &apierrors.SigningError{Reason: "encoding request failed", Err: err}
	}
	if encoded.Headers == nil {
		encoded.Headers = http.Header{}
	}
	for name, values := range spec.Headers {
		for _, v := range values {
			encoded.Headers.Add(name, v)
		}
	}

	log := d.tel.Logger.WithService(spec.Service).WithOperation(operationName(spec)).WithRegion(spec.Region)
	ctx = log.WithContext(ctx)
	ctx, span := d.tel.Tracer.StartRequestSpan(ctx, spec.Service, operationName(spec), spec.Region)
	defer span.End()

	d.tel.Metrics.RequestStarted()
	defer d.tel.Metrics.RequestFinished()

	// The invocation id stays constant across retries so the provider can
	// correlate attempts of one logical request.
	invocationID := uuid.New().String()

	var resignedOnce bool
	for attempt := 1; ; attempt++ {
		if err := d.throttle(ctx); err != nil {
			return nil, err
		}

		start := d.now()
		result, attemptErr := d.attempt(ctx, spec, encoded, endpoint, invocationID, attempt)
		d.tel.Metrics.RecordAttempt(spec.Service, operationName(spec), d.now().Sub(start))

		if attemptErr == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			d.tel.Metrics.RecordRequest(spec.Service, operationName(spec), "success")
			log.WithRequestID(result.RequestID).Z().Debug().
				Int("attempts", attempt).
				Msg("request complete")
			return result, nil
		}

		class, retryable := classifyAttempt(attemptErr)
		if !resignedOnce && isSignatureMismatch(attemptErr) {
			// Re-sign once with a fresh timestamp before giving up.
			resignedOnce = true
			retryable = true
		}
		if !retryable || attempt >= d.policy.MaxAttempts || ctx.Err() != nil {
			span.RecordError(attemptErr)
			span.SetStatus(codes.Error, attemptErr.Error())
			d.tel.Metrics.RecordRequest(spec.Service, operationName(spec), "error")
			return nil, attemptErr
		}

		delay := d.policy.backoff(attempt, class)
		d.tel.Metrics.RecordRetry(spec.Service, string(class))
		log.Z().Debug().
			Int("attempt", attempt).
			Str("class", string(class)).
			Dur("backoff", delay).
			Err(attemptErr).
			Msg("retrying request")

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs one signed HTTP exchange.
func (d *Dispatcher) attempt(ctx context.Context, spec *protocol.RequestSpec, encoded *protocol.EncodedRequest, endpoint, invocationID string, attempt int) (*protocol.Result, error) {
	creds, err := d.creds.Retrieve(ctx)
	if err != nil {
		return nil, err
	}

	req, err := buildHTTPRequest(ctx, encoded, endpoint)
	if err != nil {
		return nil, &apierrors.SigningError{Reason: "building request failed", Err: err}
	}
	req.Header.Set("Amz-Sdk-Invocation-Id", invocationID)
	req.Header.Set("Amz-Sdk-Request", fmt.Sprintf("attempt=%d; max=%d", attempt, d.policy.MaxAttempts))

	if err := d.signer.Sign(req, encoded.Body, spec.Service, spec.Region, creds, d.now()); err != nil {
		return nil, err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &apierrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierrors.TransportError{Err: err}
	}

	raw := &protocol.RawResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}
	codec, _ := protocol.ForProtocol(spec.Protocol)
	return codec.Decode(spec, raw)
}

func buildHTTPRequest(ctx context.Context, encoded *protocol.EncodedRequest, endpoint string) (*http.Request, error) {
	url := endpoint + encoded.Path
	if len(encoded.Query) > 0 {
		// The wire query must use the signing character set: the signer
		// canonicalizes a space as %20, while Values.Encode emits "+".
		// Literal plus signs are already %2B at this point, so the only
		// "+" left are spaces.
		url += "?" + strings.ReplaceAll(encoded.Query.Encode(), "+", "%20")
	}

	var body io.Reader
	if len(encoded.Body) > 0 {
		body = bytes.NewReader(encoded.Body)
	}
	req, err := http.NewRequestWithContext(ctx, encoded.Method, url, body)
	if err != nil {
		return nil, err
	}
	for name, values := range encoded.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req, nil
}

func (d *Dispatcher) throttle(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

// classifyAttempt maps an attempt failure to its class and retryability.
// Network failures with no response are treated as transient; decode,
// signing, and credential failures are final.
func classifyAttempt(err error) (apierrors.Class, bool) {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class, apiErr.Retryable()
	}
	var transportErr *apierrors.TransportError
	if errors.As(err, &transportErr) {
		return apierrors.ClassTransient, true
	}
	return apierrors.ClassFatal, false
}

func isSignatureMismatch(err error) bool {
	var apiErr *apierrors.APIError
	return errors.As(err, &apiErr) && apiErr.Code == "SignatureDoesNotMatch"
}

// sleep suspends cooperatively: cancellation interrupts the backoff rather
// than waiting it out.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func operationName(spec *protocol.RequestSpec) string {
	if spec.Action != "" {
		return spec.Action
	}
	return spec.Method + " " + spec.Path
}
