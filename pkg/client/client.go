// Package client is the facade service wrappers are built on: it resolves
// endpoints, owns the credential chain, and exposes the request, paginate,
// and wait primitives over the transport dispatcher.
//
// The client is an explicit, constructed object handed to each service
// wrapper. There is no package-level default instance; tests substitute a
// fake dispatcher through Options.Dispatcher.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nimbusctl/nimbus/pkg/credentials"
	"github.com/nimbusctl/nimbus/pkg/protocol"
	"github.com/nimbusctl/nimbus/pkg/sigv4"
	"github.com/nimbusctl/nimbus/pkg/telemetry"
	"github.com/nimbusctl/nimbus/pkg/transport"
)

// Doer executes one encoded, signed request with retries. Implemented by
// transport.Dispatcher; substituted by tests.
type Doer interface {
	Do(ctx context.Context, spec *protocol.RequestSpec, endpoint string) (*protocol.Result, error)
}

// Client issues API calls to regional provider endpoints.
type Client struct {
	doer     Doer
	region   string
	override string
	creds    credentials.Provider
	tel      *telemetry.Telemetry
	watcher  *credentials.FileWatcher
}

// Options configures a Client.
type Options struct {
	// Region is the default region for requests that do not name one.
	Region string `validate:"required"`

	// Profile selects the shared-credentials-file profile in the default
	// chain. Ignored when Credentials is set.
	Profile string

	// StaticCredentials places explicit keys at the head of the default
	// chain. Ignored when Credentials is set.
	StaticCredentials *credentials.Credentials

	// Credentials overrides the whole credential chain.
	Credentials credentials.Provider

	// HTTPClient overrides the transport's HTTP client.
	HTTPClient *http.Client

	// RetryPolicy overrides the dispatcher retry policy. The zero value
	// means the default policy; the dispatcher validates the final
	// policy, so the struct validator must not descend into it here.
	RetryPolicy transport.RetryPolicy `validate:"-"`

	// RateLimit caps client-side requests per second. Zero disables it.
	RateLimit float64

	// EndpointOverride routes every request to a fixed base URL instead
	// of the conventional regional endpoint, for emulators and tests.
	EndpointOverride string

	// Telemetry supplies logging, metrics, and tracing.
	Telemetry *telemetry.Telemetry

	// WatchCredentialsFile invalidates the credential cache when the
	// shared credentials file changes, so a rotated key is picked up
	// without waiting for expiry. Only applies to the default chain.
	WatchCredentialsFile bool

	// Dispatcher substitutes the transport layer entirely, for tests.
	Dispatcher Doer
}

var validate = validator.New()

// New constructs a Client. Unless overridden, credentials resolve through
// the standard chain (static, environment, shared file, instance metadata)
// behind an atomically swapped cache.
func New(opts Options) (*Client, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}

	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Nop()
	}

	creds := opts.Credentials
	var watcher *credentials.FileWatcher
	if creds == nil {
		cache := credentials.NewCache(
			credentials.NewChainProvider(opts.StaticCredentials, opts.Profile),
			credentials.WithRefreshObserver(tel.Metrics.RecordCredentialRefresh))
		creds = cache

		if opts.WatchCredentialsFile {
			log := tel.Logger.NewComponentLogger("credentials")
			fileProvider := &credentials.SharedFileProvider{Profile: opts.Profile}
			path, err := fileProvider.Location()
			if err == nil {
				watcher, err = credentials.WatchFile(path, cache.Invalidate, *log.Z())
			}
			if err != nil {
				// Rotation pickup is best effort; expiry still refreshes.
				log.Z().Warn().Err(err).Msg("credentials file watch unavailable")
			}
		}
	}

	doer := opts.Dispatcher
	if doer == nil {
		dispatcher, err := transport.NewDispatcher(transport.Options{
			HTTPClient:  opts.HTTPClient,
			Policy:      opts.RetryPolicy,
			Signer:      sigv4.New(),
			Credentials: creds,
			RateLimit:   opts.RateLimit,
			Telemetry:   tel,
		})
		if err != nil {
			return nil, err
		}
		doer = dispatcher
	}

	return &Client{
		doer:     doer,
		region:   opts.Region,
		override: opts.EndpointOverride,
		creds:    creds,
		tel:      tel,
		watcher:  watcher,
	}, nil
}

// Close stops the credentials file watcher, when one is running.
func (c *Client) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// Do sends one request described by spec, filling in the client's default
// region and resolving the endpoint.
func (c *Client) Do(ctx context.Context, spec *protocol.RequestSpec) (*protocol.Result, error) {
	if spec.Region == "" {
		spec.Region = c.region
	}
	return c.doer.Do(ctx, spec, c.Endpoint(spec.Service, spec.Region))
}

// Region returns the client's default region.
func (c *Client) Region() string {
	return c.region
}

// Credentials exposes the client's credential provider for helpers that
// derive secondary secrets from the resolved keys.
func (c *Client) Credentials() credentials.Provider {
	return c.creds
}
