// Package credentials resolves and caches provider access keys.
//
// Resolution follows a fixed chain: explicit static keys, then process
// environment variables, then a named profile in a shared credentials file,
// then the instance metadata endpoint. The resolved snapshot is cached and
// refreshed transparently shortly before expiry; concurrent callers always
// observe a complete snapshot.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// Credentials is an immutable snapshot of resolved keys. Callers must fetch
// a fresh snapshot immediately before signing rather than holding one across
// requests.
type Credentials struct {
	// AccessKeyID is the public key identifier.
	AccessKeyID string

	// SecretAccessKey is the signing secret.
	SecretAccessKey string

	// SessionToken is the optional session token for temporary credentials.
	SessionToken string

	// Expires is the instant the credentials stop being valid. Zero means
	// the credentials never expire.
	Expires time.Time

	// Source names the provider that produced this snapshot.
	Source string
}

// HasKeys reports whether the snapshot carries a usable key pair.
func (c Credentials) HasKeys() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// ExpiresWithin reports whether the snapshot expires within margin of now.
// Never-expiring credentials always return false.
func (c Credentials) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.Expires.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.Expires)
}

// Provider yields a credentials snapshot. Implementations must be safe for
// concurrent use.
type Provider interface {
	Retrieve(ctx context.Context) (Credentials, error)
}

// StaticProvider returns a fixed set of caller-supplied keys.
type StaticProvider struct {
	Value Credentials
}

// Retrieve returns the static credentials.
func (p *StaticProvider) Retrieve(_ context.Context) (Credentials, error) {
	if !p.Value.HasKeys() {
		return Credentials{}, fmt.Errorf("static credentials are incomplete: %w", apierrors.ErrCredentialsUnavailable)
	}
	v := p.Value
	if v.Source == "" {
		v.Source = "static"
	}
	return v, nil
}

// ChainProvider tries each provider in order and returns the first snapshot
// with usable keys. It fails with ErrCredentialsUnavailable carrying every
// per-provider failure when the chain is exhausted.
type ChainProvider struct {
	Providers []Provider
}

// NewChainProvider builds the default resolution chain: explicit static keys
// (when supplied), environment, shared profile file, instance metadata.
func NewChainProvider(explicit *Credentials, profile string) *ChainProvider {
	chain := &ChainProvider{}
	if explicit != nil {
		chain.Providers = append(chain.Providers, &StaticProvider{Value: *explicit})
	}
	chain.Providers = append(chain.Providers,
		&EnvProvider{},
		&SharedFileProvider{Profile: profile},
		NewMetadataProvider(""),
	)
	return chain
}

// Retrieve walks the chain and returns the first usable snapshot.
func (p *ChainProvider) Retrieve(ctx context.Context) (Credentials, error) {
	var failures []string
	for _, provider := range p.Providers {
		creds, err := provider.Retrieve(ctx)
		if err == nil && creds.HasKeys() {
			return creds, nil
		}
		if ctx.Err() != nil {
			return Credentials{}, ctx.Err()
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if len(failures) == 0 {
		return Credentials{}, apierrors.ErrCredentialsUnavailable
	}
	return Credentials{}, fmt.Errorf("%w: %s",
		apierrors.ErrCredentialsUnavailable, strings.Join(failures, "; "))
}

// IsUnavailable reports whether err means no credential source could supply
// keys, as opposed to a source failing outright.
func IsUnavailable(err error) bool {
	return errors.Is(err, apierrors.ErrCredentialsUnavailable)
}
