package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

const (
	defaultMetadataEndpoint = "http://169.254.169.254"
	metadataTokenPath       = "/latest/api/token"
	metadataCredsPath       = "/latest/meta-data/iam/security-credentials/"
	metadataTokenTTL        = "21600"
)

// MetadataProvider fetches role credentials from the instance metadata
// endpoint using the session-token flavor of the protocol: acquire a short
// lived token with a PUT, then read the role name and its credential
// document with the token attached.
type MetadataProvider struct {
	// Endpoint overrides the metadata endpoint, primarily for tests.
	Endpoint string

	// Client is the HTTP client used for metadata calls. Metadata traffic
	// is link-local, so the timeout is kept short.
	Client *http.Client
}

// NewMetadataProvider returns a provider against endpoint, or the standard
// link-local endpoint when empty.
func NewMetadataProvider(endpoint string) *MetadataProvider {
	if endpoint == "" {
		endpoint = defaultMetadataEndpoint
	}
	return &MetadataProvider{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 2 * time.Second},
	}
}

type metadataCredsDoc struct {
	Code            string
	AccessKeyId     string
	SecretAccessKey string
	Token           string
	Expiration      time.Time
}

// Retrieve fetches the first role's credential document.
func (p *MetadataProvider) Retrieve(ctx context.Context) (Credentials, error) {
	token, err := p.fetchToken(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("instance metadata unreachable: %w", apierrors.ErrCredentialsUnavailable)
	}

	role, err := p.get(ctx, metadataCredsPath, token)
	if err != nil {
		return Credentials{}, fmt.Errorf("no instance role: %w", apierrors.ErrCredentialsUnavailable)
	}
	role = strings.TrimSpace(strings.SplitN(role, "\n", 2)[0])
	if role == "" {
		return Credentials{}, fmt.Errorf("no instance role: %w", apierrors.ErrCredentialsUnavailable)
	}

	body, err := p.get(ctx, metadataCredsPath+role, token)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to fetch role credentials: %w", err)
	}

	var doc metadataCredsDoc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Credentials{}, fmt.Errorf("malformed metadata credential document: %w", err)
	}
	if doc.Code != "" && doc.Code != "Success" {
		return Credentials{}, fmt.Errorf("metadata credential document status %q: %w",
			doc.Code, apierrors.ErrCredentialsUnavailable)
	}
	if doc.AccessKeyId == "" || doc.SecretAccessKey == "" {
		return Credentials{}, fmt.Errorf("metadata credential document incomplete: %w",
			apierrors.ErrCredentialsUnavailable)
	}

	return Credentials{
		AccessKeyID:     doc.AccessKeyId,
		SecretAccessKey: doc.SecretAccessKey,
		SessionToken:    doc.Token,
		Expires:         doc.Expiration,
		Source:          "instance_metadata",
	}, nil
}

func (p *MetadataProvider) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.Endpoint+metadataTokenPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-aws-ec2-metadata-token-ttl-seconds", metadataTokenTTL)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata token request returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (p *MetadataProvider) get(ctx context.Context, path, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint+path, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-aws-ec2-metadata-token", token)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata request for %s returned status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
