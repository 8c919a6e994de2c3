package credentials

import (
	"context"
	"fmt"
	"os"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// EnvProvider reads credentials from the process environment.
//
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are the primary variables;
// the legacy AWS_ACCESS_KEY and AWS_SECRET_KEY spellings are honored when
// the primary ones are unset. AWS_SESSION_TOKEN is optional.
type EnvProvider struct{}

// Retrieve reads the environment variables.
func (p *EnvProvider) Retrieve(_ context.Context) (Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	if id == "" {
		id = os.Getenv("AWS_ACCESS_KEY")
	}
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if secret == "" {
		secret = os.Getenv("AWS_SECRET_KEY")
	}

	if id == "" || secret == "" {
		return Credentials{}, fmt.Errorf("environment provider: %w", apierrors.ErrCredentialsUnavailable)
	}

	return Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}
