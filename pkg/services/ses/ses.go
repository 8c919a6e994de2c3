// Package ses is a thin wrapper over the core client for the email API. It
// speaks the REST-JSON protocol and also derives SMTP credentials from the
// resolved signing keys for callers that deliver over SMTP instead.
package ses

import (
	"context"
	"fmt"

	"github.com/nimbusctl/nimbus/pkg/client"
	"github.com/nimbusctl/nimbus/pkg/protocol"
	"github.com/nimbusctl/nimbus/pkg/sigv4"
)

const serviceName = "ses"

// Client issues email API calls.
type Client struct {
	api *client.Client
}

// New wraps a core client.
func New(api *client.Client) *Client {
	return &Client{api: api}
}

// Message is a simple outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// SendEmail submits a message for delivery and returns the message id.
func (c *Client) SendEmail(ctx context.Context, msg Message) (string, error) {
	to := make([]any, len(msg.To))
	for i, addr := range msg.To {
		to[i] = addr
	}

	spec := &protocol.RequestSpec{
		Service:  serviceName,
		Protocol: protocol.RESTJSON,
		Method:   "POST",
		Path:     "/v2/email/outbound-emails",
		Params: map[string]any{
			"FromEmailAddress": msg.From,
			"Destination": map[string]any{
				"ToAddresses": to,
			},
			"Content": map[string]any{
				"Simple": map[string]any{
					"Subject": map[string]any{"Data": msg.Subject},
					"Body": map[string]any{
						"Text": map[string]any{"Data": msg.Body},
					},
				},
			},
		},
	}

	result, err := c.api.Do(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return result.Str("MessageId"), nil
}

// SMTPCredentials are username and password for the SMTP delivery endpoint.
// The username is the access key id; the password is derived from the
// secret key and region, never sent anywhere by this package.
type SMTPCredentials struct {
	Username string
	Password string
}

// SMTPCredentials derives SMTP credentials from the client's resolved
// signing keys for the client's default region.
func (c *Client) SMTPCredentials(ctx context.Context) (SMTPCredentials, error) {
	creds, err := c.api.Credentials().Retrieve(ctx)
	if err != nil {
		return SMTPCredentials{}, fmt.Errorf("failed to resolve credentials for smtp derivation: %w", err)
	}

	return SMTPCredentials{
		Username: creds.AccessKeyID,
		Password: sigv4.SMTPPassword(creds.SecretAccessKey, c.api.Region()),
	}, nil
}
