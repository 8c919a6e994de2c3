package ses

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nimbusctl/nimbus/pkg/client"
	"github.com/nimbusctl/nimbus/pkg/credentials"
	"github.com/nimbusctl/nimbus/pkg/protocol"
	"github.com/nimbusctl/nimbus/pkg/sigv4"
)

type scriptedDoer struct {
	specs   []*protocol.RequestSpec
	results []*protocol.Result
}

func (d *scriptedDoer) Do(ctx context.Context, spec *protocol.RequestSpec, endpoint string) (*protocol.Result, error) {
	i := len(d.specs)
	d.specs = append(d.specs, spec)
	if i < len(d.results) {
		return d.results[i], nil
	}
	return &protocol.Result{StatusCode: 200, Data: map[string]any{}}, nil
}

func newTestClient(t *testing.T, doer *scriptedDoer) *Client {
	t.Helper()
	api, err := client.New(client.Options{
		Region:     "eu-west-1",
		Dispatcher: doer,
		Credentials: &credentials.StaticProvider{
			Value: credentials.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"},
		},
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return New(api)
}

func TestSendEmail(t *testing.T) {
	doer := &scriptedDoer{results: []*protocol.Result{
		{StatusCode: 200, Data: map[string]any{"MessageId": "msg-123"}},
	}}
	mail := newTestClient(t, doer)

	id, err := mail.SendEmail(context.Background(), Message{
		From:    "ops@example.com",
		To:      []string{"dev@example.com"},
		Subject: "deploy done",
		Body:    "stack web reached CREATE_COMPLETE",
	})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if id != "msg-123" {
		t.Errorf("message id = %s", id)
	}

	spec := doer.specs[0]
	if spec.Protocol != protocol.RESTJSON || spec.Method != "POST" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.Path != "/v2/email/outbound-emails" {
		t.Errorf("path = %s", spec.Path)
	}

	codec, err := protocol.ForProtocol(protocol.RESTJSON)
	if err != nil {
		t.Fatalf("ForProtocol: %v", err)
	}
	encoded, err := codec.Encode(spec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(encoded.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["FromEmailAddress"] != "ops@example.com" {
		t.Errorf("body = %s", encoded.Body)
	}
	dest := body["Destination"].(map[string]any)
	to := dest["ToAddresses"].([]any)
	if len(to) != 1 || to[0] != "dev@example.com" {
		t.Errorf("to = %v", to)
	}
}

func TestSMTPCredentials(t *testing.T) {
	mail := newTestClient(t, &scriptedDoer{})

	creds, err := mail.SMTPCredentials(context.Background())
	if err != nil {
		t.Fatalf("SMTPCredentials: %v", err)
	}
	if creds.Username != "AKIDEXAMPLE" {
		t.Errorf("username = %s", creds.Username)
	}
	if want := sigv4.SMTPPassword("secret", "eu-west-1"); creds.Password != want {
		t.Errorf("password = %s, want %s", creds.Password, want)
	}
	if creds.Password == sigv4.SMTPPassword("secret", "us-east-1") {
		t.Error("password should vary by region")
	}
}
