package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nimbusctl/nimbus/pkg/credentials"
)

// Vector credentials from the published signature test suite.
var testCreds = credentials.Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
}

var vectorTime = time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC)

func newTestRequest(t *testing.T, method, rawurl string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawurl, nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

// The get-vanilla case from the signature test suite: GET / with an empty
// body must reproduce the published signature byte-for-byte.
func TestSignGetVanillaVector(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")

	if err := New().Sign(req, nil, "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}

	want := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/service/aws4_request, " +
		"SignedHeaders=host;x-amz-date, " +
		"Signature=5fa00fa31553b73ebf1942676e86291e8372ff2a2260956d9b8aae1d763fbf31"
	if got := req.Header.Get("Authorization"); got != want {
		t.Errorf("Authorization mismatch\n got: %s\nwant: %s", got, want)
	}
	if got := req.Header.Get("X-Amz-Date"); got != "20150830T123600Z" {
		t.Errorf("X-Amz-Date = %q", got)
	}
}

func TestSignDeterministicForFixedInputs(t *testing.T) {
	a := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	b := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")

	signer := New()
	if err := signer.Sign(a, nil, "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if err := signer.Sign(b, nil, "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if a.Header.Get("Authorization") != b.Header.Get("Authorization") {
		t.Error("same inputs should produce the same signature")
	}
}

func TestSignaturesDifferAcrossTime(t *testing.T) {
	a := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	b := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")

	signer := New()
	if err := signer.Sign(a, nil, "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if err := signer.Sign(b, nil, "service", "us-east-1", testCreds, vectorTime.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if a.Header.Get("Authorization") == b.Header.Get("Authorization") {
		t.Error("signatures one second apart must differ, the timestamp is embedded")
	}
}

func TestSignSessionTokenHeader(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	creds := testCreds
	creds.SessionToken = "SESSION"

	if err := New().Sign(req, nil, "service", "us-east-1", creds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("X-Amz-Security-Token") != "SESSION" {
		t.Error("session token header not attached")
	}
	if !strings.Contains(req.Header.Get("Authorization"), "x-amz-security-token") {
		t.Error("session token header not signed")
	}
}

func TestSignRejectsMissingKeys(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/")
	err := New().Sign(req, nil, "service", "us-east-1", credentials.Credentials{}, vectorTime)
	if err == nil {
		t.Fatal("expected a signing error for empty credentials")
	}
}

func TestSignPayloadHashHeader(t *testing.T) {
	req := newTestRequest(t, http.MethodPut, "https://example.amazonaws.com/thing")
	signer := &Signer{AddPayloadHashHeader: true}

	if err := signer.Sign(req, nil, "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("X-Amz-Content-Sha256"); got != EmptyPayloadHash {
		t.Errorf("empty body must hash to the empty-string hash, got %q", got)
	}

	req2 := newTestRequest(t, http.MethodPut, "https://example.amazonaws.com/thing")
	if err := signer.Sign(req2, []byte("payload"), "service", "us-east-1", testCreds, vectorTime); err != nil {
		t.Fatal(err)
	}
	if req2.Header.Get("X-Amz-Content-Sha256") == EmptyPayloadHash {
		t.Error("non-empty body must not use the empty-string hash")
	}
}

func TestCanonicalQueryEncoding(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  string
	}{
		{
			"sorted keys",
			url.Values{"b": {"2"}, "a": {"1"}},
			"a=1&b=2",
		},
		{
			"space is percent-twenty",
			url.Values{"q": {"a b"}},
			"q=a%20b",
		},
		{
			"reserved characters escaped",
			url.Values{"path": {"a/b"}, "sym": {"=&+"}},
			"path=a%2Fb&sym=%3D%26%2B",
		},
		{
			"unreserved pass through",
			url.Values{"k": {"A-Za-z0-9_.~"}},
			"k=A-Za-z0-9_.~",
		},
		{
			"repeated values sorted",
			url.Values{"k": {"b", "a"}},
			"k=a&k=b",
		},
		{
			"empty value keeps equals",
			url.Values{"flag": {""}},
			"flag=",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canonicalQuery(tt.query); got != tt.want {
				t.Errorf("canonicalQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.amazonaws.com", "/"},
		{"https://example.amazonaws.com/", "/"},
		{"https://example.amazonaws.com/a/b/../c", "/a/c"},
		{"https://example.amazonaws.com/a/b/", "/a/b/"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := canonicalPath(u); got != tt.want {
			t.Errorf("canonicalPath(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPresign(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/resource")

	signed, err := New().Presign(req, nil, "service", "us-east-1", testCreds, vectorTime, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("X-Amz-Algorithm") != Algorithm {
		t.Errorf("algorithm = %q", q.Get("X-Amz-Algorithm"))
	}
	if q.Get("X-Amz-Credential") != "AKIDEXAMPLE/20150830/us-east-1/service/aws4_request" {
		t.Errorf("credential = %q", q.Get("X-Amz-Credential"))
	}
	if q.Get("X-Amz-Expires") != "900" {
		t.Errorf("expires = %q", q.Get("X-Amz-Expires"))
	}
	if q.Get("X-Amz-SignedHeaders") != "host" {
		t.Errorf("signed headers = %q", q.Get("X-Amz-SignedHeaders"))
	}
	if len(q.Get("X-Amz-Signature")) != 64 {
		t.Errorf("signature should be 64 hex characters, got %q", q.Get("X-Amz-Signature"))
	}
}

func TestPresignQueryUsesSigningEncoding(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/resource?note=a+b")

	signed, err := New().Presign(req, nil, "service", "us-east-1", testCreds, vectorTime, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// The URL bytes must match the canonical signing form byte for byte:
	// a space presigns as %20, never "+".
	if strings.Contains(signed, "+") {
		t.Errorf("presigned url contains a plus: %s", signed)
	}
	if !strings.Contains(signed, "note=a%20b") {
		t.Errorf("presigned url = %s, want note=a%%20b", signed)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("note") != "a b" {
		t.Errorf("query round-trip = %q", u.Query().Get("note"))
	}
}

func TestPresignRejectsZeroExpiry(t *testing.T) {
	req := newTestRequest(t, http.MethodGet, "https://example.amazonaws.com/resource")
	if _, err := New().Presign(req, nil, "service", "us-east-1", testCreds, vectorTime, 0); err == nil {
		t.Fatal("expected an error for non-positive expiry")
	}
}

// The SMTP password must be the versioned, base64-encoded tail of the fixed
// HMAC chain. The expected value is recomputed here step by step so a
// refactor that reorders the chain fails loudly.
func TestSMTPPassword(t *testing.T) {
	secret := "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
	region := "us-east-1"

	step := func(key []byte, data string) []byte {
		h := hmac.New(sha256.New, key)
		h.Write([]byte(data))
		return h.Sum(nil)
	}
	sig := step(step(step(step(step(
		[]byte("AWS4"+secret), "11111111"), region), "ses"), "aws4_request"), "SendRawEmail")
	want := base64.StdEncoding.EncodeToString(append([]byte{0x04}, sig...))

	if got := SMTPPassword(secret, region); got != want {
		t.Errorf("SMTPPassword = %q, want %q", got, want)
	}
}

func TestSMTPPasswordVariesByRegion(t *testing.T) {
	secret := "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
	if SMTPPassword(secret, "us-east-1") == SMTPPassword(secret, "eu-west-1") {
		t.Error("password must be region-specific")
	}

	decoded, err := base64.StdEncoding.DecodeString(SMTPPassword(secret, "us-east-1"))
	if err != nil {
		t.Fatal(err)
	}
	if decoded[0] != 0x04 {
		t.Errorf("version byte = %#x, want 0x04", decoded[0])
	}
	if len(decoded) != sha256.Size+1 {
		t.Errorf("decoded length = %d, want %d", len(decoded), sha256.Size+1)
	}
}
