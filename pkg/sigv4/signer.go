// Package sigv4 implements the provider's Signature Version 4 request
// signing scheme: a canonical rendering of the HTTP request is hashed into a
// string to sign, a short-lived signing key is derived from the secret key
// through an HMAC chain, and the resulting signature travels in the
// Authorization header or, for presigned URLs, in the query string.
//
// The package is pure: no network access, no logging, deterministic for a
// fixed timestamp. Any deviation from the canonical form produces a
// provider-side SignatureDoesNotMatch failure, so the canonicalization
// rules here are pinned by test vectors.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
	"github.com/nimbusctl/nimbus/pkg/credentials"
)

const (
	// Algorithm is the signing algorithm label embedded in the credential
	// scope and Authorization header.
	Algorithm = "AWS4-HMAC-SHA256"

	timeFormat      = "20060102T150405Z"
	shortTimeFormat = "20060102"
	terminator      = "aws4_request"

	// EmptyPayloadHash is the SHA-256 of the empty byte string. An empty
	// body hashes to this value, it is never omitted from the canonical
	// request.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Headers that never participate in the signature.
var ignoredHeaders = map[string]bool{
	"authorization":   true,
	"user-agent":      true,
	"x-amzn-trace-id": true,
	"expect":          true,
}

// Signer computes Signature V4 signatures. The zero value is usable; a
// shared instance is safe for concurrent use.
type Signer struct {
	// AddPayloadHashHeader attaches the computed body hash as the
	// X-Amz-Content-Sha256 header, which some services require.
	AddPayloadHashHeader bool
}

// New returns a Signer with default options.
func New() *Signer {
	return &Signer{}
}

// Sign computes the signature for r at the given instant and attaches the
// X-Amz-Date, optional X-Amz-Security-Token, and Authorization headers.
// The body is passed separately so the request body reader is not consumed.
// A retried request must be re-signed because the signature embeds now.
func (s *Signer) Sign(r *http.Request, body []byte, service, region string, creds credentials.Credentials, now time.Time) error {
	if !creds.HasKeys() {
		return &apierrors.SigningError{Reason: "credentials missing a key pair"}
	}
	if service == "" || region == "" {
		return &apierrors.SigningError{Reason: "service and region are required"}
	}

	now = now.UTC()
	amzDate := now.Format(timeFormat)
	shortDate := now.Format(shortTimeFormat)

	r.Header.Set("X-Amz-Date", amzDate)
	if creds.SessionToken != "" {
		r.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	payloadHash := hashPayload(body)
	if s.AddPayloadHashHeader {
		r.Header.Set("X-Amz-Content-Sha256", payloadHash)
	}

	canonReq, signedHeaders := canonicalRequest(r, payloadHash)
	scope := strings.Join([]string{shortDate, region, service, terminator}, "/")
	stringToSign := strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonReq)),
	}, "\n")

	key := deriveKey(creds.SecretAccessKey, shortDate, region, service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	r.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, creds.AccessKeyID, scope, signedHeaders, signature))

	return nil
}

// Presign computes a query-parameter signature for r valid for expires and
// returns the complete presigned URL. Only the host header is signed so the
// URL remains usable from any client.
func (s *Signer) Presign(r *http.Request, body []byte, service, region string, creds credentials.Credentials, now time.Time, expires time.Duration) (string, error) {
	if !creds.HasKeys() {
		return "", &apierrors.SigningError{Reason: "credentials missing a key pair"}
	}
	if expires <= 0 {
		return "", &apierrors.SigningError{Reason: "presign expiry must be positive"}
	}

	now = now.UTC()
	amzDate := now.Format(timeFormat)
	shortDate := now.Format(shortTimeFormat)
	scope := strings.Join([]string{shortDate, region, service, terminator}, "/")

	query := r.URL.Query()
	query.Set("X-Amz-Algorithm", Algorithm)
	query.Set("X-Amz-Credential", creds.AccessKeyID+"/"+scope)
	query.Set("X-Amz-Date", amzDate)
	query.Set("X-Amz-Expires", strconv.Itoa(int(expires.Seconds())))
	query.Set("X-Amz-SignedHeaders", "host")
	if creds.SessionToken != "" {
		query.Set("X-Amz-Security-Token", creds.SessionToken)
	}
	r.URL.RawQuery = wireQuery(query)

	canonReq := strings.Join([]string{
		strings.ToUpper(r.Method),
		canonicalPath(r.URL),
		canonicalQuery(query),
		"host:" + hostOf(r) + "\n",
		"host",
		hashPayload(body),
	}, "\n")

	stringToSign := strings.Join([]string{
		Algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonReq)),
	}, "\n")

	key := deriveKey(creds.SecretAccessKey, shortDate, region, service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	query.Set("X-Amz-Signature", signature)
	r.URL.RawQuery = wireQuery(query)
	return r.URL.String(), nil
}

// wireQuery serializes query for the wire in the signing character set.
// Values.Encode writes a space as "+", but the canonical form signs it as
// %20; the bytes sent must be the bytes signed. Literal plus signs are
// already %2B after Encode, so every remaining "+" is a space.
func wireQuery(query url.Values) string {
	return strings.ReplaceAll(query.Encode(), "+", "%20")
}

// canonicalRequest renders r into the byte-exact canonical form and returns
// it with the semicolon-joined signed header list.
func canonicalRequest(r *http.Request, payloadHash string) (string, string) {
	headers := canonicalHeaders(r)
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var headerBlock strings.Builder
	for _, name := range names {
		headerBlock.WriteString(name)
		headerBlock.WriteByte(':')
		headerBlock.WriteString(headers[name])
		headerBlock.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	canonReq := strings.Join([]string{
		strings.ToUpper(r.Method),
		canonicalPath(r.URL),
		canonicalQuery(r.URL.Query()),
		headerBlock.String(),
		signedHeaders,
		payloadHash,
	}, "\n")

	return canonReq, signedHeaders
}

// canonicalHeaders collects the signable headers: lower-cased names, trimmed
// values with internal runs of spaces collapsed, multi-valued headers joined
// with commas. The host header always participates.
func canonicalHeaders(r *http.Request) map[string]string {
	out := map[string]string{
		"host": hostOf(r),
	}
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if ignoredHeaders[lower] || lower == "host" {
			continue
		}
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = collapseSpaces(v)
		}
		out[lower] = strings.Join(trimmed, ",")
	}
	return out
}

func hostOf(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.URL.Host
}

// canonicalPath normalizes the request path per RFC 3986: dot segments are
// resolved, a trailing slash is preserved, and each segment is
// percent-encoded with the signing reserved-character set (slashes kept).
func canonicalPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		cleaned = "/"
	}
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return uriEncode(cleaned, false)
}

// canonicalQuery renders query parameters sorted by encoded name then value,
// percent-encoded with the signing reserved-character set. This encoding is
// stricter than generic URL encoding: space is %20 (never +), and only
// unreserved characters escape encoding.
func canonicalQuery(query url.Values) string {
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		encodedName := uriEncode(name, true)
		for _, value := range values {
			parts = append(parts, encodedName+"="+uriEncode(value, true))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode percent-encodes s with the signing character set: unreserved
// characters (alphanumerics and -_.~) pass through, everything else is
// uppercase percent-encoded. encodeSlash controls whether "/" is escaped,
// it stays literal inside paths and is escaped inside query components.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) && !encodeSlash:
			// Already-escaped path octet from EscapedPath; keep as-is to
			// avoid double encoding.
			b.WriteString(strings.ToUpper(s[i : i+3]))
			i += 2
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// deriveKey walks the HMAC chain from the secret through date, region,
// service, and the fixed terminator, so the long-lived secret itself never
// signs a request directly.
func deriveKey(secret, shortDate, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(shortDate))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(terminator))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashPayload(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	return hexSHA256(body)
}
