// Package protocol encodes typed request parameters into the provider's
// wire formats and decodes heterogeneous response bodies back into
// structured data or classified errors.
//
// Three wire families coexist: Query (form-encoded request, XML response),
// JSON-RPC (action in a transport header, JSON body both ways), and REST
// (action implied by method and path, XML or JSON body). Each family has a
// codec; all codecs recognize their family's error envelope and route it
// through the classifier instead of leaking parse failures.
package protocol

import (
	"net/http"
	"net/url"
)

// Protocol identifies a wire protocol family.
type Protocol string

const (
	// Query is the form-encoded query protocol with XML responses.
	Query Protocol = "query"

	// JSONRPC carries the action in the X-Amz-Target header and JSON
	// bodies in both directions.
	JSONRPC Protocol = "json-rpc"

	// RESTXML implies the action from method and path with XML bodies.
	RESTXML Protocol = "rest-xml"

	// RESTJSON implies the action from method and path with JSON bodies.
	RESTJSON Protocol = "rest-json"
)

// RequestSpec describes one logical API call before signing. It is created
// per call and consumed once; a retry builds a fresh signed request from the
// same spec because signatures are time-bound.
type RequestSpec struct {
	// Service is the provider service identifier, e.g. "cloudformation".
	Service string

	// Region is the regional endpoint to address.
	Region string

	// Method is the HTTP method. Query and JSON-RPC default to POST.
	Method string

	// Path is the request path. Defaults to "/".
	Path string

	// Query holds extra query string parameters for REST operations.
	Query url.Values

	// Headers holds caller-supplied headers merged into the request.
	Headers http.Header

	// Action is the logical operation name, used by the Query and
	// JSON-RPC protocols to select the operation.
	Action string

	// APIVersion is the service API version the Query protocol embeds in
	// the form body.
	APIVersion string

	// Target is the JSON-RPC target service prefix, e.g. "AmazonSQS".
	Target string

	// JSONVersion selects the JSON-RPC content type flavor, "1.0" or
	// "1.1" (default).
	JSONVersion string

	// Params are structured parameters encoded by the codec. Values may
	// be scalars, nested map[string]any, []any, or typed slices/maps of
	// strings.
	Params map[string]any

	// Body is a pre-encoded raw body for REST operations. When set it
	// takes precedence over Params.
	Body []byte

	// Protocol selects the wire family.
	Protocol Protocol
}

// EncodedRequest is the codec's output: everything the transport needs to
// build the HTTP request, plus the body bytes handed separately to the
// signer.
type EncodedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// RawResponse is the transport's view of one HTTP response: status, headers,
// and the drained body. It is handed to the matching codec and discarded.
type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// RequestID extracts the provider request id from the response headers, when
// present.
func (r *RawResponse) RequestID() string {
	if id := r.Headers.Get("X-Amzn-Requestid"); id != "" {
		return id
	}
	return r.Headers.Get("X-Amz-Request-Id")
}

// Result is a successfully decoded response. Data holds the structured body:
// XML elements and JSON objects become map[string]any, repeated elements and
// JSON arrays become []any, scalar leaves become strings (XML) or their JSON
// types.
type Result struct {
	StatusCode int
	RequestID  string
	Raw        []byte
	Data       map[string]any
}

// Str walks path through nested maps and returns the string leaf, or ""
// when the path is absent or not a scalar.
func (r *Result) Str(path ...string) string {
	v := r.walk(path)
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return ""
	}
}

// List walks path through nested maps and returns the slice leaf, or nil.
// A single element where a list was expected is wrapped, the Query protocol
// omits the container for one-element collections in some services.
func (r *Result) List(path ...string) []any {
	switch v := r.walk(path).(type) {
	case []any:
		return v
	case map[string]any:
		return []any{v}
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// Map walks path through nested maps and returns the map leaf, or nil.
func (r *Result) Map(path ...string) map[string]any {
	if m, ok := r.walk(path).(map[string]any); ok {
		return m
	}
	return nil
}

func (r *Result) walk(path []string) any {
	var cur any = r.Data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
