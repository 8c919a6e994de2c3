package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// restCodec implements the REST protocol families: the action is implied by
// HTTP method and path, and the body is a direct XML or JSON document
// mirroring the resource shape.
type restCodec struct {
	json bool
}

func (c *restCodec) Encode(spec *RequestSpec) (*EncodedRequest, error) {
	if spec.Method == "" {
		return nil, fmt.Errorf("rest protocol requires an explicit HTTP method")
	}
	path := spec.Path
	if path == "" {
		path = "/"
	}

	headers := http.Header{}
	body := spec.Body
	if body == nil && spec.Params != nil {
		if !c.json {
			return nil, fmt.Errorf("rest-xml requests take a pre-encoded body, not params")
		}
		encoded, err := json.Marshal(spec.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rest-json body: %w", err)
		}
		body = encoded
	}
	if len(body) > 0 {
		if c.json {
			headers.Set("Content-Type", "application/json")
		} else {
			headers.Set("Content-Type", "application/xml")
		}
	}

	return &EncodedRequest{
		Method:  spec.Method,
		Path:    path,
		Query:   spec.Query,
		Headers: headers,
		Body:    body,
	}, nil
}

func (c *restCodec) Decode(_ *RequestSpec, resp *RawResponse) (*Result, error) {
	if looksLikeJSON(resp) {
		return c.decodeJSON(resp)
	}
	return c.decodeXML(resp)
}

func looksLikeJSON(resp *RawResponse) bool {
	ct := resp.Headers.Get("Content-Type")
	switch {
	case bytes.HasPrefix(bytes.TrimSpace(resp.Body), []byte("<")):
		return false
	case len(bytes.TrimSpace(resp.Body)) == 0:
		return true
	default:
		return ct == "" || ct == "application/json" ||
			bytes.HasPrefix(bytes.TrimSpace(resp.Body), []byte("{"))
	}
}

func (c *restCodec) decodeJSON(resp *RawResponse) (*Result, error) {
	if resp.StatusCode >= 300 {
		return nil, decodeJSONError(resp)
	}

	data := map[string]any{}
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			return nil, &apierrors.DecodeError{Protocol: string(RESTJSON), Err: err}
		}
	}
	return &Result{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Raw:        resp.Body,
		Data:       data,
	}, nil
}

func (c *restCodec) decodeXML(resp *RawResponse) (*Result, error) {
	root, parseErr := parseXML(resp.Body)

	if resp.StatusCode >= 300 || (parseErr == nil && (root.name == "ErrorResponse" || root.name == "Error")) {
		return nil, decodeXMLError(root, parseErr, resp)
	}
	if parseErr != nil {
		return nil, &apierrors.DecodeError{Protocol: string(RESTXML), Err: parseErr}
	}

	data := map[string]any{}
	if v, ok := root.value().(map[string]any); ok {
		data = v
	} else {
		data[root.name] = root.value()
	}

	return &Result{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Raw:        resp.Body,
		Data:       data,
	}, nil
}
