package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// jsonCodec implements the JSON-RPC protocol: the operation travels in the
// X-Amz-Target header and the parameters as a JSON body.
type jsonCodec struct{}

func (c *jsonCodec) Encode(spec *RequestSpec) (*EncodedRequest, error) {
	if spec.Action == "" {
		return nil, fmt.Errorf("json-rpc protocol requires an action name")
	}

	target := spec.Action
	if spec.Target != "" {
		target = spec.Target + "." + spec.Action
	}

	version := spec.JSONVersion
	if version == "" {
		version = "1.1"
	}

	body := []byte("{}")
	if spec.Params != nil {
		encoded, err := json.Marshal(spec.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json-rpc parameters: %w", err)
		}
		body = encoded
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-amz-json-"+version)
	headers.Set("X-Amz-Target", target)

	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}
	path := spec.Path
	if path == "" {
		path = "/"
	}

	return &EncodedRequest{
		Method:  method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func (c *jsonCodec) Decode(_ *RequestSpec, resp *RawResponse) (*Result, error) {
	if resp.StatusCode >= 300 {
		return nil, decodeJSONError(resp)
	}

	data := map[string]any{}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			return nil, &apierrors.DecodeError{Protocol: string(JSONRPC), Err: err}
		}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		RequestID:  resp.RequestID(),
		Raw:        resp.Body,
		Data:       data,
	}, nil
}

// decodeJSONError extracts the JSON error envelope. The error type arrives
// as "__type" (optionally namespaced, "prefix#Code"), as "code", or in the
// X-Amzn-Errortype header; the message key's case varies by service.
func decodeJSONError(resp *RawResponse) error {
	body := string(resp.Body)

	code := gjson.Get(body, "__type").String()
	if code == "" {
		code = gjson.Get(body, "code").String()
	}
	if code == "" {
		code = resp.Headers.Get("X-Amzn-Errortype")
		// The header sometimes carries a trailing URI fragment.
		if i := strings.IndexByte(code, ':'); i >= 0 {
			code = code[:i]
		}
	}

	message := gjson.Get(body, "message").String()
	if message == "" {
		message = gjson.Get(body, "Message").String()
	}
	if code == "" && message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	apiErr := apierrors.New(code, message, resp.StatusCode)
	apiErr.RequestID = resp.RequestID()
	return apiErr
}
