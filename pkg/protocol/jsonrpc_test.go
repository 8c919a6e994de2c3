package protocol

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

func TestJSONRPCEncode(t *testing.T) {
	spec := &RequestSpec{
		Protocol: JSONRPC,
		Action:   "CreateQueue",
		Target:   "AmazonSQS",
		Params:   map[string]any{"QueueName": "jobs"},
	}

	encoded, err := (&jsonCodec{}).Encode(spec)
	if err != nil {
		t.Fatal(err)
	}
	if got := encoded.Headers.Get("X-Amz-Target"); got != "AmazonSQS.CreateQueue" {
		t.Errorf("target header = %q", got)
	}
	if got := encoded.Headers.Get("Content-Type"); got != "application/x-amz-json-1.1" {
		t.Errorf("content type = %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(encoded.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["QueueName"] != "jobs" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestJSONRPCEncodeEmptyParams(t *testing.T) {
	encoded, err := (&jsonCodec{}).Encode(&RequestSpec{Protocol: JSONRPC, Action: "ListQueues"})
	if err != nil {
		t.Fatal(err)
	}
	if string(encoded.Body) != "{}" {
		t.Errorf("nil params should encode as an empty object, got %q", encoded.Body)
	}
}

func TestJSONRPCEncodeVersionOverride(t *testing.T) {
	encoded, err := (&jsonCodec{}).Encode(&RequestSpec{
		Protocol: JSONRPC, Action: "Query", Target: "DynamoDB_20120810", JSONVersion: "1.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := encoded.Headers.Get("Content-Type"); got != "application/x-amz-json-1.0" {
		t.Errorf("content type = %q", got)
	}
}

func TestJSONRPCDecode(t *testing.T) {
	resp := &RawResponse{
		StatusCode: 200,
		Headers:    http.Header{"X-Amzn-Requestid": {"req-9"}},
		Body:       []byte(`{"QueueUrl":"https://sqs.us-east-1.amazonaws.com/1/jobs"}`),
	}
	result, err := (&jsonCodec{}).Decode(&RequestSpec{}, resp)
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestID != "req-9" {
		t.Errorf("request id = %q", result.RequestID)
	}
	if result.Str("QueueUrl") == "" {
		t.Errorf("missing queue url in %v", result.Data)
	}
}

func TestJSONRPCDecodeErrorEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		headers  http.Header
		wantCode string
		wantCls  apierrors.Class
	}{
		{
			"namespaced type",
			`{"__type":"com.amazonaws.sqs#QueueDoesNotExist","message":"The specified queue does not exist."}`,
			http.Header{},
			"com.amazonaws.sqs#QueueDoesNotExist",
			apierrors.ClassNotFound,
		},
		{
			"bare type",
			`{"__type":"ThrottlingException","message":"Rate exceeded"}`,
			http.Header{},
			"ThrottlingException",
			apierrors.ClassThrottling,
		},
		{
			"errortype header fallback",
			`{"message":"denied"}`,
			http.Header{"X-Amzn-Errortype": {"AccessDeniedException:http://internal"}},
			"AccessDeniedException",
			apierrors.ClassFatal,
		},
		{
			"uppercase message key",
			`{"__type":"InternalFailure","Message":"boom"}`,
			http.Header{},
			"InternalFailure",
			apierrors.ClassTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&jsonCodec{}).Decode(&RequestSpec{}, &RawResponse{
				StatusCode: 400, Headers: tt.headers, Body: []byte(tt.body),
			})
			var apiErr *apierrors.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %T: %v", err, err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
			if apiErr.Class != tt.wantCls {
				t.Errorf("class = %s, want %s", apiErr.Class, tt.wantCls)
			}
		})
	}
}

func TestJSONRPCDecodeMalformedSuccessBody(t *testing.T) {
	_, err := (&jsonCodec{}).Decode(&RequestSpec{}, &RawResponse{
		StatusCode: 200, Headers: http.Header{}, Body: []byte("not json"),
	})
	var decodeErr *apierrors.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T", err)
	}
}
