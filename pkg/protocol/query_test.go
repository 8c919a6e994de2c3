package protocol

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

func TestQueryEncodeFlattening(t *testing.T) {
	spec := &RequestSpec{
		Protocol:   Query,
		Action:     "CreateStack",
		APIVersion: "2010-05-15",
		Params: map[string]any{
			"StackName":    "web",
			"Capabilities": []string{"CAPABILITY_IAM"},
			"Parameters": []any{
				map[string]any{"ParameterKey": "Env", "ParameterValue": "prod"},
				map[string]any{"ParameterKey": "Size", "ParameterValue": "3"},
			},
			"Tags":             map[string]string{"team": "infra"},
			"DisableRollback":  true,
			"TimeoutInMinutes": 30,
		},
	}

	encoded, err := (&queryCodec{}).Encode(spec)
	if err != nil {
		t.Fatal(err)
	}
	if encoded.Method != http.MethodPost || encoded.Path != "/" {
		t.Errorf("unexpected method/path: %s %s", encoded.Method, encoded.Path)
	}
	if ct := encoded.Headers.Get("Content-Type"); ct != "application/x-www-form-urlencoded; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}

	form, err := url.ParseQuery(string(encoded.Body))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"Action":                             "CreateStack",
		"Version":                            "2010-05-15",
		"StackName":                          "web",
		"Capabilities.member.1":              "CAPABILITY_IAM",
		"Parameters.member.1.ParameterKey":   "Env",
		"Parameters.member.1.ParameterValue": "prod",
		"Parameters.member.2.ParameterKey":   "Size",
		"Parameters.member.2.ParameterValue": "3",
		"Tags.team":                          "infra",
		"DisableRollback":                    "true",
		"TimeoutInMinutes":                   "30",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Errorf("form[%q] = %q, want %q", key, got, value)
		}
	}
	if len(form) != len(want) {
		t.Errorf("form has %d fields, want %d: %v", len(form), len(want), form)
	}
}

func TestQueryEncodeRequiresAction(t *testing.T) {
	if _, err := (&queryCodec{}).Encode(&RequestSpec{Protocol: Query}); err == nil {
		t.Fatal("expected an error for a missing action")
	}
}

func TestQueryDecodeResultContainer(t *testing.T) {
	body := []byte(`<DescribeStacksResponse xmlns="http://cloudformation.amazonaws.com/doc/2010-05-15/">
  <DescribeStacksResult>
    <Stacks>
      <member>
        <StackName>web</StackName>
        <StackStatus>CREATE_COMPLETE</StackStatus>
      </member>
      <member>
        <StackName>db</StackName>
        <StackStatus>UPDATE_IN_PROGRESS</StackStatus>
      </member>
    </Stacks>
  </DescribeStacksResult>
  <ResponseMetadata>
    <RequestId>req-123</RequestId>
  </ResponseMetadata>
</DescribeStacksResponse>`)

	result, err := (&queryCodec{}).Decode(
		&RequestSpec{Action: "DescribeStacks"},
		&RawResponse{StatusCode: 200, Headers: http.Header{}, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestID != "req-123" {
		t.Errorf("request id = %q", result.RequestID)
	}

	stacks := result.List("Stacks")
	if len(stacks) != 2 {
		t.Fatalf("expected 2 stacks, got %d", len(stacks))
	}
	first, ok := stacks[0].(map[string]any)
	if !ok {
		t.Fatalf("unexpected member shape %T", stacks[0])
	}
	if first["StackName"] != "web" || first["StackStatus"] != "CREATE_COMPLETE" {
		t.Errorf("unexpected first member %v", first)
	}
}

// Attributes and namespaces the decoder does not understand must be
// tolerated, never surfaced as failures.
func TestQueryDecodeToleratesAttributesAndNamespaces(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<GetThingResponse xmlns:ns2="http://example.com/extra">
  <GetThingResult>
    <ns2:Name kind="primary" ns2:weird="yes">value</ns2:Name>
    <Unknown><Deep attr="1">x</Deep></Unknown>
  </GetThingResult>
</GetThingResponse>`)

	result, err := (&queryCodec{}).Decode(
		&RequestSpec{Action: "GetThing"},
		&RawResponse{StatusCode: 200, Headers: http.Header{}, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	if result.Str("Name") != "value" {
		t.Errorf("namespaced element not extracted: %v", result.Data)
	}
	if result.Str("Unknown", "Deep") != "x" {
		t.Errorf("unknown nested element not preserved: %v", result.Data)
	}
}

func TestQueryDecodeErrorEnvelope(t *testing.T) {
	body := []byte(`<ErrorResponse>
  <Error>
    <Type>Sender</Type>
    <Code>Throttling</Code>
    <Message>Rate exceeded</Message>
  </Error>
  <RequestId>req-err-1</RequestId>
</ErrorResponse>`)

	_, err := (&queryCodec{}).Decode(
		&RequestSpec{Action: "DescribeStacks"},
		&RawResponse{StatusCode: 400, Headers: http.Header{}, Body: body})

	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "Throttling" || apiErr.Class != apierrors.ClassThrottling {
		t.Errorf("unexpected classification: %+v", apiErr)
	}
	if apiErr.RequestID != "req-err-1" {
		t.Errorf("request id = %q", apiErr.RequestID)
	}
}

func TestQueryDecodeUnparseableErrorBody(t *testing.T) {
	_, err := (&queryCodec{}).Decode(
		&RequestSpec{Action: "DescribeStacks"},
		&RawResponse{StatusCode: 503, Headers: http.Header{}, Body: []byte("upstream broke")})

	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for junk error body, got %T", err)
	}
	if apiErr.Class != apierrors.ClassTransient {
		t.Errorf("503 with junk body should classify transient, got %s", apiErr.Class)
	}
}

func TestQueryDecodeMalformedSuccessBody(t *testing.T) {
	_, err := (&queryCodec{}).Decode(
		&RequestSpec{Action: "DescribeStacks"},
		&RawResponse{StatusCode: 200, Headers: http.Header{}, Body: []byte("<unclosed")})

	var decodeErr *apierrors.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T: %v", err, err)
	}
}

// Round-trip: a parameter structure encoded to form fields and a synthetic
// XML response carrying the same structure decode back to the original,
// modulo type widening (numbers and booleans come back as strings).
func TestQueryRoundTrip(t *testing.T) {
	params := map[string]any{
		"QueueName": "jobs",
		"Attributes": map[string]any{
			"DelaySeconds":      "30",
			"VisibilityTimeout": "60",
		},
		"Tags": []any{"a", "b"},
	}

	spec := &RequestSpec{Protocol: Query, Action: "Echo", APIVersion: "2012-11-05", Params: params}
	if _, err := (&queryCodec{}).Encode(spec); err != nil {
		t.Fatal(err)
	}

	body := []byte(`<EchoResponse>
  <EchoResult>
    <QueueName>jobs</QueueName>
    <Attributes>
      <DelaySeconds>30</DelaySeconds>
      <VisibilityTimeout>60</VisibilityTimeout>
    </Attributes>
    <Tags>
      <member>a</member>
      <member>b</member>
    </Tags>
  </EchoResult>
</EchoResponse>`)

	result, err := (&queryCodec{}).Decode(spec, &RawResponse{StatusCode: 200, Headers: http.Header{}, Body: body})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"QueueName": "jobs",
		"Attributes": map[string]any{
			"DelaySeconds":      "30",
			"VisibilityTimeout": "60",
		},
		"Tags": []any{"a", "b"},
	}
	if !reflect.DeepEqual(result.Data, want) {
		t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", result.Data, want)
	}
}
