package protocol

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/nimbusctl/nimbus/pkg/apierrors"
)

// queryCodec implements the form-encoded query protocol with XML responses.
//
// Parameters flatten into dotted form fields: nested maps become
// "Key.SubKey", lists become "Key.member.N" (1-based). The Action and
// Version fields select the operation.
type queryCodec struct{}

func (c *queryCodec) Encode(spec *RequestSpec) (*EncodedRequest, error) {
	if spec.Action == "" {
		return nil, fmt.Errorf("query protocol requires an action name")
	}

	values := url.Values{}
	values.Set("Action", spec.Action)
	if spec.APIVersion != "" {
		values.Set("Version", spec.APIVersion)
	}
	if err := flattenQuery(values, "", spec.Params); err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

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
		Body:    []byte(values.Encode()),
	}, nil
}

// flattenQuery writes params under prefix. Map keys are visited in sorted
// order so encoding is deterministic.
func flattenQuery(values url.Values, prefix string, param any) error {
	switch v := param.(type) {
	case nil:
		return nil
	case map[string]any:
		for _, key := range sortedKeys(v) {
			if err := flattenQuery(values, joinPrefix(prefix, key), v[key]); err != nil {
				return err
			}
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			values.Set(joinPrefix(prefix, key), v[key])
		}
	case []any:
		for i, item := range v {
			if err := flattenQuery(values, fmt.Sprintf("%s.member.%d", prefix, i+1), item); err != nil {
				return err
			}
		}
	case []string:
		for i, item := range v {
			values.Set(fmt.Sprintf("%s.member.%d", prefix, i+1), item)
		}
	case []map[string]any:
		for i, item := range v {
			if err := flattenQuery(values, fmt.Sprintf("%s.member.%d", prefix, i+1), item); err != nil {
				return err
			}
		}
	case string:
		values.Set(prefix, v)
	case bool:
		values.Set(prefix, strconv.FormatBool(v))
	case int:
		values.Set(prefix, strconv.Itoa(v))
	case int64:
		values.Set(prefix, strconv.FormatInt(v, 10))
	case float64:
		values.Set(prefix, strconv.FormatFloat(v, 'f', -1, 64))
	case time.Time:
		values.Set(prefix, v.UTC().Format(time.RFC3339))
	default:
		return fmt.Errorf("unsupported query parameter type %T at %q", param, prefix)
	}
	return nil
}

func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (c *queryCodec) Decode(spec *RequestSpec, resp *RawResponse) (*Result, error) {
	root, parseErr := parseXML(resp.Body)

	if resp.StatusCode >= 300 {
		return nil, decodeXMLError(root, parseErr, resp)
	}
	if parseErr != nil {
		if len(resp.Body) == 0 {
			return &Result{StatusCode: resp.StatusCode, RequestID: resp.RequestID(), Data: map[string]any{}}, nil
		}
		return nil, &apierrors.DecodeError{Protocol: string(Query), Err: parseErr}
	}

	// A well-formed error envelope can arrive with a 200 on some services.
	if root.name == "ErrorResponse" {
		return nil, decodeXMLError(root, nil, resp)
	}

	requestID := resp.RequestID()
	if meta := root.find("ResponseMetadata"); meta != nil {
		if id := meta.child("RequestId"); id != nil {
			requestID = id.text
		}
	}

	// Successful responses wrap the payload in "<Action>Result"; decode
	// that container when present, otherwise the root's own children
	// minus the metadata envelope.
	container := root
	if spec.Action != "" {
		if result := root.child(spec.Action + "Result"); result != nil {
			container = result
		}
	}

	data := map[string]any{}
	if v, ok := container.value().(map[string]any); ok {
		delete(v, "ResponseMetadata")
		data = v
	}

	return &Result{
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
		Raw:        resp.Body,
		Data:       data,
	}, nil
}

// decodeXMLError extracts the common XML error envelope:
//
//	<ErrorResponse><Error><Code>..</Code><Message>..</Message></Error>...
//
// Responses whose body cannot be parsed still classify by HTTP status.
func decodeXMLError(root *xmlNode, parseErr error, resp *RawResponse) error {
	apiErr := apierrors.New("", "", resp.StatusCode)
	apiErr.RequestID = resp.RequestID()

	if parseErr != nil || root == nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	errNode := root
	if found := root.find("Error"); found != nil {
		errNode = found
	}
	code := ""
	message := ""
	if n := errNode.child("Code"); n != nil {
		code = n.text
	}
	if n := errNode.child("Message"); n != nil {
		message = n.text
	}
	if id := root.find("RequestId"); id != nil {
		apiErr.RequestID = id.text
	}

	classified := apierrors.New(code, message, resp.StatusCode)
	classified.RequestID = apiErr.RequestID
	return classified
}
