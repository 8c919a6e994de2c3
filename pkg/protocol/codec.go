package protocol

import (
	"fmt"
)

// Codec encodes a request spec into wire form and decodes a raw response
// into a Result or a classified error. Codecs are stateless and safe for
// concurrent use.
type Codec interface {
	Encode(spec *RequestSpec) (*EncodedRequest, error)
	Decode(spec *RequestSpec, resp *RawResponse) (*Result, error)
}

var codecs = map[Protocol]Codec{
	Query:    &queryCodec{},
	JSONRPC:  &jsonCodec{},
	RESTXML:  &restCodec{json: false},
	RESTJSON: &restCodec{json: true},
}

// ForProtocol returns the codec for the given wire family.
func ForProtocol(p Protocol) (Codec, error) {
	codec, ok := codecs[p]
	if !ok {
		return nil, fmt.Errorf("unsupported protocol %q", p)
	}
	return codec, nil
}
