// Package codec converts message bodies to wire payloads and back.
package codec

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Content types produced by Encode.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// Parser turns a message body into its payload and content type.
type Parser func(body any) (payload []byte, contentType string, err error)

// Decoder turns a received payload back into a Go value.
type Decoder func(payload []byte, contentType string) (any, error)

// Codec is the parser/decoder pair a producer is built with.
type Codec struct {
	Parse  Parser
	Decode Decoder
}

// Default returns the JSON-first codec used when a producer is not given one.
func Default() Codec {
	return Codec{Parse: Encode, Decode: Decode}
}

// OrDefault fills missing functions with the defaults.
func (c Codec) OrDefault() Codec {
	if c.Parse == nil {
		c.Parse = Encode
	}
	if c.Decode == nil {
		c.Decode = Decode
	}
	return c
}

// Encode is the default Parser. Raw bytes pass through untouched, strings are
// sent as text, protobuf messages use protojson and everything else is JSON.
func Encode(body any) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return v, "", nil
	case string:
		return []byte(v), ContentTypeText, nil
	case proto.Message:
		payload, err := protojson.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode %T: %w", body, err)
		}
		return payload, ContentTypeJSON, nil
	default:
		payload, err := MarshalJSON(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode %T: %w", body, err)
		}
		return payload, ContentTypeJSON, nil
	}
}

// Decode is the default Decoder, the inverse of Encode for untyped values.
func Decode(payload []byte, contentType string) (any, error) {
	switch mediaType(contentType) {
	case ContentTypeJSON:
		if len(payload) == 0 {
			return nil, nil
		}
		var v any
		if err := UnmarshalJSON(payload, &v); err != nil {
			return nil, fmt.Errorf("decode json payload: %w", err)
		}
		return v, nil
	case ContentTypeText:
		return string(payload), nil
	default:
		return payload, nil
	}
}

// DecodeInto decodes a JSON payload into target, or a protojson payload when
// target is a proto.Message.
func DecodeInto(payload []byte, target any) error {
	if msg, ok := target.(proto.Message); ok {
		return protojson.Unmarshal(payload, msg)
	}
	return UnmarshalJSON(payload, target)
}

func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
