package metadata

import "strings"

// Header names set on every outgoing message.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderReplyTo       = "reply_to"
	HeaderContentType   = "content-type"
	HeaderMessageID     = "message_id"
)

var reserved = map[string]struct{}{
	HeaderCorrelationID: {},
	HeaderReplyTo:       {},
	HeaderContentType:   {},
	HeaderMessageID:     {},
}

// Headers represents the string headers carried alongside a message.
type Headers map[string]string

// Clone returns a shallow copy of the headers. The result is never nil.
func (h Headers) Clone() Headers {
	cloned := make(Headers, len(h))
	for k, v := range h {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy containing the provided key/value pair.
func (h Headers) With(key, value string) Headers {
	cloned := h.Clone()
	cloned[key] = value
	return cloned
}

// Merge layers the supplied header sets from lowest to highest precedence into
// a new map. Nil layers are skipped.
func Merge(layers ...Headers) Headers {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}
	merged := make(Headers, size)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// User returns the headers that are not managed by the framework.
func (h Headers) User() Headers {
	user := make(Headers, len(h))
	for k, v := range h {
		if IsReserved(k) {
			continue
		}
		user[k] = v
	}
	return user
}

// IsReserved reports whether key is one of the framework headers.
func IsReserved(key string) bool {
	_, ok := reserved[strings.ToLower(key)]
	return ok
}

// New constructs Headers from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(pairs ...string) Headers {
	h := make(Headers, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		h[pairs[i]] = pairs[i+1]
	}
	return h
}
