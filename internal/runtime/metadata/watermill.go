package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies Watermill metadata into Headers.
func FromWatermill(md message.Metadata) Headers {
	headers := make(Headers, len(md))
	for k, v := range md {
		headers[k] = v
	}
	return headers
}

// ToWatermill copies headers into a Watermill metadata map.
func ToWatermill(h Headers) message.Metadata {
	wm := make(message.Metadata, len(h))
	for k, v := range h {
		wm[k] = v
	}
	return wm
}
