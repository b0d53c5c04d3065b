package publisher

import (
	"time"

	"github.com/drblury/streamflow/internal/runtime/codec"
	"github.com/drblury/streamflow/internal/runtime/ids"
	"github.com/drblury/streamflow/internal/runtime/metadata"
)

// Kind tells the producer how an envelope must be sent.
type Kind int

const (
	KindPublish Kind = iota
	KindBatch
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindPublish:
		return "publish"
	case KindBatch:
		return "batch"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Destination addresses a message on the broker. Exchange, Key and Partition
// are only honoured by the brokers that have them.
type Destination struct {
	Name      string
	Exchange  string
	Key       []byte
	Partition *int32
}

// Envelope is one outgoing call: a single body, or a batch of bodies, along
// with everything the producer needs to put it on the wire.
type Envelope struct {
	Kind          Kind
	Destination   Destination
	Body          any
	Batch         []any
	CorrelationID string
	ReplyTo       string
	Headers       metadata.Headers
	// Timeout bounds Request. Zero lets the producer apply its default.
	Timeout time.Duration
}

// Len returns how many messages the envelope produces.
func (e *Envelope) Len() int {
	if e.Kind == KindBatch {
		return len(e.Batch)
	}
	return 1
}

// Single returns a copy of the envelope carrying only body, for producers
// that send batches message by message.
func (e *Envelope) Single(body any) *Envelope {
	single := *e
	single.Kind = KindPublish
	single.Body = body
	single.Batch = nil
	single.Headers = e.Headers.Clone()
	return &single
}

// WireHeaders returns the headers to transmit: user headers plus the
// correlation id, reply destination, message id and content type.
func (e *Envelope) WireHeaders(contentType string) metadata.Headers {
	headers := e.Headers.Clone()
	headers[metadata.HeaderCorrelationID] = e.CorrelationID
	headers[metadata.HeaderMessageID] = ids.CreateULID()
	if e.ReplyTo != "" {
		headers[metadata.HeaderReplyTo] = e.ReplyTo
	}
	if contentType != "" {
		headers[metadata.HeaderContentType] = contentType
	}
	return headers
}

// Reply is the answer to a Request.
type Reply struct {
	// Body is the payload after the producer's decoder ran.
	Body          any
	Payload       []byte
	ContentType   string
	CorrelationID string
	Headers       metadata.Headers
}

// Decode unmarshals the raw reply payload into target.
func (r *Reply) Decode(target any) error {
	return codec.DecodeInto(r.Payload, target)
}

// NewReply decodes payload with dec and collects the reply headers.
func NewReply(dec codec.Decoder, payload []byte, headers metadata.Headers) (*Reply, error) {
	if dec == nil {
		dec = codec.Decode
	}
	contentType := headers[metadata.HeaderContentType]
	body, err := dec(payload, contentType)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Body:          body,
		Payload:       payload,
		ContentType:   contentType,
		CorrelationID: headers[metadata.HeaderCorrelationID],
		Headers:       headers,
	}, nil
}
