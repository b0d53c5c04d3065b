package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamflow/internal/runtime/codec"
	"github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/publisher"
)

// NewMessage encodes body with parse and wraps it in a Watermill message
// carrying the wire headers of env. The message UUID is the message id header.
func NewMessage(ctx context.Context, parse codec.Parser, env *publisher.Envelope, body any) (*message.Message, error) {
	if parse == nil {
		parse = codec.Encode
	}
	payload, contentType, err := parse(body)
	if err != nil {
		return nil, err
	}
	headers := env.WireHeaders(contentType)
	msg := message.NewMessage(headers[metadata.HeaderMessageID], payload)
	msg.Metadata = metadata.ToWatermill(headers)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return msg, nil
}

// NewMessages returns one message per body in env: the single body for
// publish and request envelopes, every batch item in order otherwise.
func NewMessages(ctx context.Context, parse codec.Parser, env *publisher.Envelope) ([]*message.Message, error) {
	if env.Kind != publisher.KindBatch {
		msg, err := NewMessage(ctx, parse, env, env.Body)
		if err != nil {
			return nil, err
		}
		return []*message.Message{msg}, nil
	}

	msgs := make([]*message.Message, 0, len(env.Batch))
	for _, body := range env.Batch {
		msg, err := NewMessage(ctx, parse, env, body)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ReplyFromMessage decodes a received Watermill message into a Reply.
func ReplyFromMessage(dec codec.Decoder, msg *message.Message) (*publisher.Reply, error) {
	return publisher.NewReply(dec, msg.Payload, metadata.FromWatermill(msg.Metadata))
}

// UUIDs returns the message UUIDs, the publish result of Watermill producers.
func UUIDs(msgs []*message.Message) []string {
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.UUID
	}
	return out
}
