package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamflow/internal/runtime/codec"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
)

// WatermillProducer sends envelopes through a Watermill publisher. A batch is
// a single Publish call carrying every message. Request needs a Requester.
type WatermillProducer struct {
	Broker    string
	Publisher message.Publisher
	Codec     codec.Codec
	// MaxMessageSize rejects larger encoded bodies before sending (0 = no limit).
	MaxMessageSize int64
	// Validate, when set, checks every encoded message before sending.
	Validate func(*message.Message) error
	// Requester serves Request. Nil turns Request into ErrFeatureNotSupported.
	Requester *Requester
	// Closers run after the publisher is closed, for example a subscriber
	// owned by the producer.
	Closers []func() error
}

func (p *WatermillProducer) pair() codec.Codec { return p.Codec.OrDefault() }

func (p *WatermillProducer) encodeError(env *publisher.Envelope, err error) error {
	return errspkg.NewTransportError(p.Broker, "encode", env.Destination.Name, err)
}

// Encode builds the messages for env and enforces MaxMessageSize.
func (p *WatermillProducer) Encode(ctx context.Context, env *publisher.Envelope) ([]*message.Message, error) {
	msgs, err := NewMessages(ctx, p.pair().Parse, env)
	if err != nil {
		return nil, p.encodeError(env, err)
	}
	limits := Capabilities{Name: p.Broker, MaxMessageSize: p.MaxMessageSize}
	for _, msg := range msgs {
		if err := limits.CheckMessageSize(env.Destination.Name, msg.Payload); err != nil {
			return nil, err
		}
		if p.Validate != nil {
			if err := p.Validate(msg); err != nil {
				return nil, p.encodeError(env, err)
			}
		}
	}
	return msgs, nil
}

// Publish sends the envelope body and returns the message UUID.
func (p *WatermillProducer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	msgs, err := p.Encode(ctx, env)
	if err != nil {
		return nil, err
	}
	if err := p.Publisher.Publish(env.Destination.Name, msgs[0]); err != nil {
		return nil, errspkg.NewTransportError(p.Broker, "publish", env.Destination.Name, err)
	}
	return msgs[0].UUID, nil
}

// PublishBatch sends every batch item in one Publish call and returns the
// message UUIDs in order.
func (p *WatermillProducer) PublishBatch(ctx context.Context, env *publisher.Envelope) (any, error) {
	msgs, err := p.Encode(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []string{}, nil
	}
	if err := p.Publisher.Publish(env.Destination.Name, msgs...); err != nil {
		return nil, errspkg.NewTransportError(p.Broker, "publish batch", env.Destination.Name, err)
	}
	return UUIDs(msgs), nil
}

// Request sends the envelope body and waits for the correlated reply.
func (p *WatermillProducer) Request(ctx context.Context, env *publisher.Envelope) (*publisher.Reply, error) {
	if p.Requester == nil {
		return nil, errspkg.ErrFeatureNotSupported
	}
	msgs, err := p.Encode(ctx, env)
	if err != nil {
		return nil, err
	}
	reply, err := p.Requester.Request(ctx, env.Destination.Name, msgs[0], env.Timeout)
	if err != nil {
		return nil, err
	}
	return ReplyFromMessage(p.pair().Decode, reply)
}

// Close releases pending requests, then the publisher and any extra closers.
func (p *WatermillProducer) Close() error {
	var errs []error
	if p.Requester != nil {
		errs = append(errs, p.Requester.Close())
	}
	if p.Publisher != nil {
		errs = append(errs, p.Publisher.Close())
	}
	for _, closer := range p.Closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
