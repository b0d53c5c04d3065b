// Package nats provides a NATS Core transport for streamflow. Messages use the
// watermill-nats wire format; requests use the native NATS inbox.
package nats

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/streamflow/internal/runtime/codec"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// ConnectionName identifies streamflow connections on the NATS server.
const ConnectionName = "streamflow"

// Conn is the part of *nats.Conn the producer uses.
type Conn interface {
	PublishMsg(m *natsgo.Msg) error
	RequestMsgWithContext(ctx context.Context, m *natsgo.Msg) (*natsgo.Msg, error)
	Drain() error
}

// ConnFactory allows overriding the connection creation for testing.
var ConnFactory = func(url string, opts ...natsgo.Option) (Conn, error) {
	return natsgo.Connect(url, opts...)
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
}

func init() {
	Register()
}

// Build connects to NATS and returns a transport publishing on that connection.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	conn, err := ConnFactory(url, natsgo.Name(ConnectionName))
	if err != nil {
		return transport.Transport{}, errspkg.NewTransportError(TransportName, "connect", url, err)
	}
	logger.Info("Connected to NATS", watermill.LogFields{"url": url})

	return transport.Transport{
		Producer:     NewProducer(conn, cfg.GetRequestTimeout()),
		Capabilities: transport.NATSCapabilities,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

// Producer publishes envelopes as NATS messages.
type Producer struct {
	conn      Conn
	marshaler *nats.NATSMarshaler
	codec     codec.Codec
	timeout   time.Duration

	closed atomic.Bool
}

// NewProducer wraps conn. timeout applies to requests that set none.
func NewProducer(conn Conn, timeout time.Duration) *Producer {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Producer{
		conn:      conn,
		marshaler: &nats.NATSMarshaler{},
		codec:     codec.Default(),
		timeout:   timeout,
	}
}

// Publish sends the envelope body and returns the message id.
func (p *Producer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	if p.closed.Load() {
		return nil, errspkg.ErrProducerClosed
	}

	msg, id, err := p.message(ctx, env)
	if err != nil {
		return nil, err
	}
	if env.ReplyTo != "" {
		msg.Reply = env.ReplyTo
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return nil, errspkg.NewTransportError(TransportName, "publish", env.Destination.Name, err)
	}
	return id, nil
}

// Request sends the envelope body to a fresh inbox and waits for the first
// response.
func (p *Producer) Request(ctx context.Context, env *publisher.Envelope) (*publisher.Reply, error) {
	if p.closed.Load() {
		return nil, errspkg.ErrProducerClosed
	}

	timeout := env.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	msg, _, err := p.message(ctx, env)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := p.conn.RequestMsgWithContext(reqCtx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, natsgo.ErrTimeout) {
			return nil, &errspkg.TimeoutError{Timeout: timeout, CorrelationID: env.CorrelationID}
		}
		return nil, errspkg.NewTransportError(TransportName, "request", env.Destination.Name, err)
	}

	wm, err := p.marshaler.Unmarshal(resp)
	if err != nil {
		return nil, err
	}
	reply, err := publisher.NewReply(p.codec.Decode, wm.Payload, metadata.FromWatermill(wm.Metadata))
	if err != nil {
		return nil, err
	}
	if reply.CorrelationID == "" {
		reply.CorrelationID = env.CorrelationID
	}
	return reply, nil
}

// Close drains the connection without waiting for in-flight requests. Later
// sends fail with ErrProducerClosed.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.Drain()
}

func (p *Producer) message(ctx context.Context, env *publisher.Envelope) (*natsgo.Msg, string, error) {
	wm, err := transport.NewMessage(ctx, p.codec.Parse, env, env.Body)
	if err != nil {
		return nil, "", errspkg.NewTransportError(TransportName, "encode", env.Destination.Name, err)
	}
	msg, err := p.marshaler.Marshal(env.Destination.Name, wm)
	if err != nil {
		return nil, "", errspkg.NewTransportError(TransportName, "encode", env.Destination.Name, err)
	}
	if err := transport.NATSCapabilities.CheckMessageSize(env.Destination.Name, msg.Data); err != nil {
		return nil, "", err
	}
	return msg, wm.UUID, nil
}

// NewPublisher declares a NATS publisher sending to subject.
func NewPublisher(subject string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.NATSCapabilities
	s := publisher.NewSettings(caps.Protocol, subject, opts...)

	fields := transport.BindingFields{
		Channel: map[string]any{"subject": s.Destination.Name},
	}
	if s.ReplyTo != "" {
		fields.Operation = map[string]any{"replyTo": map[string]any{"subject": s.ReplyTo}}
	}
	return transport.NewPublisher(caps, s, fields)
}
