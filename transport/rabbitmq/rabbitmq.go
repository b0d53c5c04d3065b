// Package rabbitmq provides a RabbitMQ/AMQP transport for streamflow.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

// ExchangeType is the type of the exchanges declared for named exchanges.
const ExchangeType = "direct"

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the reply subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.RabbitMQCapabilities)
}

func init() {
	Register()
}

// Build creates a new RabbitMQ transport sharing one connection between the
// publishers of every exchange and the reply subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	producer, err := NewProducer(cfg, logger, conn)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return transport.Transport{}, err
	}

	return transport.Transport{
		Producer:     producer,
		Capabilities: transport.RabbitMQCapabilities,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}

// ExchangeConfig returns the Watermill AMQP config for publishing through
// exchange with the topic as routing key. An empty exchange is the default
// exchange, which routes straight to the queue named by the routing key.
func ExchangeConfig(url, exchange string) amqp.Config {
	cfg := amqp.NewDurableQueueConfig(url)
	if exchange == "" {
		return cfg
	}
	cfg.Exchange = amqp.ExchangeConfig{
		GenerateName: func(string) string { return exchange },
		Type:         ExchangeType,
		Durable:      true,
	}
	cfg.Publish.GenerateRoutingKey = func(topic string) string { return topic }
	return cfg
}

// Producer publishes through one Watermill publisher per exchange. The
// publishers are created on first use.
type Producer struct {
	url    string
	conn   *amqp.ConnectionWrapper
	logger watermill.LoggerAdapter

	mu        sync.Mutex
	exchanges map[string]*transport.WatermillProducer
	closed    bool
}

// NewProducer creates the default exchange publisher and the reply
// subscriber on conn.
func NewProducer(cfg transport.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (*Producer, error) {
	url := cfg.GetRabbitMQURL()
	queueConfig := ExchangeConfig(url, "")

	pub, err := PublisherFactory(queueConfig, logger, conn)
	if err != nil {
		return nil, err
	}
	sub, err := SubscriberFactory(queueConfig, logger, conn)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	requester, err := transport.NewRequester(transport.RequesterConfig{
		Broker:     TransportName,
		Publisher:  pub,
		Subscriber: sub,
		ReplyTopic: cfg.GetReplyTopic(),
		Timeout:    cfg.GetRequestTimeout(),
		Logger:     logger,
	})
	if err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return nil, err
	}

	return &Producer{
		url:    url,
		conn:   conn,
		logger: logger,
		exchanges: map[string]*transport.WatermillProducer{
			"": {
				Broker:    TransportName,
				Publisher: pub,
				Requester: requester,
				Closers:   []func() error{sub.Close},
			},
		},
	}, nil
}

func (p *Producer) forExchange(exchange string) (*transport.WatermillProducer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errspkg.ErrProducerClosed
	}
	if producer, ok := p.exchanges[exchange]; ok {
		return producer, nil
	}

	pub, err := PublisherFactory(ExchangeConfig(p.url, exchange), p.logger, p.conn)
	if err != nil {
		return nil, errspkg.NewTransportError(TransportName, "declare exchange", exchange, err)
	}
	p.logger.Debug("Created exchange publisher", watermill.LogFields{"exchange": exchange})
	producer := &transport.WatermillProducer{Broker: TransportName, Publisher: pub}
	p.exchanges[exchange] = producer
	return producer, nil
}

// Publish sends the envelope body through its exchange.
func (p *Producer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	producer, err := p.forExchange(env.Destination.Exchange)
	if err != nil {
		return nil, err
	}
	return producer.Publish(ctx, env)
}

// Request sends the envelope body through the default exchange and waits for
// the reply on the reply queue.
func (p *Producer) Request(ctx context.Context, env *publisher.Envelope) (*publisher.Reply, error) {
	if env.Destination.Exchange != "" {
		return nil, errspkg.NewSetupError(fmt.Sprintf("rabbitmq: request through exchange %q", env.Destination.Exchange), errspkg.ErrUnsupportedOption)
	}
	producer, err := p.forExchange("")
	if err != nil {
		return nil, err
	}
	return producer.Request(ctx, env)
}

// Close closes every exchange publisher, the reply subscriber and the
// connection.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, producer := range p.exchanges {
		errs = append(errs, producer.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// NewPublisher declares a publisher sending with routingKey, through the
// default exchange unless WithExchange is given.
func NewPublisher(routingKey string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.RabbitMQCapabilities
	s := publisher.NewSettings(caps.Protocol, routingKey, opts...)

	exchange := s.Destination.Exchange
	base := exchange
	if base == "" {
		base = "_"
	}
	s.BaseName = s.Destination.Name + ":" + base

	channel := map[string]any{
		"is":    "routingKey",
		"queue": map[string]any{"name": s.Destination.Name, "durable": true},
	}
	if exchange != "" {
		channel["exchange"] = map[string]any{"name": exchange, "type": ExchangeType, "durable": true}
	}
	operation := map[string]any{
		"cc":           []string{s.Destination.Name},
		"deliveryMode": 2,
	}
	if s.ReplyTo != "" {
		operation["replyTo"] = s.ReplyTo
	}
	return transport.NewPublisher(caps, s, transport.BindingFields{Channel: channel, Operation: operation})
}
