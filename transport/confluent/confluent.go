// Package confluent provides a Kafka transport for streamflow built on
// franz-go. It accepts the same publishers as the kafka transport.
package confluent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/drblury/streamflow/internal/runtime/codec"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
	"github.com/drblury/streamflow/transport/kafka"
)

// TransportName is the name used to register this transport.
const TransportName = "confluent"

// Client is the part of *kgo.Client the producer uses.
type Client interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// ClientFactory allows overriding the client creation for testing.
var ClientFactory = func(opts ...kgo.Opt) (Client, error) {
	return kgo.NewClient(opts...)
}

// Register registers the confluent transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.ConfluentCapabilities)
}

func init() {
	Register()
}

// Build creates a new franz-go Kafka transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, fmt.Errorf("at least one broker address is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RecordPartitioner(NewPartitioner()),
	}
	if clientID := cfg.GetKafkaClientID(); clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}

	client, err := ClientFactory(opts...)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	logger.Info("Created franz-go Kafka client", watermill.LogFields{"brokers": brokers})

	return transport.Transport{
		Producer:     NewProducer(client, codec.Default()),
		Capabilities: transport.ConfluentCapabilities,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ConfluentCapabilities
}

// Producer sends envelopes as Kafka records with ProduceSync.
type Producer struct {
	client Client
	codec  codec.Codec

	closed atomic.Bool
}

// NewProducer wraps client. Request is not supported on Kafka.
func NewProducer(client Client, c codec.Codec) *Producer {
	return &Producer{client: client, codec: c.OrDefault()}
}

// Publish produces one record and returns it with its partition and offset.
func (p *Producer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	records, err := p.produce(ctx, env, []any{env.Body})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// PublishBatch produces every batch item in one ProduceSync call and returns
// the records in order.
func (p *Producer) PublishBatch(ctx context.Context, env *publisher.Envelope) (any, error) {
	if len(env.Batch) == 0 {
		return []*kgo.Record{}, nil
	}
	return p.produce(ctx, env, env.Batch)
}

// Request is not available on Kafka.
func (p *Producer) Request(context.Context, *publisher.Envelope) (*publisher.Reply, error) {
	return nil, errspkg.ErrFeatureNotSupported
}

// Close closes the client without waiting for in-flight sends, which the
// client fails. Later sends fail with ErrProducerClosed.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.Close()
	return nil
}

func (p *Producer) produce(ctx context.Context, env *publisher.Envelope, bodies []any) ([]*kgo.Record, error) {
	if p.closed.Load() {
		return nil, errspkg.ErrProducerClosed
	}

	records := make([]*kgo.Record, 0, len(bodies))
	for _, body := range bodies {
		record, err := p.record(env, body)
		if err != nil {
			return nil, errspkg.NewTransportError(TransportName, "encode", env.Destination.Name, err)
		}
		if err := transport.ConfluentCapabilities.CheckMessageSize(env.Destination.Name, record.Value); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	op := "publish"
	if env.Kind == publisher.KindBatch {
		op = "publish batch"
	}
	results := p.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return nil, errspkg.NewTransportError(TransportName, op, env.Destination.Name, err)
	}
	if len(results) != len(records) {
		return nil, errspkg.NewTransportError(TransportName, op, env.Destination.Name,
			errors.New("client returned fewer results than records"))
	}

	produced := make([]*kgo.Record, len(results))
	for i, result := range results {
		produced[i] = result.Record
	}
	return produced, nil
}

func (p *Producer) record(env *publisher.Envelope, body any) (*kgo.Record, error) {
	payload, contentType, err := p.codec.Parse(body)
	if err != nil {
		return nil, err
	}
	headers := env.WireHeaders(contentType)

	record := &kgo.Record{
		Topic:     env.Destination.Name,
		Value:     payload,
		Partition: unpinned,
		Headers:   make([]kgo.RecordHeader, 0, len(headers)),
	}
	if len(env.Destination.Key) > 0 {
		record.Key = env.Destination.Key
	}
	if env.Destination.Partition != nil {
		record.Partition = *env.Destination.Partition
	}

	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: key, Value: []byte(headers[key])})
	}
	return record, nil
}

// NewPublisher declares a Kafka publisher sending to topic through franz-go.
func NewPublisher(topic string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.ConfluentCapabilities
	s := publisher.NewSettings(caps.Protocol, topic, opts...)
	return transport.NewPublisher(caps, s, kafka.BindingFields(s))
}
