// Package kafka provides a Kafka transport for streamflow built on
// watermill-kafka and Sarama.
package kafka

import (
	"context"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// Metadata keys that carry the addressing of a message to the marshaler.
// They are removed before the message reaches the broker.
const (
	keyMetadata       = "_streamflow_key"
	partitionMetadata = "_streamflow_partition"
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

func init() {
	Register()
}

// Build creates a new Kafka transport. Every message is sent synchronously;
// a batch is handed to the client in one Publish call.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	saramaConfig := kafka.DefaultSaramaSyncPublisherConfig()
	saramaConfig.Producer.Partitioner = NewPartitioner
	if clientID := cfg.GetKafkaClientID(); clientID != "" {
		saramaConfig.ClientID = clientID
	}

	pub, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               cfg.GetKafkaBrokers(),
			Marshaler:             Marshaler{},
			OverwriteSaramaConfig: saramaConfig,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Producer:     NewProducer(pub),
		Capabilities: transport.KafkaCapabilities,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// Producer sends envelopes through a Watermill Kafka publisher, carrying the
// message key and pinned partition to the Marshaler.
type Producer struct {
	transport.WatermillProducer
}

// NewProducer wraps pub. Request is not supported on Kafka.
func NewProducer(pub message.Publisher) *Producer {
	return &Producer{WatermillProducer: transport.WatermillProducer{
		Broker:         TransportName,
		Publisher:      pub,
		MaxMessageSize: transport.KafkaCapabilities.MaxMessageSize,
	}}
}

func (p *Producer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	return p.WatermillProducer.Publish(ctx, addressed(env))
}

func (p *Producer) PublishBatch(ctx context.Context, env *publisher.Envelope) (any, error) {
	return p.WatermillProducer.PublishBatch(ctx, addressed(env))
}

// addressed returns a copy of env whose headers carry key and partition.
func addressed(env *publisher.Envelope) *publisher.Envelope {
	if len(env.Destination.Key) == 0 && env.Destination.Partition == nil {
		return env
	}
	out := *env
	out.Headers = env.Headers.Clone()
	if len(env.Destination.Key) > 0 {
		out.Headers[keyMetadata] = string(env.Destination.Key)
	}
	if env.Destination.Partition != nil {
		out.Headers[partitionMetadata] = strconv.FormatInt(int64(*env.Destination.Partition), 10)
	}
	return &out
}

// Marshaler is the watermill-kafka DefaultMarshaler plus message keys and
// pinned partitions.
type Marshaler struct {
	kafka.DefaultMarshaler
}

// pinned marks a ProducerMessage whose Partition must be honoured.
type pinned struct{}

func (m Marshaler) Marshal(topic string, msg *message.Message) (*sarama.ProducerMessage, error) {
	key := msg.Metadata.Get(keyMetadata)
	partition := msg.Metadata.Get(partitionMetadata)
	delete(msg.Metadata, keyMetadata)
	delete(msg.Metadata, partitionMetadata)

	pm, err := m.DefaultMarshaler.Marshal(topic, msg)
	if err != nil {
		return nil, err
	}
	if key != "" {
		pm.Key = sarama.ByteEncoder(key)
	}
	if partition != "" {
		value, err := strconv.ParseInt(partition, 10, 32)
		if err != nil {
			return nil, err
		}
		pm.Partition = int32(value)
		pm.Metadata = pinned{}
	}
	return pm, nil
}

// NewPartitioner is a sarama.PartitionerConstructor that honours pinned
// partitions and falls back to hashing the key.
func NewPartitioner(topic string) sarama.Partitioner {
	return &partitioner{fallback: sarama.NewHashPartitioner(topic)}
}

type partitioner struct {
	fallback sarama.Partitioner
}

func (p *partitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if _, ok := msg.Metadata.(pinned); ok {
		if msg.Partition < 0 || msg.Partition >= numPartitions {
			return -1, sarama.ErrInvalidPartition
		}
		return msg.Partition, nil
	}
	return p.fallback.Partition(msg, numPartitions)
}

func (p *partitioner) RequiresConsistency() bool { return true }

// NewPublisher declares a Kafka publisher sending to topic.
func NewPublisher(topic string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.KafkaCapabilities
	s := publisher.NewSettings(caps.Protocol, topic, opts...)
	return transport.NewPublisher(caps, s, BindingFields(s))
}

// BindingFields returns the Kafka bindings of s. Both Kafka transports use them.
func BindingFields(s publisher.Settings) transport.BindingFields {
	return transport.BindingFields{
		Channel: map[string]any{"topic": s.Destination.Name},
	}
}
