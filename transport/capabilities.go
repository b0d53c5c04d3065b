package transport

import (
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/specification"
)

// Capabilities describes the features supported by a transport backend.
type Capabilities struct {
	// Name is the transport name used in config and error messages.
	Name string

	// Protocol tags the bindings and servers in the specification document.
	Protocol specification.Protocol

	// SupportsBatching indicates one transport call can send several messages.
	// When false, batches are sent as an ordered loop of single publishes.
	SupportsBatching bool

	// SupportsRequest indicates the transport can await a reply.
	SupportsRequest bool

	// SupportsPartitioning indicates messages can be pinned to a partition.
	SupportsPartitioning bool

	// SupportsKeys indicates messages can carry a key.
	SupportsKeys bool

	// SupportsExchanges indicates messages are routed through named exchanges.
	SupportsExchanges bool

	// MaxBatchSize is the largest batch one transport call accepts (0 = unlimited).
	MaxBatchSize int

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// Features returns the per-message options a publisher may use on this transport.
func (c Capabilities) Features() publisher.Features {
	return publisher.Features{
		Keys:       c.SupportsKeys,
		Partitions: c.SupportsPartitioning,
		Exchanges:  c.SupportsExchanges,
	}
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		Protocol:         specification.ProtocolMemory,
		SupportsBatching: true,
		SupportsRequest:  true,
	}

	// KafkaCapabilities for Apache Kafka through Sarama.
	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		Protocol:             specification.ProtocolKafka,
		SupportsBatching:     true,
		SupportsPartitioning: true,
		SupportsKeys:         true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// ConfluentCapabilities for Apache Kafka through franz-go.
	ConfluentCapabilities = Capabilities{
		Name:                 "confluent",
		Protocol:             specification.ProtocolKafka,
		SupportsBatching:     true,
		SupportsPartitioning: true,
		SupportsKeys:         true,
		MaxMessageSize:       1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ/AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		Protocol:          specification.ProtocolAMQP,
		SupportsRequest:   true,
		SupportsExchanges: true,
	}

	// NATSCapabilities for NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:            "nats",
		Protocol:        specification.ProtocolNATS,
		SupportsRequest: true,
		MaxMessageSize:  1048576, // Default 1MB
	}

	// SQSCapabilities for AWS SQS transport.
	SQSCapabilities = Capabilities{
		Name:             "sqs",
		Protocol:         specification.ProtocolSQS,
		SupportsBatching: true,
		SupportsRequest:  true,
		MaxBatchSize:     10,
		MaxMessageSize:   262144, // 256KB
	}

	// HTTPCapabilities for HTTP-based transport.
	HTTPCapabilities = Capabilities{
		Name:     "http",
		Protocol: specification.ProtocolHTTP,
	}
)
