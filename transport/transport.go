// Package transport defines the core interfaces and types for streamflow transports.
// Each transport implementation (kafka, nats, rabbitmq, etc.) lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/streamflow/publisher"
)

// Producer is a publisher.Producer that owns a broker connection.
type Producer interface {
	publisher.Producer
	Close() error
}

// Transport is a connected producer along with what its broker can do.
type Transport struct {
	Producer     Producer
	Capabilities Capabilities
}

// Builder is the function signature for creating a transport from config.
// Each transport package provides a Builder that is registered under its name.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
// This interface allows transports to access only the config they need
// without depending on the full config package.
type Config interface {
	// GetBroker returns the transport name.
	GetBroker() string

	// Kafka, shared by the kafka and confluent transports.
	GetKafkaBrokers() []string
	GetKafkaClientID() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string

	// Request/reply
	GetReplyTopic() string
	GetRequestTimeout() time.Duration
}
