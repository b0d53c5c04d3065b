// Package streamflow is a broker-agnostic publishing layer with AsyncAPI
// generation. Publishers are declared against a broker (Kafka, Confluent
// Kafka, NATS, RabbitMQ, SQS, HTTP or Go channels), registered on a Broker
// built from Config, and bound to the broker's producer when it connects.
//
// A publisher sends single messages, ordered batches or, where the broker
// supports replies, requests. Every call runs through an onion of
// middlewares: the broker's first, then the publisher's, then the ones
// passed to the call. Options a broker cannot honour, such as a partition
// on NATS or a key on a batch publisher, fail at declaration time with a
// *SetupError.
//
// # Transports
//
// Importing streamflow registers all built-in transports:
//   - channel: In-memory Go channels for testing
//   - kafka: Watermill Kafka publisher on sarama
//   - confluent: franz-go client with native batching
//   - nats: Core NATS with native request/reply
//   - rabbitmq: AMQP exchanges and durable queues
//   - sqs: AWS SQS with SendMessageBatch and LocalStack support
//   - http: POST per message
//
// # Schema
//
// Broker.Schema builds an AsyncAPI 2.6.0 or 3.0.0 document from the
// registered publishers. Payload schemas come from the Go types given with
// WithPayloadTypes or Decorate. App serves the document on /asyncapi.json
// and /asyncapi.yaml when DocsPort is set.
//
// # Middleware
//
// The default broker chain recovers panics, logs envelopes, opens
// OpenTelemetry producer spans and records Prometheus metrics. Retries with
// exponential backoff are opt-in through RetryMiddleware.
package streamflow
