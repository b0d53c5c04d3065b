/*
Package runtime provides the broker and application lifecycle for streamflow.

# Architecture Overview

A Broker owns one transport connection, built from Config through the
transport registry, and the publishers that send through it. Publishers are
declared by the transport packages, registered on the Broker, and set up on
the shared producer when the Broker connects.

# Package Structure

## Broker (broker.go)

The Broker struct wires together:
  - The transport producer selected by Config.Broker
  - The registered publishers and their unique channel names
  - The broker middleware chain injected into every publisher
  - The AsyncAPI document built from the publishers

## Middleware (middleware.go, metrics.go)

Broker middlewares run on every publish call, after the publisher's own and
right before the producer:
  - Recoverer: panics become errors
  - LogMessages: debug logging of outgoing envelopes
  - Tracer: OpenTelemetry producer spans, propagated in headers
  - Metrics: Prometheus counters and histograms
  - Retry: opt-in exponential backoff for transport errors

## Application (app.go, hooks.go, docs_http.go)

App.Run connects the broker between lifecycle hooks, serves the docs, health
and metrics endpoints, and shuts everything down when its RunState stops.

# Sub-packages

  - codec/: Body encoding and decoding
  - config/: Broker configuration with validation
  - correlation/: Pending request table
  - errors/: Sentinel errors and error types
  - ids/: ULID generation for message and correlation ids
  - logging/: Logger interface and adapters
  - metadata/: Header names and helpers

# Usage Example

	cfg := &streamflow.Config{
		Broker:       "kafka",
		KafkaBrokers: []string{"localhost:9092"},
		DocsPort:     8080,
	}

	broker, err := streamflow.NewBroker(cfg, logger, streamflow.BrokerDependencies{})
	orders, err := kafka.NewPublisher("orders", streamflow.WithPayloadTypes(OrderCreated{}))
	err = broker.Register(orders)

	app, err := streamflow.NewApp(broker)
	err = app.Run(ctx, nil)
*/
package runtime
