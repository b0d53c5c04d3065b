package publisher

import "context"

// Producer is the broker-facing side of a publisher. One producer serves
// every publisher of a broker connection.
type Producer interface {
	// Publish sends env.Body as one message and returns the broker's result,
	// if it has one.
	Publish(ctx context.Context, env *Envelope) (any, error)
	// Request sends env.Body and waits for the reply carrying the same
	// correlation id.
	Request(ctx context.Context, env *Envelope) (*Reply, error)
}

// BatchProducer is implemented by producers that can send env.Batch in a
// single transport call. Publishers fall back to ordered Publish calls when
// the producer does not implement it.
type BatchProducer interface {
	PublishBatch(ctx context.Context, env *Envelope) (any, error)
}
