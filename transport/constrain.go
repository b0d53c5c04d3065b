package transport

import (
	"context"
	"fmt"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
)

// Constrain returns p limited to what caps allows. Without SupportsBatching
// the result hides PublishBatch, so publishers send batches as ordered single
// publishes; without SupportsRequest, Request fails with
// ErrFeatureNotSupported before reaching p.
func Constrain(p publisher.Producer, caps Capabilities) publisher.Producer {
	c := constrained{producer: p, caps: caps}
	if bp, ok := p.(publisher.BatchProducer); ok && caps.SupportsBatching {
		return batchConstrained{constrained: c, batch: bp}
	}
	return c
}

type constrained struct {
	producer publisher.Producer
	caps     Capabilities
}

func (c constrained) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	return c.producer.Publish(ctx, env)
}

func (c constrained) Request(ctx context.Context, env *publisher.Envelope) (*publisher.Reply, error) {
	if !c.caps.SupportsRequest {
		return nil, errspkg.ErrFeatureNotSupported
	}
	return c.producer.Request(ctx, env)
}

type batchConstrained struct {
	constrained
	batch publisher.BatchProducer
}

func (c batchConstrained) PublishBatch(ctx context.Context, env *publisher.Envelope) (any, error) {
	return c.batch.PublishBatch(ctx, env)
}

// CheckMessageSize fails with a *TransportError wrapping ErrMessageTooLarge
// when payload exceeds caps.MaxMessageSize. A zero limit accepts any size.
func (c Capabilities) CheckMessageSize(destination string, payload []byte) error {
	if c.MaxMessageSize <= 0 || int64(len(payload)) <= c.MaxMessageSize {
		return nil
	}
	return errspkg.NewTransportError(c.Name, "encode", destination,
		fmt.Errorf("%w: %d bytes, limit %d", errspkg.ErrMessageTooLarge, len(payload), c.MaxMessageSize))
}

// BatchChunks splits n items into [start, end) ranges of at most
// MaxBatchSize items. A zero limit yields one range.
func (c Capabilities) BatchChunks(n int) [][2]int {
	if n == 0 {
		return nil
	}
	size := c.MaxBatchSize
	if size <= 0 {
		size = n
	}
	chunks := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		chunks = append(chunks, [2]int{start, min(start+size, n)})
	}
	return chunks
}
