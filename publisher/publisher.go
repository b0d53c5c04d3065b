// Package publisher declares broker-bound publishers, binds them to a
// producer and derives their AsyncAPI channels.
package publisher

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/ids"
	"github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/specification"
)

// Runtime is the sending side of a publisher.
type Runtime interface {
	// Setup binds the publisher to its producer. It may be called once.
	Setup(producer Producer) error
	// AddMiddleware appends publisher-level middlewares. Call it while
	// declaring publishers, before traffic starts.
	AddMiddleware(mws ...Middleware)
	Publish(ctx context.Context, body any, opts ...CallOption) (any, error)
	Request(ctx context.Context, body any, opts ...CallOption) (*Reply, error)
}

// Specifiable is the documentation side of a publisher.
type Specifiable interface {
	// GetName returns the generated channel name, "<destination>:Publisher".
	GetName() string
	// Name returns the title override, or GetName.
	Name() string
	Description() string
	GetSchema() (map[string]specification.Channel, error)
	IncludeInSchema() bool
}

// Publisher is a declared publisher of any delivery mode.
type Publisher interface {
	Runtime
	Specifiable

	Settings() Settings
	IsBound() bool
	// InjectBrokerMiddlewares installs the broker-level middlewares, which
	// run after every other middleware, next to the producer. Brokers call it
	// at registration.
	InjectBrokerMiddlewares(mws ...Middleware)
	AddPayloadType(t reflect.Type)
	RegisterHandler(h Handler)
	Handlers() []Handler
}

// Create validates s and returns a batch or default publisher.
func Create(s Settings) (Publisher, error) {
	if s.Batch {
		return NewBatchPublisher(s)
	}
	return NewDefaultPublisher(s)
}

type core struct {
	settings Settings

	mu                sync.RWMutex
	producer          Producer
	brokerMiddlewares []Middleware
	middlewares       []Middleware
	payloadTypes      []reflect.Type
	handlers          []Handler
}

func newCore(s Settings) (*core, error) {
	if s.Destination.Name == "" {
		return nil, errspkg.NewSetupError(describe(s), errspkg.ErrEmptyDestination)
	}
	if len(s.Destination.Key) > 0 && !s.Features.Keys {
		return nil, errspkg.NewSetupError(describe(s)+": message key", errspkg.ErrUnsupportedOption)
	}
	if s.Destination.Partition != nil && !s.Features.Partitions {
		return nil, errspkg.NewSetupError(describe(s)+": partition", errspkg.ErrUnsupportedOption)
	}
	if s.Destination.Exchange != "" && !s.Features.Exchanges {
		return nil, errspkg.NewSetupError(describe(s)+": exchange", errspkg.ErrUnsupportedOption)
	}
	s.Headers = s.Headers.Clone()
	if s.BaseName == "" {
		s.BaseName = s.Destination.Name
	}
	return &core{
		settings:     s,
		middlewares:  append([]Middleware(nil), s.Middlewares...),
		payloadTypes: append([]reflect.Type(nil), s.PayloadTypes...),
	}, nil
}

func describe(s Settings) string {
	name := s.Broker
	if name == "" {
		name = string(s.Protocol)
	}
	if name == "" {
		return "publisher"
	}
	return name + " publisher"
}

func (c *core) Settings() Settings { return c.settings }

func (c *core) Setup(producer Producer) error {
	if producer == nil {
		return errspkg.NewSetupError(c.GetName(), errspkg.ErrProducerRequired)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.producer != nil {
		return errspkg.NewSetupError(c.GetName(), errspkg.ErrAlreadyConfigured)
	}
	c.producer = producer
	return nil
}

func (c *core) IsBound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.producer != nil
}

func (c *core) AddMiddleware(mws ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, mws...)
}

func (c *core) InjectBrokerMiddlewares(mws ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brokerMiddlewares = append(c.brokerMiddlewares, mws...)
}

func (c *core) AddPayloadType(t reflect.Type) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloadTypes = append(c.payloadTypes, t)
}

func (c *core) RegisterHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *core) Handlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Handler(nil), c.handlers...)
}

func (c *core) GetName() string {
	return c.settings.BaseName + ":Publisher"
}

func (c *core) Name() string {
	if c.settings.Title != "" {
		return c.settings.Title
	}
	return c.GetName()
}

func (c *core) Description() string { return c.settings.Description }

func (c *core) IncludeInSchema() bool { return c.settings.IncludeInSchema }

// envelope builds the per-call envelope. Call options win over declaration
// options and a correlation id is always present.
func (c *core) envelope(kind Kind, call callSettings) *Envelope {
	dest := c.settings.Destination
	if call.key != nil {
		dest.Key = call.key
	}
	if call.partition != nil {
		dest.Partition = call.partition
	}
	if call.exchange != "" {
		dest.Exchange = call.exchange
	}

	replyTo := c.settings.ReplyTo
	if call.replyTo != "" {
		replyTo = call.replyTo
	}
	timeout := c.settings.Timeout
	if call.timeout > 0 {
		timeout = call.timeout
	}

	return &Envelope{
		Kind:          kind,
		Destination:   dest,
		CorrelationID: ids.CorrelationIDOrNew(call.correlationID),
		ReplyTo:       replyTo,
		Headers:       metadata.Merge(c.settings.Headers, call.headers),
		Timeout:       timeout,
	}
}

func (c *core) checkCall(call callSettings) error {
	if len(call.key) > 0 && !c.settings.Features.Keys {
		return errspkg.NewSetupError(c.GetName()+": message key", errspkg.ErrUnsupportedOption)
	}
	if call.partition != nil && !c.settings.Features.Partitions {
		return errspkg.NewSetupError(c.GetName()+": partition", errspkg.ErrUnsupportedOption)
	}
	if call.exchange != "" && !c.settings.Features.Exchanges {
		return errspkg.NewSetupError(c.GetName()+": exchange", errspkg.ErrUnsupportedOption)
	}
	return nil
}

// send composes broker(publisher(call(env))): call middlewares see env first,
// publisher ones next, and broker ones last, right before the producer. Each
// level keeps its registration order.
func (c *core) send(ctx context.Context, env *Envelope, call callSettings, final func(Producer) PublishFunc) (any, error) {
	c.mu.RLock()
	producer := c.producer
	chain := make([]Middleware, 0, len(c.brokerMiddlewares)+len(c.middlewares)+len(call.middlewares))
	chain = append(chain, call.middlewares...)
	chain = append(chain, c.middlewares...)
	chain = append(chain, c.brokerMiddlewares...)
	c.mu.RUnlock()

	if producer == nil {
		return nil, errspkg.ErrNotConfigured
	}
	return Chain(final(producer), chain...)(ctx, env)
}

// DefaultPublisher sends one message per call.
type DefaultPublisher struct {
	*core
}

// NewDefaultPublisher validates s and returns a single-message publisher.
func NewDefaultPublisher(s Settings) (*DefaultPublisher, error) {
	s.Batch = false
	c, err := newCore(s)
	if err != nil {
		return nil, err
	}
	return &DefaultPublisher{core: c}, nil
}

func (p *DefaultPublisher) Publish(ctx context.Context, body any, opts ...CallOption) (any, error) {
	call := applyCallOptions(opts)
	if err := p.checkCall(call); err != nil {
		return nil, err
	}
	env := p.envelope(KindPublish, call)
	env.Body = body
	return p.send(ctx, env, call, func(producer Producer) PublishFunc {
		return producer.Publish
	})
}

func (p *DefaultPublisher) Request(ctx context.Context, body any, opts ...CallOption) (*Reply, error) {
	call := applyCallOptions(opts)
	if err := p.checkCall(call); err != nil {
		return nil, err
	}
	env := p.envelope(KindRequest, call)
	env.Body = body
	result, err := p.send(ctx, env, call, func(producer Producer) PublishFunc {
		return func(ctx context.Context, env *Envelope) (any, error) {
			return producer.Request(ctx, env)
		}
	})
	if err != nil {
		return nil, err
	}
	reply, ok := result.(*Reply)
	if !ok || reply == nil {
		return nil, fmt.Errorf("%w: request on %s returned %T", errspkg.ErrUnexpectedResult, p.GetName(), result)
	}
	return reply, nil
}

// BatchPublisher sends every call as an ordered batch of messages.
type BatchPublisher struct {
	*core
}

// NewBatchPublisher validates s and returns a batch publisher. A message key
// is rejected because one key cannot describe a batch.
func NewBatchPublisher(s Settings) (*BatchPublisher, error) {
	s.Batch = true
	if len(s.Destination.Key) > 0 {
		return nil, errspkg.NewSetupError(describe(s), errspkg.ErrBatchKey)
	}
	c, err := newCore(s)
	if err != nil {
		return nil, err
	}
	return &BatchPublisher{core: c}, nil
}

// Publish sends body as a batch. A slice or array is split into its
// elements; any other value, []byte included, is a batch of one.
func (p *BatchPublisher) Publish(ctx context.Context, body any, opts ...CallOption) (any, error) {
	return p.PublishBatch(ctx, splitBatch(body), opts...)
}

// PublishBatch sends bodies in order as one batch.
func (p *BatchPublisher) PublishBatch(ctx context.Context, bodies []any, opts ...CallOption) (any, error) {
	call := applyCallOptions(opts)
	if len(call.key) > 0 {
		return nil, errspkg.NewSetupError(p.GetName(), errspkg.ErrBatchKey)
	}
	if err := p.checkCall(call); err != nil {
		return nil, err
	}
	env := p.envelope(KindBatch, call)
	env.Batch = bodies
	return p.send(ctx, env, call, sendBatch)
}

// Request is not available on batch publishers.
func (p *BatchPublisher) Request(context.Context, any, ...CallOption) (*Reply, error) {
	return nil, errspkg.ErrFeatureNotSupported
}

func sendBatch(producer Producer) PublishFunc {
	if bp, ok := producer.(BatchProducer); ok {
		return bp.PublishBatch
	}
	return func(ctx context.Context, env *Envelope) (any, error) {
		results := make([]any, 0, len(env.Batch))
		for _, body := range env.Batch {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			result, err := producer.Publish(ctx, env.Single(body))
			if err != nil {
				return results, err
			}
			results = append(results, result)
		}
		return results, nil
	}
}

func splitBatch(body any) []any {
	switch v := body.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []byte:
		return []any{v}
	}
	rv := reflect.ValueOf(body)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{body}
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items
}
