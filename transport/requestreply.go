package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamflow/internal/runtime/correlation"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/ids"
	"github.com/drblury/streamflow/internal/runtime/metadata"
)

// RequesterConfig configures a Requester.
type RequesterConfig struct {
	// Broker names the transport in errors and logs.
	Broker     string
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// ReplyTopic is where responders send replies. Empty generates a
	// per-process name.
	ReplyTopic string
	// Timeout applies when a request does not set its own.
	Timeout time.Duration
	Logger  watermill.LoggerAdapter
}

// Requester implements request/reply over a Watermill publisher and
// subscriber pair. Replies arrive on one reply topic and are matched to the
// waiting request by correlation id.
type Requester struct {
	cfg     RequesterConfig
	pending *correlation.Table[*message.Message]

	startOnce sync.Once
	startErr  error
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewRequester validates cfg and returns an idle Requester. The reply
// subscription starts with the first request.
func NewRequester(cfg RequesterConfig) (*Requester, error) {
	if cfg.Publisher == nil || cfg.Subscriber == nil {
		return nil, errors.New("requester: publisher and subscriber are required")
	}
	if cfg.ReplyTopic == "" {
		cfg.ReplyTopic = "streamflow.replies." + ids.CreateULID()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = watermill.NopLogger{}
	}
	return &Requester{
		cfg:     cfg,
		pending: correlation.NewTable[*message.Message](),
	}, nil
}

// ReplyTopic returns the destination replies are expected on.
func (r *Requester) ReplyTopic() string { return r.cfg.ReplyTopic }

// Pending returns the number of requests waiting for a reply.
func (r *Requester) Pending() int { return r.pending.Len() }

func (r *Requester) start() error {
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		replies, err := r.cfg.Subscriber.Subscribe(ctx, r.cfg.ReplyTopic)
		if err != nil {
			cancel()
			r.startErr = errspkg.NewTransportError(r.cfg.Broker, "subscribe", r.cfg.ReplyTopic, err)
			return
		}
		r.cancel = cancel
		go r.consume(replies)
	})
	return r.startErr
}

func (r *Requester) consume(replies <-chan *message.Message) {
	for msg := range replies {
		id := msg.Metadata.Get(metadata.HeaderCorrelationID)
		if !r.pending.Resolve(id, msg) {
			r.cfg.Logger.Debug("Dropping reply without pending request", watermill.LogFields{
				"correlation_id": id,
				"reply_topic":    r.cfg.ReplyTopic,
			})
		}
		msg.Ack()
	}
}

// Request publishes msg to topic with the reply topic attached and waits for
// the reply carrying the same correlation id.
func (r *Requester) Request(ctx context.Context, topic string, msg *message.Message, timeout time.Duration) (*message.Message, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}

	correlationID := msg.Metadata.Get(metadata.HeaderCorrelationID)
	if correlationID == "" {
		correlationID = ids.NewCorrelationID()
		msg.Metadata.Set(metadata.HeaderCorrelationID, correlationID)
	}
	msg.Metadata.Set(metadata.HeaderReplyTo, r.cfg.ReplyTopic)

	replies, release, err := r.pending.Register(correlationID)
	if errors.Is(err, correlation.ErrClosed) {
		return nil, errspkg.ErrProducerClosed
	}
	if err != nil {
		return nil, err
	}
	defer release()

	if err := r.cfg.Publisher.Publish(topic, msg); err != nil {
		return nil, errspkg.NewTransportError(r.cfg.Broker, "request", topic, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replies:
		if !ok {
			return nil, errspkg.ErrProducerClosed
		}
		return reply, nil
	case <-timer.C:
		return nil, &errspkg.TimeoutError{Timeout: timeout, CorrelationID: correlationID}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the reply subscription and releases every pending request.
// The publisher and subscriber stay open; they belong to the producer.
func (r *Requester) Close() error {
	r.closeOnce.Do(func() {
		// Waits for an in-flight start and prevents later ones.
		r.startOnce.Do(func() {})
		r.pending.Close()
		if r.cancel != nil {
			r.cancel()
		}
	})
	return nil
}
