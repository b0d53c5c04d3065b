package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
	"github.com/drblury/streamflow/publisher"
)

// TracerName names the OpenTelemetry tracer used for publish spans.
const TracerName = "github.com/drblury/streamflow"

// MiddlewareBuilder constructs a publish middleware using the provided broker.
type MiddlewareBuilder func(*Broker) (publisher.Middleware, error)

// MiddlewareRegistration captures how a middleware is added to a Broker.
// A Builder returning a nil middleware is skipped.
type MiddlewareRegistration struct {
	Name       string
	Middleware publisher.Middleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour.
type RetryMiddlewareConfig struct {
	// MaxRetries counts the attempts after the first one. Defaults to 5, so
	// a failing publish is tried 6 times.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryIf decides which errors are retried. Defaults to transport errors only.
	RetryIf func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = IsTransportError
	}
	return cfg
}

// IsTransportError reports whether err came from the broker client.
func IsTransportError(err error) bool {
	var transportErr *errspkg.TransportError
	return errors.As(err, &transportErr)
}

// DefaultMiddlewares returns the standard middleware chain used by NewBroker.
// Retries are opt-in through RetryMiddleware.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		RecovererMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
	}
}

// MetricsMiddleware records Prometheus publish metrics when metrics are
// enabled, and serves them on MetricsPort when one is configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(b *Broker) (publisher.Middleware, error) {
			if !b.Conf.MetricsEnabled {
				return nil, nil
			}

			metrics := NewPublishMetrics(b.deps.MetricsRegisterer)
			if err := metrics.Register(); err != nil {
				return nil, err
			}

			if b.Conf.MetricsPort > 0 {
				b.RegisterHTTPHandler(b.Conf.MetricsPort, "/metrics", metricsHandler(b.deps.MetricsRegisterer))
			}

			return metricsMiddleware(b.Conf.Broker, metrics), nil
		},
	}
}

// metricsHandler serves registerer when it can be gathered, and the default
// gatherer otherwise.
func metricsHandler(registerer prometheus.Registerer) http.Handler {
	if gatherer, ok := registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// LogMessagesMiddleware logs every outgoing envelope at debug level and
// failures at error level. A nil logger selects the broker logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(b *Broker) (publisher.Middleware, error) {
			l := logger
			if l == nil {
				l = b.Logger
			}
			if l == nil {
				return nil, errspkg.ErrLoggerRequired
			}
			return logMessagesMiddleware(l, b.Conf.Broker), nil
		},
	}
}

// TracerMiddleware wraps every publish in an OpenTelemetry producer span and
// propagates the span context in the message headers.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(b *Broker) (publisher.Middleware, error) {
			return tracerMiddleware(b.Conf.Broker), nil
		},
	}
}

// RetryMiddleware retries failed sends with exponential backoff (defaults
// applied to zero values).
func RetryMiddleware(cfg RetryMiddlewareConfig) MiddlewareRegistration {
	normalized := cfg.withDefaults()
	return MiddlewareRegistration{
		Name:       "retry",
		Middleware: retryMiddleware(normalized),
	}
}

// RecovererMiddleware converts panics raised further down the chain into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: recovererMiddleware,
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger, broker string) publisher.Middleware {
	return func(next publisher.PublishFunc) publisher.PublishFunc {
		return func(ctx context.Context, env *publisher.Envelope) (any, error) {
			log := loggingpkg.ForPublisher(logger, broker, env.Destination.Name, env.Destination.Exchange)
			fields := loggingpkg.LogFields{
				"kind":           env.Kind.String(),
				"correlation_id": env.CorrelationID,
				"messages":       env.Len(),
			}
			log.Debug("Publishing message", fields)

			result, err := next(ctx, env)
			if err != nil {
				log.Error("Failed to publish message", err, fields)
			}
			return result, err
		}
	}
}

func tracerMiddleware(broker string) publisher.Middleware {
	return func(next publisher.PublishFunc) publisher.PublishFunc {
		return func(ctx context.Context, env *publisher.Envelope) (any, error) {
			tracer := otel.Tracer(TracerName)
			ctx, span := tracer.Start(
				ctx,
				env.Destination.Name+" "+env.Kind.String(),
				trace.WithSpanKind(trace.SpanKindProducer),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String("messaging.system", broker),
				attribute.String("messaging.destination.name", env.Destination.Name),
				attribute.String("messaging.message.conversation_id", env.CorrelationID),
				attribute.Int("messaging.batch.message_count", env.Len()),
			)

			env.Headers = env.Headers.Clone()
			otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(env.Headers))

			result, err := next(ctx, env)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}

func metricsMiddleware(broker string, metrics *PublishMetrics) publisher.Middleware {
	return func(next publisher.PublishFunc) publisher.PublishFunc {
		return func(ctx context.Context, env *publisher.Envelope) (any, error) {
			start := time.Now()
			result, err := next(ctx, env)
			metrics.ObservePublish(broker, env.Destination.Name, env.Kind.String(), env.Len(), time.Since(start), err)
			return result, err
		}
	}
}

func retryMiddleware(cfg RetryMiddlewareConfig) publisher.Middleware {
	return func(next publisher.PublishFunc) publisher.PublishFunc {
		return func(ctx context.Context, env *publisher.Envelope) (any, error) {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = cfg.InitialInterval
			policy.MaxInterval = cfg.MaxInterval

			return backoff.Retry(ctx, func() (any, error) {
				result, err := next(ctx, env)
				if err != nil && !cfg.RetryIf(err) {
					return nil, backoff.Permanent(err)
				}
				return result, err
			},
				backoff.WithBackOff(policy),
				backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
			)
		}
	}
}

func recovererMiddleware(next publisher.PublishFunc) publisher.PublishFunc {
	return func(ctx context.Context, env *publisher.Envelope) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = fmt.Errorf("streamflow: panic while publishing to %s: %v", env.Destination.Name, r)
			}
		}()
		return next(ctx, env)
	}
}
