package streamflow

import (
	"context"

	runtimepkg "github.com/drblury/streamflow/internal/runtime"
	codecpkg "github.com/drblury/streamflow/internal/runtime/codec"
	configpkg "github.com/drblury/streamflow/internal/runtime/config"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	idspkg "github.com/drblury/streamflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/specification"
	"github.com/drblury/streamflow/transport"

	// Every built-in transport registers itself with the default registry.
	_ "github.com/drblury/streamflow/transport/transports"
)

type (
	Config             = configpkg.Config
	Broker             = runtimepkg.Broker
	BrokerDependencies = runtimepkg.BrokerDependencies

	App            = runtimepkg.App
	AppState       = runtimepkg.AppState
	RunState       = runtimepkg.RunState
	OuterRunState  = runtimepkg.OuterRunState
	SignalRunState = runtimepkg.SignalRunState
	Hook           = runtimepkg.Hook
	LifecycleHooks = runtimepkg.LifecycleHooks

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig
	PublishMetrics         = runtimepkg.PublishMetrics

	Publisher        = publisher.Publisher
	DefaultPublisher = publisher.DefaultPublisher
	BatchPublisher   = publisher.BatchPublisher
	Settings         = publisher.Settings
	Option           = publisher.Option
	CallOption       = publisher.CallOption
	Middleware       = publisher.Middleware
	PublishFunc      = publisher.PublishFunc
	Envelope         = publisher.Envelope
	Destination      = publisher.Destination
	Reply            = publisher.Reply
	Producer         = publisher.Producer

	Document = specification.Document
	Channel  = specification.Channel

	Headers = metadatapkg.Headers

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	SetupError            = errspkg.SetupError
	TransportError        = errspkg.TransportError
	TimeoutError          = errspkg.TimeoutError
	SchemaResolutionError = errspkg.SchemaResolutionError
	ConfigValidationError = errspkg.ConfigValidationError

	// Transport registry
	Transport             = transport.Transport
	TransportProducer     = transport.Producer
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

const (
	StateInit    = runtimepkg.StateInit
	StateRunning = runtimepkg.StateRunning
	StateStopped = runtimepkg.StateStopped

	HeaderCorrelationID = metadatapkg.HeaderCorrelationID
	HeaderReplyTo       = metadatapkg.HeaderReplyTo
	HeaderContentType   = metadatapkg.HeaderContentType
	HeaderMessageID     = metadatapkg.HeaderMessageID

	AsyncAPIVersion260 = specification.Version260
	AsyncAPIVersion300 = specification.Version300
)

var (
	NewBroker         = runtimepkg.NewBroker
	NewApp            = runtimepkg.NewApp
	NewSignalRunState = runtimepkg.NewSignalRunState
	LoadConfigFromEnv = configpkg.LoadFromEnv
	ValidateConfig    = configpkg.ValidateConfig

	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	LogMessagesMiddleware = runtimepkg.LogMessagesMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	RetryMiddleware       = runtimepkg.RetryMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware
	IsTransportError      = runtimepkg.IsTransportError
	NewPublishMetrics     = runtimepkg.NewPublishMetrics
	LoggingHooks          = runtimepkg.LoggingHooks
	Chain                 = publisher.Chain

	// Declaration options
	WithBatch        = publisher.WithBatch
	WithKey          = publisher.WithKey
	WithPartition    = publisher.WithPartition
	WithExchange     = publisher.WithExchange
	WithHeaders      = publisher.WithHeaders
	WithReplyTo      = publisher.WithReplyTo
	WithTimeout      = publisher.WithTimeout
	WithMiddlewares  = publisher.WithMiddlewares
	WithTitle        = publisher.WithTitle
	WithDescription  = publisher.WithDescription
	WithSchema       = publisher.WithSchema
	WithPayloadTypes = publisher.WithPayloadTypes
	WithoutSchema    = publisher.WithoutSchema

	// Call options
	WithCorrelationID      = publisher.WithCorrelationID
	WithMessageHeaders     = publisher.WithMessageHeaders
	WithMessageKey         = publisher.WithMessageKey
	WithMessagePartition   = publisher.WithMessagePartition
	WithMessageExchange    = publisher.WithMessageExchange
	WithMessageReplyTo     = publisher.WithMessageReplyTo
	WithRequestTimeout     = publisher.WithRequestTimeout
	WithCallMiddlewares    = publisher.WithCallMiddlewares
	NewHeaders             = metadatapkg.New
	NewDocument            = specification.NewDocument
	DefaultTransports      = transport.DefaultRegistry
	RegisterTransport      = transport.Register
	BuildTransport         = transport.Build
	GetCapabilities        = transport.GetCapabilities
	NewSlogServiceLogger   = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger    = loggingpkg.NewNopServiceLogger
	NewWatermillAdapter    = loggingpkg.NewWatermillAdapter
	CreateULID             = idspkg.CreateULID
	NewCorrelationID       = idspkg.NewCorrelationID
	Marshal                = codecpkg.MarshalJSON
	MarshalIndent          = codecpkg.MarshalJSONIndent
	Unmarshal              = codecpkg.UnmarshalJSON
	Encode                 = codecpkg.Encode
	Decode                 = codecpkg.Decode
	ErrNotConfigured       = errspkg.ErrNotConfigured
	ErrProducerRequired    = errspkg.ErrProducerRequired
	ErrAlreadyConfigured   = errspkg.ErrAlreadyConfigured
	ErrEmptyDestination    = errspkg.ErrEmptyDestination
	ErrBatchKey            = errspkg.ErrBatchKey
	ErrUnsupportedOption   = errspkg.ErrUnsupportedOption
	ErrDuplicateChannel    = errspkg.ErrDuplicateChannel
	ErrFeatureNotSupported = errspkg.ErrFeatureNotSupported
	ErrRequestTimeout      = errspkg.ErrRequestTimeout
	ErrProducerClosed      = errspkg.ErrProducerClosed
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrBrokerRequired      = errspkg.ErrBrokerRequired
	ErrAppAlreadyStarted   = errspkg.ErrAppAlreadyStarted
	ErrMessageTooLarge     = errspkg.ErrMessageTooLarge
	ErrTooManyAttributes   = errspkg.ErrTooManyAttributes
	ErrUnexpectedResult    = errspkg.ErrUnexpectedResult
)

// Decorate registers fn as a handler whose results p publishes. The Out
// type joins p's documented payloads.
func Decorate[In, Out any](p Publisher, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return publisher.Decorate(p, fn)
}
