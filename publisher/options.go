package publisher

import (
	"reflect"
	"time"

	"github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/specification"
)

// Features lists the per-message options a broker can honour.
type Features struct {
	Keys       bool
	Partitions bool
	Exchanges  bool
}

// Settings is the resolved declaration of a publisher. Per-broker factories
// build it from options and hand it to Create.
type Settings struct {
	Protocol    specification.Protocol
	Broker      string
	Features    Features
	Destination Destination
	// BaseName is the channel name stem; it defaults to the destination name.
	BaseName string

	Batch       bool
	Headers     metadata.Headers
	ReplyTo     string
	Timeout     time.Duration
	Middlewares []Middleware

	Title           string
	Description     string
	Schema          any
	PayloadTypes    []reflect.Type
	IncludeInSchema bool

	ChannelBindings   specification.Bindings
	OperationBindings specification.Bindings
}

// Option configures a publisher declaration.
type Option func(*Settings)

// NewSettings applies opts over the defaults for a publisher of protocol
// sending to destination.
func NewSettings(protocol specification.Protocol, destination string, opts ...Option) Settings {
	s := Settings{
		Protocol:        protocol,
		Destination:     Destination{Name: destination},
		IncludeInSchema: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithBatch declares a batch publisher.
func WithBatch() Option {
	return func(s *Settings) { s.Batch = true }
}

// WithKey sets the message key on every message.
func WithKey(key []byte) Option {
	return func(s *Settings) { s.Destination.Key = key }
}

// WithPartition pins every message to partition.
func WithPartition(partition int32) Option {
	return func(s *Settings) { s.Destination.Partition = &partition }
}

// WithExchange routes through the named exchange.
func WithExchange(exchange string) Option {
	return func(s *Settings) { s.Destination.Exchange = exchange }
}

// WithHeaders sets static headers sent with every message. Call headers win on conflict.
func WithHeaders(headers metadata.Headers) Option {
	return func(s *Settings) { s.Headers = metadata.Merge(s.Headers, headers) }
}

// WithReplyTo sets the default reply destination.
func WithReplyTo(replyTo string) Option {
	return func(s *Settings) { s.ReplyTo = replyTo }
}

// WithTimeout sets the default Request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Settings) { s.Timeout = timeout }
}

// WithMiddlewares appends publisher-level middlewares.
func WithMiddlewares(mws ...Middleware) Option {
	return func(s *Settings) { s.Middlewares = append(s.Middlewares, mws...) }
}

// WithTitle overrides the channel name used in the specification document.
func WithTitle(title string) Option {
	return func(s *Settings) { s.Title = title }
}

// WithDescription sets the channel description.
func WithDescription(description string) Option {
	return func(s *Settings) { s.Description = description }
}

// WithSchema overrides the message payload schema. schema is either a JSON
// Schema as map[string]any or a sample value whose type is reflected.
func WithSchema(schema any) Option {
	return func(s *Settings) { s.Schema = schema }
}

// WithPayloadTypes declares the Go types of the bodies this publisher sends,
// given as sample values.
func WithPayloadTypes(samples ...any) Option {
	return func(s *Settings) {
		for _, sample := range samples {
			if t := reflect.TypeOf(sample); t != nil {
				s.PayloadTypes = append(s.PayloadTypes, t)
			}
		}
	}
}

// WithoutSchema hides the publisher from the specification document.
func WithoutSchema() Option {
	return func(s *Settings) { s.IncludeInSchema = false }
}

type callSettings struct {
	correlationID string
	headers       metadata.Headers
	key           []byte
	partition     *int32
	exchange      string
	replyTo       string
	timeout       time.Duration
	middlewares   []Middleware
}

// CallOption adjusts a single Publish or Request call.
type CallOption func(*callSettings)

// WithCorrelationID uses id instead of a generated correlation id.
func WithCorrelationID(id string) CallOption {
	return func(c *callSettings) { c.correlationID = id }
}

// WithMessageHeaders adds headers to this call only.
func WithMessageHeaders(headers metadata.Headers) CallOption {
	return func(c *callSettings) { c.headers = metadata.Merge(c.headers, headers) }
}

// WithMessageKey overrides the message key for this call.
func WithMessageKey(key []byte) CallOption {
	return func(c *callSettings) { c.key = key }
}

// WithMessagePartition overrides the partition for this call.
func WithMessagePartition(partition int32) CallOption {
	return func(c *callSettings) { c.partition = &partition }
}

// WithMessageExchange overrides the exchange for this call.
func WithMessageExchange(exchange string) CallOption {
	return func(c *callSettings) { c.exchange = exchange }
}

// WithMessageReplyTo overrides the reply destination for this call.
func WithMessageReplyTo(replyTo string) CallOption {
	return func(c *callSettings) { c.replyTo = replyTo }
}

// WithRequestTimeout bounds this Request call.
func WithRequestTimeout(timeout time.Duration) CallOption {
	return func(c *callSettings) { c.timeout = timeout }
}

// WithCallMiddlewares adds middlewares for this call only. They see the
// envelope before the publisher and broker middlewares do.
func WithCallMiddlewares(mws ...Middleware) CallOption {
	return func(c *callSettings) { c.middlewares = append(c.middlewares, mws...) }
}

func applyCallOptions(opts []CallOption) callSettings {
	var c callSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
