package errors

import (
	sterrors "errors"
	"fmt"
	"time"
)

var (
	ErrNotConfigured       = sterrors.New("streamflow: publisher is not set up with a producer")
	ErrProducerRequired    = sterrors.New("streamflow: producer is required")
	ErrAlreadyConfigured   = sterrors.New("streamflow: publisher is already set up")
	ErrEmptyDestination    = sterrors.New("streamflow: destination name is required")
	ErrBatchKey            = sterrors.New("streamflow: you can't setup `key` with batch publisher")
	ErrUnsupportedOption   = sterrors.New("streamflow: option is not supported by this broker")
	ErrDuplicateChannel    = sterrors.New("streamflow: channel name is already registered")
	ErrFeatureNotSupported = sterrors.New("streamflow: feature is not supported by this broker")
	ErrRequestTimeout      = sterrors.New("streamflow: request timed out waiting for a reply")
	ErrProducerClosed      = sterrors.New("streamflow: producer is closed")
	ErrConfigRequired      = sterrors.New("streamflow: configuration is required")
	ErrLoggerRequired      = sterrors.New("streamflow: logger is required")
	ErrPublisherRequired   = sterrors.New("streamflow: publisher is required")
	ErrBrokerRequired      = sterrors.New("streamflow: broker is required")
	ErrAppAlreadyStarted   = sterrors.New("streamflow: app has already been started")
	ErrMessageTooLarge     = sterrors.New("streamflow: message exceeds the broker size limit")
	ErrTooManyAttributes   = sterrors.New("streamflow: message has more headers than the broker accepts")
	ErrUnexpectedResult    = sterrors.New("streamflow: producer returned an unexpected result")
)

// SetupError reports invalid publisher or broker configuration detected while
// declaring publishers, before any traffic is sent.
type SetupError struct {
	Reason string
	Err    error
}

// NewSetupError wraps err with a human readable reason.
func NewSetupError(reason string, err error) *SetupError {
	return &SetupError{Reason: reason, Err: err}
}

func (e *SetupError) Error() string {
	switch {
	case e.Reason == "":
		return fmt.Sprintf("streamflow: setup error: %v", e.Err)
	case e.Err == nil:
		return "streamflow: setup error: " + e.Reason
	default:
		return fmt.Sprintf("streamflow: setup error: %s: %v", e.Reason, e.Err)
	}
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TransportError wraps failures returned by a broker client.
type TransportError struct {
	Broker      string
	Op          string
	Destination string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("streamflow: %s %s to %q failed: %v", e.Broker, e.Op, e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError returns nil when err is nil so callers can wrap unconditionally.
func NewTransportError(broker, op, destination string, err error) error {
	if err == nil {
		return nil
	}
	var existing *TransportError
	if sterrors.As(err, &existing) {
		return err
	}
	return &TransportError{Broker: broker, Op: op, Destination: destination, Err: err}
}

// TimeoutError is returned by Request when no reply arrived in time.
type TimeoutError struct {
	Timeout       time.Duration
	CorrelationID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("streamflow: no reply for correlation id %q within %s", e.CorrelationID, e.Timeout)
}

// Is lets errors.Is(err, ErrRequestTimeout) match every TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// SchemaResolutionError reports a payload type that cannot be described as JSON Schema.
type SchemaResolutionError struct {
	Type string
	Err  error
}

func (e *SchemaResolutionError) Error() string {
	return fmt.Sprintf("streamflow: cannot resolve schema for %s: %v", e.Type, e.Err)
}

func (e *SchemaResolutionError) Unwrap() error {
	return e.Err
}

// ConfigValidationError wraps the joined errors produced by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("streamflow: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil for a nil err.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
