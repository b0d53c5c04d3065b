package transport

import (
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/specification"
)

// BindingFields are the raw channel and operation binding fields a broker
// derives from a publisher declaration.
type BindingFields struct {
	Channel   map[string]any
	Operation map[string]any
}

// NewPublisher completes s for the transport described by caps, attaches the
// protocol bindings and creates the publisher. Bindings set explicitly on s
// are kept.
func NewPublisher(caps Capabilities, s publisher.Settings, fields BindingFields) (publisher.Publisher, error) {
	s.Broker = caps.Name
	s.Protocol = caps.Protocol
	s.Features = caps.Features()

	if _, ok := s.ChannelBindings[caps.Protocol]; !ok {
		binding, err := specification.NewBinding(caps.Protocol, specification.ScopeChannel, fields.Channel)
		if err != nil {
			return nil, errspkg.NewSetupError(caps.Name+" publisher", err)
		}
		s.ChannelBindings = s.ChannelBindings.Add(caps.Protocol, binding)
	}
	if _, ok := s.OperationBindings[caps.Protocol]; !ok {
		binding, err := specification.NewBinding(caps.Protocol, specification.ScopeOperation, fields.Operation)
		if err != nil {
			return nil, errspkg.NewSetupError(caps.Name+" publisher", err)
		}
		s.OperationBindings = s.OperationBindings.Add(caps.Protocol, binding)
	}

	return publisher.Create(s)
}
