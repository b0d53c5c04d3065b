package publisher

import (
	"github.com/drblury/streamflow/specification"
)

// GetSchema describes the publisher as one channel with a publish operation.
func (c *core) GetSchema() (map[string]specification.Channel, error) {
	payloads, err := c.payloads()
	if err != nil {
		return nil, err
	}

	name := c.Name()
	return map[string]specification.Channel{
		name: {
			Description: c.settings.Description,
			Address:     c.settings.Destination.Name,
			Publish: &specification.Operation{
				Message: specification.Message{
					Title:         name + ":Message",
					Payload:       specification.ResolvePayloads(payloads, "Publisher"),
					CorrelationID: specification.NewCorrelationID(),
				},
				Bindings: c.settings.OperationBindings,
			},
			Bindings: c.settings.ChannelBindings,
		},
	}, nil
}

// payloads lists the schema override alone when one is set, otherwise the
// declared payload types followed by the return types of decorated handlers.
func (c *core) payloads() ([]specification.Payload, error) {
	if override := c.settings.Schema; override != nil {
		if schema, ok := override.(map[string]any); ok {
			return []specification.Payload{{Schema: schema}}, nil
		}
		schema, err := specification.ResolvePayloadOf(override)
		if err != nil {
			return nil, err
		}
		return []specification.Payload{{Schema: schema}}, nil
	}

	c.mu.RLock()
	types := append(c.payloadTypes[:0:0], c.payloadTypes...)
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.RUnlock()

	payloads := make([]specification.Payload, 0, len(types)+len(handlers))
	for _, t := range types {
		schema, err := specification.ResolvePayload(t)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, specification.Payload{Schema: schema})
	}
	for _, h := range handlers {
		if h.ResponseType == nil {
			continue
		}
		schema, err := specification.ResolvePayload(h.ResponseType)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, specification.Payload{Schema: schema, Handler: h.Name})
	}
	return payloads, nil
}
