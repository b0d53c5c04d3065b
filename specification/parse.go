package specification

import (
	"fmt"
	"strings"

	"github.com/drblury/streamflow/internal/runtime/codec"
)

// ParseJSON reads a document rendered by ToJSON for either AsyncAPI version.
// 3.0.0 servers come back with host and pathname joined as their URL.
func ParseJSON(raw []byte) (*Document, error) {
	var head struct {
		AsyncAPI string `json:"asyncapi"`
	}
	if err := codec.UnmarshalJSON(raw, &head); err != nil {
		return nil, fmt.Errorf("specification: decode document: %w", err)
	}

	switch head.AsyncAPI {
	case Version260:
		var doc Document
		if err := codec.UnmarshalJSON(raw, &doc); err != nil {
			return nil, fmt.Errorf("specification: decode document: %w", err)
		}
		if doc.Channels == nil {
			doc.Channels = map[string]Channel{}
		}
		return &doc, nil
	case Version300:
		var v3 documentV3
		if err := codec.UnmarshalJSON(raw, &v3); err != nil {
			return nil, fmt.Errorf("specification: decode document: %w", err)
		}
		return fromV3(&v3)
	default:
		return nil, fmt.Errorf("specification: unsupported asyncapi version %q", head.AsyncAPI)
	}
}

func fromV3(v3 *documentV3) (*Document, error) {
	doc := &Document{
		AsyncAPI:           Version300,
		ID:                 v3.ID,
		DefaultContentType: v3.DefaultContentType,
		Info:               v3.Info,
		Channels:           make(map[string]Channel, len(v3.Channels)),
	}
	for name, server := range v3.Servers {
		doc.AddServer(name, Server{
			URL:             server.Host + server.Pathname,
			Protocol:        server.Protocol,
			ProtocolVersion: server.ProtocolVersion,
			Description:     server.Description,
		})
	}

	for name, ch := range v3.Channels {
		out := Channel{
			Description: ch.Description,
			Address:     ch.Address,
			Bindings:    ch.Bindings,
		}
		for _, ref := range ch.Servers {
			out.Servers = append(out.Servers, strings.TrimPrefix(ref.Ref, "#/servers/"))
		}
		doc.Channels[name] = out
	}

	for opName, op := range v3.Operations {
		name, ok := cutRef(op.Channel.Ref, "#/channels/")
		if !ok {
			return nil, fmt.Errorf("specification: operation %s: bad channel reference %q", opName, op.Channel.Ref)
		}
		ch, ok := doc.Channels[name]
		if !ok {
			return nil, fmt.Errorf("specification: operation %s: unknown channel %q", opName, name)
		}
		if len(op.Messages) != 1 {
			return nil, fmt.Errorf("specification: operation %s: expected one message, got %d", opName, len(op.Messages))
		}
		message, err := resolveMessage(v3, name, op.Messages[0].Ref)
		if err != nil {
			return nil, fmt.Errorf("specification: operation %s: %w", opName, err)
		}

		operation := &Operation{Description: op.Summary, Message: message, Bindings: op.Bindings}
		switch op.Action {
		case "send":
			ch.Publish = operation
		case "receive":
			ch.Subscribe = operation
		default:
			return nil, fmt.Errorf("specification: operation %s: unknown action %q", opName, op.Action)
		}
		doc.Channels[name] = ch
	}
	return doc, nil
}

// resolveMessage follows a channel message reference to its component.
func resolveMessage(v3 *documentV3, channel, ref string) (Message, error) {
	key, ok := cutRef(ref, "#/channels/"+escapePointer(channel)+"/messages/")
	if !ok {
		return Message{}, fmt.Errorf("bad message reference %q", ref)
	}
	componentRef, ok := v3.Channels[channel].Messages[key]
	if !ok {
		return Message{}, fmt.Errorf("channel %s has no message %q", channel, key)
	}
	component, ok := cutRef(componentRef.Ref, "#/components/messages/")
	if !ok {
		return Message{}, fmt.Errorf("bad component reference %q", componentRef.Ref)
	}
	message, ok := v3.Components.Messages[component]
	if !ok {
		return Message{}, fmt.Errorf("unknown message component %q", component)
	}
	return message, nil
}

func cutRef(ref, prefix string) (string, bool) {
	token, ok := strings.CutPrefix(ref, prefix)
	if !ok || token == "" {
		return "", false
	}
	return unescapePointer(token), true
}

func unescapePointer(token string) string {
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(token)
}
