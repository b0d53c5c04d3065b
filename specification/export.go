package specification

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"

	"github.com/drblury/streamflow/internal/runtime/codec"
)

// ToJSON renders the document for its AsyncAPI version as compact JSON.
func (d *Document) ToJSON() ([]byte, error) {
	rendered, err := d.Render()
	if err != nil {
		return nil, err
	}
	return codec.MarshalJSON(rendered)
}

// ToJSONIndent is ToJSON with two-space indentation.
func (d *Document) ToJSONIndent() ([]byte, error) {
	rendered, err := d.Render()
	if err != nil {
		return nil, err
	}
	return codec.MarshalJSONIndent(rendered, "", "  ")
}

// ToJSONable returns the rendered document as plain maps, slices and scalars.
func (d *Document) ToJSONable() (map[string]any, error) {
	raw, err := d.ToJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := codec.UnmarshalJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("specification: decode rendered document: %w", err)
	}
	return out, nil
}

// ToYAML renders the document as YAML with sorted keys.
func (d *Document) ToYAML() ([]byte, error) {
	jsonable, err := d.ToJSONable()
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(jsonable)
	if err != nil {
		return nil, fmt.Errorf("specification: encode yaml: %w", err)
	}
	return out, nil
}

// Render returns the value serialised for the document's AsyncAPI version.
func (d *Document) Render() (any, error) {
	switch d.AsyncAPI {
	case "", Version260:
		doc := *d
		doc.AsyncAPI = Version260
		if doc.Channels == nil {
			doc.Channels = map[string]Channel{}
		}
		return doc, nil
	case Version300:
		return renderV3(d), nil
	default:
		return nil, fmt.Errorf("specification: unsupported asyncapi version %q", d.AsyncAPI)
	}
}

type documentV3 struct {
	AsyncAPI           string                 `json:"asyncapi"`
	ID                 string                 `json:"id,omitempty"`
	DefaultContentType string                 `json:"defaultContentType,omitempty"`
	Info               Info                   `json:"info"`
	Servers            map[string]serverV3    `json:"servers,omitempty"`
	Channels           map[string]channelV3   `json:"channels"`
	Operations         map[string]operationV3 `json:"operations"`
	Components         componentsV3           `json:"components"`
}

type serverV3 struct {
	Host            string `json:"host"`
	Pathname        string `json:"pathname,omitempty"`
	Protocol        string `json:"protocol"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	Description     string `json:"description,omitempty"`
}

type reference struct {
	Ref string `json:"$ref"`
}

type channelV3 struct {
	Address     string               `json:"address"`
	Description string               `json:"description,omitempty"`
	Servers     []reference          `json:"servers,omitempty"`
	Messages    map[string]reference `json:"messages"`
	Bindings    Bindings             `json:"bindings,omitempty"`
}

type operationV3 struct {
	Action   string      `json:"action"`
	Channel  reference   `json:"channel"`
	Summary  string      `json:"summary,omitempty"`
	Messages []reference `json:"messages"`
	Bindings Bindings    `json:"bindings,omitempty"`
}

type componentsV3 struct {
	Messages map[string]Message `json:"messages"`
}

func renderV3(d *Document) documentV3 {
	out := documentV3{
		AsyncAPI:           Version300,
		ID:                 d.ID,
		DefaultContentType: d.DefaultContentType,
		Info:               d.Info,
		Channels:           map[string]channelV3{},
		Operations:         map[string]operationV3{},
		Components:         componentsV3{Messages: map[string]Message{}},
	}

	for name, server := range d.Servers {
		if out.Servers == nil {
			out.Servers = map[string]serverV3{}
		}
		host, pathname := splitServerURL(server.URL)
		out.Servers[name] = serverV3{
			Host:            host,
			Pathname:        pathname,
			Protocol:        server.Protocol,
			ProtocolVersion: server.ProtocolVersion,
			Description:     server.Description,
		}
	}

	for _, name := range d.ChannelNames() {
		ch := d.Channels[name]
		address := ch.Address
		if address == "" {
			address = name
		}
		v3 := channelV3{
			Address:     address,
			Description: ch.Description,
			Messages:    map[string]reference{},
			Bindings:    ch.Bindings,
		}
		for _, server := range ch.Servers {
			v3.Servers = append(v3.Servers, reference{Ref: "#/servers/" + server})
		}

		for _, op := range []struct {
			action string
			key    string
			op     *Operation
		}{
			{action: "send", key: "Publisher", op: ch.Publish},
			{action: "receive", key: "Subscriber", op: ch.Subscribe},
		} {
			if op.op == nil {
				continue
			}
			messageKey := op.key + "Message"
			componentKey := op.op.Message.Title
			if componentKey == "" {
				componentKey = name + ":" + messageKey
			}
			out.Components.Messages[componentKey] = op.op.Message
			v3.Messages[messageKey] = reference{Ref: "#/components/messages/" + escapePointer(componentKey)}

			operationName := name
			if ch.Publish != nil && ch.Subscribe != nil {
				operationName = name + ":" + op.key
			}
			out.Operations[operationName] = operationV3{
				Action:   op.action,
				Channel:  reference{Ref: "#/channels/" + escapePointer(name)},
				Summary:  op.op.Description,
				Messages: []reference{{Ref: "#/channels/" + escapePointer(name) + "/messages/" + messageKey}},
				Bindings: op.op.Bindings,
			}
		}
		out.Channels[name] = v3
	}
	return out
}

func splitServerURL(raw string) (host, pathname string) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw, ""
	}
	return parsed.Host, parsed.Path
}

// escapePointer escapes a JSON pointer token.
func escapePointer(token string) string {
	out := make([]rune, 0, len(token))
	for _, r := range token {
		switch r {
		case '~':
			out = append(out, '~', '0')
		case '/':
			out = append(out, '~', '1')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
