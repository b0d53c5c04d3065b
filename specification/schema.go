// Package specification models the AsyncAPI document generated from declared
// publishers and renders it as AsyncAPI 2.6.0 or 3.0.0.
package specification

// Supported AsyncAPI versions.
const (
	Version260 = "2.6.0"
	Version300 = "3.0.0"
)

// CorrelationIDLocation is where every published message carries its correlation id.
const CorrelationIDLocation = "$message.header#/correlation_id"

// Document is the root AsyncAPI document. It is laid out as 2.6.0; a 3.0.0
// rendering is derived from it on export.
type Document struct {
	AsyncAPI           string             `json:"asyncapi"`
	ID                 string             `json:"id,omitempty"`
	DefaultContentType string             `json:"defaultContentType,omitempty"`
	Info               Info               `json:"info"`
	Servers            map[string]Server  `json:"servers,omitempty"`
	Channels           map[string]Channel `json:"channels"`
}

type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type Server struct {
	URL             string `json:"url"`
	Protocol        string `json:"protocol"`
	ProtocolVersion string `json:"protocolVersion,omitempty"`
	Description     string `json:"description,omitempty"`
}

// Channel describes one destination. Address is the broker-side name: the
// 3.0.0 address field, or the x-address extension in 2.6.0.
type Channel struct {
	Description string     `json:"description,omitempty"`
	Address     string     `json:"x-address,omitempty"`
	Servers     []string   `json:"servers,omitempty"`
	Publish     *Operation `json:"publish,omitempty"`
	Subscribe   *Operation `json:"subscribe,omitempty"`
	Bindings    Bindings   `json:"bindings,omitempty"`
}

type Operation struct {
	OperationID string   `json:"operationId,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Message     Message  `json:"message"`
	Bindings    Bindings `json:"bindings,omitempty"`
}

type Message struct {
	Title         string         `json:"title"`
	Name          string         `json:"name,omitempty"`
	ContentType   string         `json:"contentType,omitempty"`
	CorrelationID *CorrelationID `json:"correlationId,omitempty"`
	Payload       map[string]any `json:"payload"`
}

type CorrelationID struct {
	Description string `json:"description,omitempty"`
	Location    string `json:"location"`
}

// NewCorrelationID returns the correlation id descriptor shared by all publishers.
func NewCorrelationID() *CorrelationID {
	return &CorrelationID{Location: CorrelationIDLocation}
}
