// Package http provides an HTTP transport for streamflow. Every message is a
// POST to the publisher URL joined with the destination.
package http

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// Register registers the HTTP transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

func init() {
	Register()
}

// Build creates a new HTTP transport posting to the configured publisher URL.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: MarshalMessageFunc(cfg.GetHTTPPublisherURL()),
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Producer:     &transport.WatermillProducer{Broker: TransportName, Publisher: pub},
		Capabilities: transport.HTTPCapabilities,
	}, nil
}

// MarshalMessageFunc builds requests to baseURL joined with the topic.
func MarshalMessageFunc(baseURL string) http.MarshalMessageFunc {
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		return http.DefaultMarshalMessageFunc(JoinURL(baseURL, topic), msg)
	}
}

// JoinURL joins base and path with exactly one slash.
func JoinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// NewPublisher declares a publisher posting to path.
func NewPublisher(path string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.HTTPCapabilities
	s := publisher.NewSettings(caps.Protocol, path, opts...)
	return transport.NewPublisher(caps, s, transport.BindingFields{
		Operation: map[string]any{"type": "request", "method": nethttp.MethodPost},
	})
}
