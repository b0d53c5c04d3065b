// Package channel provides an in-memory Go channel transport for streamflow.
// This transport is useful for testing and local development.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.ChannelCapabilities)
}

func init() {
	Register()
}

// Producer publishes into an in-memory pub/sub. PubSub exposes it so that
// in-process consumers can subscribe to the same topics.
type Producer struct {
	*transport.WatermillProducer
	PubSub *gochannel.GoChannel
}

// Build creates a new Go channel transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	// Publish waits for subscriber acks so a batch is delivered in order.
	pubSub := Factory(gochannel.Config{BlockPublishUntilSubscriberAck: true}, logger)

	requester, err := transport.NewRequester(transport.RequesterConfig{
		Broker:     TransportName,
		Publisher:  pubSub,
		Subscriber: pubSub,
		ReplyTopic: cfg.GetReplyTopic(),
		Timeout:    cfg.GetRequestTimeout(),
		Logger:     logger,
	})
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Producer: &Producer{
			WatermillProducer: &transport.WatermillProducer{
				Broker:    TransportName,
				Publisher: pubSub,
				Requester: requester,
			},
			PubSub: pubSub,
		},
		Capabilities: transport.ChannelCapabilities,
	}, nil
}

// NewPublisher declares an in-memory publisher sending to topic.
func NewPublisher(topic string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.ChannelCapabilities
	s := publisher.NewSettings(caps.Protocol, topic, opts...)
	return transport.NewPublisher(caps, s, transport.BindingFields{})
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
