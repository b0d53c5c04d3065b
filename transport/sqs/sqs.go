// Package sqs provides an AWS SQS transport for streamflow. Single messages
// and requests go through watermill-aws; batches use SendMessageBatch.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmsqs "github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "sqs"

// MaxMessageAttributes is the most message attributes SQS accepts per message.
const MaxMessageAttributes = 10

// BatchClient is the part of the SQS client used for batches.
type BatchClient interface {
	SendMessageBatch(ctx context.Context, params *amazonsqs.SendMessageBatchInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageBatchOutput, error)
	GetQueueUrl(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg wmsqs.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmsqs.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the reply subscriber creation for testing.
var SubscriberFactory = func(cfg wmsqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmsqs.NewSubscriber(cfg, logger)
}

// ClientFactory allows overriding the batch client creation for testing.
var ClientFactory = func(cfg aws.Config, optFns ...func(*amazonsqs.Options)) BatchClient {
	return amazonsqs.NewFromConfig(cfg, optFns...)
}

// Register registers the SQS transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.SQSCapabilities)
}

func init() {
	Register()
}

// Build creates a new SQS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	awsCfg, err := createAWSConfig(ctx, cfg, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	optFns, err := endpointOptions(cfg)
	if err != nil {
		return transport.Transport{}, err
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": len(optFns) > 0,
	})

	pub, err := PublisherFactory(wmsqs.PublisherConfig{AWSConfig: awsCfg, OptFns: optFns}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(wmsqs.SubscriberConfig{AWSConfig: awsCfg, OptFns: optFns}, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}
	requester, err := transport.NewRequester(transport.RequesterConfig{
		Broker:     TransportName,
		Publisher:  pub,
		Subscriber: sub,
		ReplyTopic: cfg.GetReplyTopic(),
		Timeout:    cfg.GetRequestTimeout(),
		Logger:     logger,
	})
	if err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return transport.Transport{}, err
	}

	producer := NewProducer(&transport.WatermillProducer{
		Broker:         TransportName,
		Publisher:      pub,
		Requester:      requester,
		Closers:        []func() error{sub.Close},
		MaxMessageSize: transport.SQSCapabilities.MaxMessageSize,
	}, ClientFactory(awsCfg, optFns...), resolveAccountID(cfg, logger))

	return transport.Transport{
		Producer:     producer,
		Capabilities: transport.SQSCapabilities,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SQSCapabilities
}

// Producer sends single messages and requests through Watermill and batches
// with SendMessageBatch.
type Producer struct {
	*transport.WatermillProducer
	client    BatchClient
	accountID string

	mu        sync.Mutex
	queueURLs map[string]string
}

// NewProducer wraps base for single messages and client for batches.
// accountID, when set, names the owner of the queues. Messages with more
// than MaxMessageAttributes headers are rejected unless base validates them.
func NewProducer(base *transport.WatermillProducer, client BatchClient, accountID string) *Producer {
	if base.Validate == nil {
		base.Validate = CheckAttributes
	}
	return &Producer{
		WatermillProducer: base,
		client:            client,
		accountID:         accountID,
		queueURLs:         map[string]string{},
	}
}

// PublishBatch sends the batch in chunks of SQSCapabilities.MaxBatchSize and
// returns the SQS message ids in batch order. The first failed chunk stops
// the batch; the ids sent until then are returned with the error, empty for
// entries SQS rejected.
func (p *Producer) PublishBatch(ctx context.Context, env *publisher.Envelope) (any, error) {
	msgs, err := p.Encode(ctx, env)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []string{}, nil
	}
	queueURL, err := p.queueURL(ctx, env.Destination.Name)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(msgs))
	for _, chunk := range transport.SQSCapabilities.BatchChunks(len(msgs)) {
		sent, err := p.sendChunk(ctx, queueURL, msgs[chunk[0]:chunk[1]])
		ids = append(ids, sent...)
		if err != nil {
			return ids, errspkg.NewTransportError(TransportName, "publish batch", env.Destination.Name, err)
		}
	}
	return ids, nil
}

// CheckAttributes fails when msg carries more headers than SQS accepts as
// message attributes.
func CheckAttributes(msg *message.Message) error {
	if n := len(attributes(msg.Metadata)); n > MaxMessageAttributes {
		return fmt.Errorf("%w: %d attributes, limit %d", errspkg.ErrTooManyAttributes, n, MaxMessageAttributes)
	}
	return nil
}

// sendChunk returns one id per message, empty for entries that failed.
func (p *Producer) sendChunk(ctx context.Context, queueURL string, msgs []*message.Message) ([]string, error) {
	entries := make([]types.SendMessageBatchRequestEntry, len(msgs))
	for i, msg := range msgs {
		entries[i] = types.SendMessageBatchRequestEntry{
			Id:                aws.String(strconv.Itoa(i)),
			MessageBody:       aws.String(string(msg.Payload)),
			MessageAttributes: attributes(msg.Metadata),
		}
	}

	out, err := p.client.SendMessageBatch(ctx, &amazonsqs.SendMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(msgs))
	for _, entry := range out.Successful {
		i, err := strconv.Atoi(aws.ToString(entry.Id))
		if err != nil || i < 0 || i >= len(ids) {
			return nil, fmt.Errorf("unexpected batch entry id %q", aws.ToString(entry.Id))
		}
		ids[i] = aws.ToString(entry.MessageId)
	}
	if len(out.Failed) > 0 {
		failed := out.Failed[0]
		return ids, fmt.Errorf("entry %s failed: %s: %s", aws.ToString(failed.Id), aws.ToString(failed.Code), aws.ToString(failed.Message))
	}
	for i, id := range ids {
		if id == "" {
			return ids, fmt.Errorf("no result for batch entry %d", i)
		}
	}
	return ids, nil
}

func (p *Producer) queueURL(ctx context.Context, queue string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.queueURLs[queue]; ok {
		return u, nil
	}

	input := &amazonsqs.GetQueueUrlInput{QueueName: aws.String(queue)}
	if p.accountID != "" {
		input.QueueOwnerAWSAccountId = aws.String(p.accountID)
	}
	out, err := p.client.GetQueueUrl(ctx, input)
	if err != nil {
		return "", errspkg.NewTransportError(TransportName, "resolve queue", queue, err)
	}
	if out.QueueUrl == nil {
		return "", errspkg.NewTransportError(TransportName, "resolve queue", queue, errors.New("empty queue url"))
	}
	p.queueURLs[queue] = *out.QueueUrl
	return *out.QueueUrl, nil
}

func attributes(md message.Metadata) map[string]types.MessageAttributeValue {
	attrs := make(map[string]types.MessageAttributeValue, len(md))
	for key, value := range md {
		if value == "" {
			continue
		}
		attrs[key] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	return attrs
}

// NewPublisher declares an SQS publisher sending to queue.
func NewPublisher(queue string, opts ...publisher.Option) (publisher.Publisher, error) {
	caps := transport.SQSCapabilities
	s := publisher.NewSettings(caps.Protocol, queue, opts...)

	fields := transport.BindingFields{
		Channel: map[string]any{"queue": map[string]any{"name": s.Destination.Name}},
	}
	if s.ReplyTo != "" {
		fields.Operation = map[string]any{"replyTo": map[string]any{"name": s.ReplyTo}}
	}
	return transport.NewPublisher(caps, s, fields)
}
