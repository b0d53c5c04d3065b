package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	"github.com/drblury/streamflow/internal/runtime/metadata"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/specification"
	"github.com/drblury/streamflow/transport"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "kafka", caps.Name)
	assert.True(t, caps.SupportsBatching)
	assert.True(t, caps.SupportsKeys)
	assert.False(t, caps.SupportsRequest)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.KafkaCapabilities, caps)
	assert.Equal(t, "kafka", caps.Name)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "kafka", TransportName)
}

func TestBuild(t *testing.T) {
	t.Run("creates transport with mocked factory", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		defer func() { PublisherFactory = originalPubFactory }()

		mockPub := &mockPublisher{}
		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
			assert.IsType(t, Marshaler{}, cfg.Marshaler)
			require.NotNil(t, cfg.OverwriteSaramaConfig)
			assert.Equal(t, "orders-service", cfg.OverwriteSaramaConfig.ClientID)
			return mockPub, nil
		}

		cfg := &mockConfig{brokers: []string{"localhost:9092"}, clientID: "orders-service"}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, transport.KafkaCapabilities, tr.Capabilities)
		producer, ok := tr.Producer.(*Producer)
		require.True(t, ok)
		assert.Equal(t, mockPub, producer.Publisher)
	})

	t.Run("returns error when publisher factory fails", func(t *testing.T) {
		originalPubFactory := PublisherFactory
		defer func() { PublisherFactory = originalPubFactory }()

		PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		cfg := &mockConfig{brokers: []string{"localhost:9092"}}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "publisher error")
	})
}

func TestPublishCarriesKeyAndPartition(t *testing.T) {
	pub := &mockPublisher{}
	p, err := NewPublisher("orders", publisher.WithPartition(2))
	require.NoError(t, err)
	require.NoError(t, p.Setup(NewProducer(pub)))

	_, err = p.Publish(context.Background(), map[string]int{"id": 1}, publisher.WithMessageKey([]byte("order-1")))
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	msg := pub.calls[0][0]
	pm, err := Marshaler{}.Marshal("orders", msg)
	require.NoError(t, err)

	key, err := pm.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte("order-1"), key)
	assert.Equal(t, int32(2), pm.Partition)
	assert.Equal(t, pinned{}, pm.Metadata)
	assert.Empty(t, msg.Metadata.Get(keyMetadata), "addressing metadata is not sent")
	assert.Empty(t, msg.Metadata.Get(partitionMetadata))

	for _, header := range pm.Headers {
		assert.NotEqual(t, keyMetadata, string(header.Key))
	}
}

func TestPublishBatchIsOneCall(t *testing.T) {
	pub := &mockPublisher{}
	p, err := NewPublisher("orders", publisher.WithBatch())
	require.NoError(t, err)
	require.NoError(t, p.Setup(NewProducer(pub)))

	result, err := p.Publish(context.Background(), []map[string]int{{"id": 1}, {"id": 2}})
	require.NoError(t, err)

	require.Len(t, pub.calls, 1)
	assert.Len(t, pub.calls[0], 2)
	assert.Len(t, result, 2)
	assert.Equal(t, pub.calls[0][0].Metadata.Get(metadata.HeaderCorrelationID), pub.calls[0][1].Metadata.Get(metadata.HeaderCorrelationID))
}

func TestBatchWithKeyIsRejected(t *testing.T) {
	_, err := NewPublisher("orders", publisher.WithBatch(), publisher.WithKey([]byte("k")))

	var setupErr *errspkg.SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.ErrorIs(t, err, errspkg.ErrBatchKey)
}

func TestRequestIsNotSupported(t *testing.T) {
	p, err := NewPublisher("orders")
	require.NoError(t, err)
	require.NoError(t, p.Setup(NewProducer(&mockPublisher{})))

	_, err = p.Request(context.Background(), "ping")
	assert.ErrorIs(t, err, errspkg.ErrFeatureNotSupported)
}

func TestPublishWrapsClientError(t *testing.T) {
	p, err := NewPublisher("orders")
	require.NoError(t, err)
	require.NoError(t, p.Setup(NewProducer(&mockPublisher{err: sarama.ErrOutOfBrokers})))

	_, err = p.Publish(context.Background(), "x")
	var transportErr *errspkg.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestPartitioner(t *testing.T) {
	part := NewPartitioner("orders")
	assert.True(t, part.RequiresConsistency())

	got, err := part.Partition(&sarama.ProducerMessage{Partition: 3, Metadata: pinned{}}, 6)
	require.NoError(t, err)
	assert.Equal(t, int32(3), got)

	_, err = part.Partition(&sarama.ProducerMessage{Partition: 9, Metadata: pinned{}}, 6)
	assert.ErrorIs(t, err, sarama.ErrInvalidPartition)

	keyed := &sarama.ProducerMessage{Key: sarama.StringEncoder("order-1")}
	first, err := part.Partition(keyed, 6)
	require.NoError(t, err)
	second, err := part.Partition(keyed, 6)
	require.NoError(t, err)
	assert.Equal(t, first, second, "keyed messages hash consistently")
}

func TestSchema(t *testing.T) {
	p, err := NewPublisher("orders", publisher.WithPayloadTypes(struct {
		ID int `json:"id"`
	}{}))
	require.NoError(t, err)

	channels, err := p.GetSchema()
	require.NoError(t, err)
	ch := channels["orders:Publisher"]
	assert.Equal(t, specification.Binding{"topic": "orders", "bindingVersion": "0.4.0"}, ch.Bindings[specification.ProtocolKafka])
}

type mockConfig struct {
	brokers  []string
	clientID string
}

func (m *mockConfig) GetBroker() string                { return "kafka" }
func (m *mockConfig) GetKafkaBrokers() []string        { return m.brokers }
func (m *mockConfig) GetKafkaClientID() string         { return m.clientID }
func (m *mockConfig) GetRabbitMQURL() string           { return "" }
func (m *mockConfig) GetNATSURL() string               { return "" }
func (m *mockConfig) GetHTTPPublisherURL() string      { return "" }
func (m *mockConfig) GetAWSRegion() string             { return "" }
func (m *mockConfig) GetAWSAccountID() string          { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string        { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string    { return "" }
func (m *mockConfig) GetAWSEndpoint() string           { return "" }
func (m *mockConfig) GetReplyTopic() string            { return "" }
func (m *mockConfig) GetRequestTimeout() time.Duration { return 0 }

type mockPublisher struct {
	mu    sync.Mutex
	calls [][]*message.Message
	err   error
}

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, messages)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
