package streamflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamflow/transport/channel"
	"github.com/drblury/streamflow/transport/kafka"
)

type OrderCreated struct {
	ID int `json:"id"`
}

func TestBuiltInTransportsAreRegistered(t *testing.T) {
	for _, name := range []string{"channel", "confluent", "http", "kafka", "nats", "rabbitmq", "sqs"} {
		assert.True(t, DefaultTransports.Has(name), name)
	}
	assert.True(t, GetCapabilities("confluent").SupportsBatching)
}

func TestBatchPublisherRejectsKey(t *testing.T) {
	_, err := kafka.NewPublisher("orders", WithBatch(), WithKey([]byte("k")))

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.ErrorIs(t, err, ErrBatchKey)
}

func TestEndToEndOnChannelBroker(t *testing.T) {
	broker, err := NewBroker(&Config{
		Broker:         "channel",
		RequestTimeout: time.Second,
		AppTitle:       "Orders",
		AppVersion:     "1.0.0",
	}, NewNopServiceLogger(), BrokerDependencies{MetricsRegisterer: prometheus.NewRegistry()})
	require.NoError(t, err)

	orders, err := channel.NewPublisher("orders", WithPayloadTypes(OrderCreated{}))
	require.NoError(t, err)
	require.NoError(t, broker.Register(orders))

	require.NoError(t, broker.Connect(context.Background()))
	defer broker.Close()

	_, err = orders.Publish(context.Background(), OrderCreated{ID: 1}, WithCorrelationID("corr-1"))
	require.NoError(t, err)

	doc, err := broker.Schema()
	require.NoError(t, err)
	raw, err := doc.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, Unmarshal(raw, &decoded))
	assert.Equal(t, AsyncAPIVersion260, decoded["asyncapi"])
	assert.Contains(t, decoded["channels"], "orders:Publisher")
}

func TestDecorateAddsPayloadType(t *testing.T) {
	p, err := channel.NewPublisher("orders")
	require.NoError(t, err)

	handler := Decorate(p, func(ctx context.Context, id int) (OrderCreated, error) {
		return OrderCreated{ID: id}, nil
	})
	require.NotNil(t, handler)
	require.Len(t, p.Handlers(), 1)

	channels, err := p.GetSchema()
	require.NoError(t, err)
	assert.Equal(t, "OrderCreated", channels["orders:Publisher"].Publish.Message.Payload["title"])
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestHeadersExport(t *testing.T) {
	headers := NewHeaders("tenant", "acme")
	if headers["tenant"] != "acme" {
		t.Fatalf("expected headers to contain tenant, got %#v", headers)
	}
}
