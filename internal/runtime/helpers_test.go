package runtime

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/streamflow/internal/runtime/config"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/transport"
)

type OrderCreated struct {
	ID int `json:"id"`
}

type recordingProducer struct {
	mu       sync.Mutex
	envs     []*publisher.Envelope
	err      error
	errTimes int
	closed   bool
	closeErr error
}

func (p *recordingProducer) Publish(ctx context.Context, env *publisher.Envelope) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	if p.err != nil && (p.errTimes == 0 || len(p.envs) <= p.errTimes) {
		return nil, p.err
	}
	return "msg-" + env.CorrelationID, nil
}

func (p *recordingProducer) Request(ctx context.Context, env *publisher.Envelope) (*publisher.Reply, error) {
	if _, err := p.Publish(ctx, env); err != nil {
		return nil, err
	}
	return &publisher.Reply{Body: "pong", CorrelationID: env.CorrelationID}, nil
}

func (p *recordingProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *recordingProducer) Envelopes() []*publisher.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*publisher.Envelope(nil), p.envs...)
}

func (p *recordingProducer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func factoryFor(producer transport.Producer) transport.Builder {
	return func(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Producer: producer, Capabilities: transport.ChannelCapabilities}, nil
	}
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		Broker:         "channel",
		RequestTimeout: 50 * time.Millisecond,
		AppTitle:       "Orders",
		AppVersion:     "1.0.0",
		SchemaVersion:  "2.6.0",
	}
}

func newTestBroker(t *testing.T, conf *configpkg.Config, producer transport.Producer, deps BrokerDependencies) *Broker {
	t.Helper()
	if deps.TransportFactory == nil && producer != nil {
		deps.TransportFactory = factoryFor(producer)
	}
	if deps.MetricsRegisterer == nil {
		deps.MetricsRegisterer = prometheus.NewRegistry()
	}
	b, err := NewBroker(conf, loggingpkg.NewNopServiceLogger(), deps)
	require.NoError(t, err)
	return b
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
