package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/streamflow/publisher"
	"github.com/drblury/streamflow/specification"
	"github.com/drblury/streamflow/transport"

	configpkg "github.com/drblury/streamflow/internal/runtime/config"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// BrokerDependencies holds the optional collaborators a Broker can use.
// Leave fields nil to get the defaults.
type BrokerDependencies struct {
	// TransportFactory replaces the registry lookup for the configured broker.
	TransportFactory transport.Builder
	// Registry is consulted when TransportFactory is nil. Defaults to transport.DefaultRegistry.
	Registry *transport.Registry
	// Middlewares run around every registered publisher, outside its own middlewares.
	Middlewares []MiddlewareRegistration
	// DisableDefaultMiddlewares skips the default broker middleware chain.
	DisableDefaultMiddlewares bool
	// MetricsRegisterer receives the publish metrics. Defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// Broker owns the transport connection and the publishers sending through it.
// Register publishers before calling Connect.
type Broker struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	deps        BrokerDependencies
	middlewares []publisher.Middleware
	httpServers *httpServers

	mu         sync.RWMutex
	publishers []publisher.Publisher
	names      map[string]struct{}
	transport  transport.Transport
	producer   publisher.Producer
	connected  bool
}

// NewBroker validates conf and builds the broker middleware chain. Nothing
// connects until Connect.
func NewBroker(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps BrokerDependencies) (*Broker, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	b := &Broker{
		Conf:        conf,
		Logger:      log,
		deps:        deps,
		names:       make(map[string]struct{}),
		httpServers: newHTTPServers(),
	}
	if err := b.registerConfiguredMiddlewares(); err != nil {
		return nil, err
	}
	log.Info("Created broker", loggingpkg.LogFields{
		"broker": conf.Broker,
		"config": conf,
	})
	return b, nil
}

func (b *Broker) registerConfiguredMiddlewares() error {
	var defaults []MiddlewareRegistration
	if !b.deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(b.deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, b.deps.Middlewares...)

	for _, reg := range registrations {
		if err := b.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterMiddleware adds a broker middleware. It only reaches publishers
// registered afterwards.
func (b *Broker) RegisterMiddleware(reg MiddlewareRegistration) error {
	var mw publisher.Middleware
	switch {
	case reg.Middleware != nil:
		mw = reg.Middleware
	case reg.Builder != nil:
		var err error
		mw, err = reg.Builder(b)
		if err != nil {
			return err
		}
	default:
		return errspkg.NewSetupError("middleware "+reg.Name, errspkg.ErrUnsupportedOption)
	}
	if mw == nil {
		return nil
	}
	b.mu.Lock()
	b.middlewares = append(b.middlewares, mw)
	b.mu.Unlock()
	return nil
}

// Register adds p to the broker and injects the broker middlewares.
// Specification names (GetName) must be unique within a broker, whatever
// title the publishers carry.
func (b *Broker) Register(p publisher.Publisher) error {
	if p == nil {
		return errspkg.ErrPublisherRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	name := p.GetName()
	if _, exists := b.names[name]; exists {
		return errspkg.NewSetupError("publisher "+name, errspkg.ErrDuplicateChannel)
	}
	if b.connected {
		if err := p.Setup(b.producer); err != nil {
			return err
		}
	}
	b.names[name] = struct{}{}
	p.InjectBrokerMiddlewares(b.middlewares...)
	b.publishers = append(b.publishers, p)

	s := p.Settings()
	loggingpkg.ForPublisher(b.Logger, s.Broker, s.Destination.Name, s.Destination.Exchange).
		Debug("Registered publisher", loggingpkg.LogFields{"publisher": name, "title": p.Name()})
	return nil
}

// Publishers returns the registered publishers in registration order.
func (b *Broker) Publishers() []publisher.Publisher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]publisher.Publisher(nil), b.publishers...)
}

// Connect builds the transport and sets up every registered publisher on it.
// Calling Connect on a connected broker is a no-op.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}

	built, err := b.build(ctx)
	if err != nil {
		return err
	}
	producer := transport.Constrain(built.Producer, built.Capabilities)
	for _, p := range b.publishers {
		if err := p.Setup(producer); err != nil {
			_ = built.Producer.Close()
			return err
		}
	}
	b.transport = built
	b.producer = producer
	b.connected = true

	b.Logger.Info("Connected broker", loggingpkg.LogFields{
		"broker":     b.Conf.Broker,
		"server":     b.Conf.ServerURL(),
		"publishers": len(b.publishers),
	})
	return nil
}

func (b *Broker) build(ctx context.Context) (transport.Transport, error) {
	wmLogger := loggingpkg.NewWatermillAdapter(b.Logger)
	switch {
	case b.deps.TransportFactory != nil:
		return b.deps.TransportFactory(ctx, b.Conf, wmLogger)
	case b.deps.Registry != nil:
		return b.deps.Registry.Build(ctx, b.Conf, wmLogger)
	default:
		return transport.Build(ctx, b.Conf, wmLogger)
	}
}

// Connected reports whether Connect succeeded and Close has not been called.
func (b *Broker) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Close closes the producer. Pending requests fail and later sends return
// ErrProducerClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	b.producer = nil
	if err := b.transport.Producer.Close(); err != nil {
		return errspkg.NewTransportError(b.Conf.Broker, "close", "", err)
	}
	b.Logger.Info("Closed broker", loggingpkg.LogFields{"broker": b.Conf.Broker})
	return nil
}

// Producer returns the connected producer, or nil before Connect.
func (b *Broker) Producer() transport.Producer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.connected {
		return nil
	}
	return b.transport.Producer
}

// Capabilities returns what the configured broker supports.
func (b *Broker) Capabilities() transport.Capabilities {
	if b.deps.Registry != nil {
		return b.deps.Registry.GetCapabilities(b.Conf.Broker)
	}
	return transport.GetCapabilities(b.Conf.Broker)
}

// Schema builds the specification document for every publisher that is
// included in the schema. The first publisher error aborts the build.
func (b *Broker) Schema() (*specification.Document, error) {
	doc := specification.NewDocument(b.Conf.SchemaVersion, specification.Info{
		Title:       b.Conf.AppTitle,
		Version:     b.Conf.AppVersion,
		Description: b.Conf.AppDescription,
	})
	if url := b.Conf.ServerURL(); url != "" {
		doc.AddServer("development", specification.Server{
			URL:      url,
			Protocol: string(b.Capabilities().Protocol),
		})
	}

	for _, p := range b.Publishers() {
		if !p.IncludeInSchema() {
			continue
		}
		channels, err := p.GetSchema()
		if err != nil {
			return nil, err
		}
		if err := doc.AddChannels(channels); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
