package runtime

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// AppState is the lifecycle position of an App.
type AppState int

const (
	StateInit AppState = iota
	StateRunning
	StateStopped
)

func (s AppState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RunState is handed to App.Run by whoever launches the application.
type RunState interface {
	// Stop asks the running application to shut down.
	Stop()
	// ExtraOptions returns launcher-supplied options, logged at startup.
	ExtraOptions() map[string]any
}

// OuterRunState is used when an outer server owns the process lifecycle.
// Stop does nothing; the outer server cancels the run context instead.
type OuterRunState struct {
	Options map[string]any
}

func (OuterRunState) Stop() {}

func (s OuterRunState) ExtraOptions() map[string]any { return s.Options }

// SignalRunState stops the application when Stop is called or the process
// receives SIGINT or SIGTERM.
type SignalRunState struct {
	options map[string]any

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewSignalRunState returns a run state carrying options.
func NewSignalRunState(options map[string]any) *SignalRunState {
	return &SignalRunState{options: options}
}

// Stop cancels the run context. A Stop before Run makes Run return right
// after startup.
func (s *SignalRunState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *SignalRunState) ExtraOptions() map[string]any { return s.options }

func (s *SignalRunState) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		stopSignals()
	}
}

type runContextBinder interface {
	bind(ctx context.Context) (context.Context, context.CancelFunc)
}

// App runs a Broker with its lifecycle hooks and HTTP servers.
type App struct {
	Broker *Broker
	Hooks  LifecycleHooks

	mu     sync.Mutex
	state  AppState
	cancel context.CancelFunc
}

// NewApp wires broker with hooks.
func NewApp(broker *Broker, hooks ...LifecycleHooks) (*App, error) {
	if broker == nil {
		return nil, errspkg.ErrBrokerRequired
	}
	app := &App{Broker: broker}
	for _, h := range hooks {
		app.Hooks = app.Hooks.Merge(h)
	}
	return app, nil
}

// State returns the current lifecycle state.
func (a *App) State() AppState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Stop cancels a running App. It does nothing when the App is not running.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Run starts the broker and blocks until ctx is done or state stops the App.
// A nil state selects a SignalRunState. An App runs once.
func (a *App) Run(ctx context.Context, state RunState) error {
	if state == nil {
		state = NewSignalRunState(nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if binder, ok := state.(runContextBinder); ok {
		var release context.CancelFunc
		runCtx, release = binder.bind(runCtx)
		prev := cancel
		cancel = func() {
			release()
			prev()
		}
	}
	defer cancel()

	a.mu.Lock()
	if a.state != StateInit {
		a.mu.Unlock()
		return errspkg.ErrAppAlreadyStarted
	}
	a.state = StateRunning
	a.cancel = cancel
	a.mu.Unlock()

	log := a.Broker.Logger
	log.Info("Starting app", loggingpkg.LogFields{
		"broker":        a.Broker.Conf.Broker,
		"extra_options": state.ExtraOptions(),
	})

	if err := a.start(runCtx); err != nil {
		a.setState(StateStopped)
		return err
	}
	log.Info("App is running", nil)

	<-runCtx.Done()
	log.Info("Stopping app", nil)

	err := a.shutdown(context.WithoutCancel(ctx))
	a.setState(StateStopped)
	return err
}

func (a *App) start(ctx context.Context) error {
	if err := runHooks(ctx, a.Hooks.OnStartup); err != nil {
		return err
	}
	if err := a.Broker.Connect(ctx); err != nil {
		return err
	}
	if err := runHooks(ctx, a.Hooks.AfterStartup); err != nil {
		return errors.Join(err, a.Broker.Close())
	}
	a.Broker.RegisterDocsHandlers()
	a.Broker.startHTTPServers()
	return nil
}

func (a *App) shutdown(ctx context.Context) error {
	a.Broker.stopHTTPServers()

	var errs []error
	if err := runHooks(ctx, a.Hooks.OnShutdown); err != nil {
		errs = append(errs, err)
	}
	if err := a.Broker.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := runHooks(ctx, a.Hooks.AfterShutdown); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) setState(state AppState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	a.cancel = nil
}
