package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) hook(name string) Hook {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.phases = append(r.phases, name)
		return nil
	}
}

func (r *phaseRecorder) Phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.phases...)
}

func (r *phaseRecorder) hooks() LifecycleHooks {
	return LifecycleHooks{
		OnStartup:     []Hook{r.hook("on_startup")},
		AfterStartup:  []Hook{r.hook("after_startup")},
		OnShutdown:    []Hook{r.hook("on_shutdown")},
		AfterShutdown: []Hook{r.hook("after_shutdown")},
	}
}

func TestNewAppRequiresBroker(t *testing.T) {
	_, err := NewApp(nil)
	assert.ErrorIs(t, err, errspkg.ErrBrokerRequired)
}

func TestAppRunLifecycle(t *testing.T) {
	producer := &recordingProducer{}
	b := newTestBroker(t, testConfig(), producer, BrokerDependencies{})
	recorder := &phaseRecorder{}
	app, err := NewApp(b, recorder.hooks())
	require.NoError(t, err)
	assert.Equal(t, StateInit, app.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, OuterRunState{}) }()

	require.Eventually(t, func() bool { return app.State() == StateRunning && b.Connected() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, StateStopped, app.State())
	assert.True(t, producer.Closed())
	assert.Equal(t, []string{"on_startup", "after_startup", "on_shutdown", "after_shutdown"}, recorder.Phases())
	assert.ErrorIs(t, app.Run(context.Background(), OuterRunState{}), errspkg.ErrAppAlreadyStarted)
}

func TestSignalRunStateStop(t *testing.T) {
	b := newTestBroker(t, testConfig(), &recordingProducer{}, BrokerDependencies{})
	app, err := NewApp(b)
	require.NoError(t, err)

	state := NewSignalRunState(map[string]any{"workers": 1})
	assert.Equal(t, map[string]any{"workers": 1}, state.ExtraOptions())

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background(), state) }()
	require.Eventually(t, func() bool { return b.Connected() }, time.Second, 5*time.Millisecond)

	state.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
	assert.False(t, b.Connected())
}

func TestSignalRunStateStoppedBeforeRun(t *testing.T) {
	b := newTestBroker(t, testConfig(), &recordingProducer{}, BrokerDependencies{})
	app, err := NewApp(b)
	require.NoError(t, err)

	state := NewSignalRunState(nil)
	state.Stop()

	require.NoError(t, app.Run(context.Background(), state))
	assert.Equal(t, StateStopped, app.State())
}

func TestAppStartupHookErrorAborts(t *testing.T) {
	producer := &recordingProducer{}
	b := newTestBroker(t, testConfig(), producer, BrokerDependencies{})
	boom := errors.New("migrations failed")
	app, err := NewApp(b, LifecycleHooks{
		OnStartup: []Hook{func(ctx context.Context) error { return boom }},
	})
	require.NoError(t, err)

	err = app.Run(context.Background(), OuterRunState{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.Connected())
	assert.Equal(t, StateStopped, app.State())
}

func TestAppAfterStartupErrorClosesBroker(t *testing.T) {
	producer := &recordingProducer{}
	b := newTestBroker(t, testConfig(), producer, BrokerDependencies{})
	boom := errors.New("warmup failed")
	app, err := NewApp(b, LifecycleHooks{
		AfterStartup: []Hook{func(ctx context.Context) error { return boom }},
	})
	require.NoError(t, err)

	err = app.Run(context.Background(), OuterRunState{})
	assert.ErrorIs(t, err, boom)
	assert.True(t, producer.Closed())
}

func TestAppStop(t *testing.T) {
	b := newTestBroker(t, testConfig(), &recordingProducer{}, BrokerDependencies{})
	app, err := NewApp(b)
	require.NoError(t, err)
	app.Stop()

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background(), OuterRunState{}) }()
	require.Eventually(t, func() bool { return app.State() == StateRunning && b.Connected() }, time.Second, 5*time.Millisecond)

	app.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
}

func TestAppStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", AppState(9).String())
}
