package runtime

import (
	"context"

	loggingpkg "github.com/drblury/streamflow/internal/runtime/logging"
)

// Hook runs at one point of the application lifecycle.
type Hook func(ctx context.Context) error

// LifecycleHooks defines callbacks around broker startup and shutdown.
// All hooks are optional.
type LifecycleHooks struct {
	// OnStartup runs before the broker connects. An error aborts the start.
	OnStartup []Hook
	// AfterStartup runs once the broker is connected, before HTTP servers start.
	AfterStartup []Hook
	// OnShutdown runs before the broker is closed.
	OnShutdown []Hook
	// AfterShutdown runs once the broker is closed.
	AfterShutdown []Hook
}

// Merge combines two LifecycleHooks. The hooks from other run after the hooks from h.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStartup:     chainHooks(h.OnStartup, other.OnStartup),
		AfterStartup:  chainHooks(h.AfterStartup, other.AfterStartup),
		OnShutdown:    chainHooks(h.OnShutdown, other.OnShutdown),
		AfterShutdown: chainHooks(h.AfterShutdown, other.AfterShutdown),
	}
}

func chainHooks(a, b []Hook) []Hook {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	chained := make([]Hook, 0, len(a)+len(b))
	chained = append(chained, a...)
	return append(chained, b...)
}

// runHooks runs hooks in order and stops at the first error.
func runHooks(ctx context.Context, hooks []Hook) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingHooks returns pre-built hooks that log each lifecycle phase.
func LoggingHooks(logger loggingpkg.ServiceLogger) LifecycleHooks {
	logPhase := func(phase string) Hook {
		return func(ctx context.Context) error {
			logger.Info("Lifecycle phase", loggingpkg.LogFields{"phase": phase})
			return nil
		}
	}
	return LifecycleHooks{
		OnStartup:     []Hook{logPhase("on_startup")},
		AfterStartup:  []Hook{logPhase("after_startup")},
		OnShutdown:    []Hook{logPhase("on_shutdown")},
		AfterShutdown: []Hook{logPhase("after_shutdown")},
	}
}
