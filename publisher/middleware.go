package publisher

import "context"

// PublishFunc sends an envelope. Request calls return a *Reply as result.
type PublishFunc func(ctx context.Context, env *Envelope) (any, error)

// Middleware wraps a PublishFunc.
type Middleware func(next PublishFunc) PublishFunc

// Chain composes mws around final. The first middleware is the outermost, so
// it sees the envelope first and the result last.
func Chain(final PublishFunc, mws ...Middleware) PublishFunc {
	wrapped := final
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
