package publisher

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Handler is a function registered with Decorate. Invoke runs it and
// publishes its result through the publisher; Decorate leaves the original
// function untouched, so Invoke is the only path that publishes. Callers
// that feed handlers, such as a consumer loop or a startup hook, use it.
type Handler struct {
	Name         string
	ResponseType reflect.Type
	Invoke       func(ctx context.Context, in any) (any, error)
}

// Decorate records fn as a handler whose results are published by p and
// returns fn unchanged. The Out type is added to the publisher's payloads.
func Decorate[In, Out any](p Publisher, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	name := funcName(fn)
	p.RegisterHandler(Handler{
		Name:         name,
		ResponseType: reflect.TypeFor[Out](),
		Invoke: func(ctx context.Context, in any) (any, error) {
			typed, ok := in.(In)
			if !ok {
				return nil, fmt.Errorf("handler %s: unexpected input %T", name, in)
			}
			out, err := fn(ctx, typed)
			if err != nil {
				return nil, err
			}
			if _, err := p.Publish(ctx, out); err != nil {
				return out, err
			}
			return out, nil
		},
	})
	return fn
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
