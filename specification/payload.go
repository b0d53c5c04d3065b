package specification

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/drblury/streamflow/internal/runtime/codec"
	errspkg "github.com/drblury/streamflow/internal/runtime/errors"
)

// Payload is one candidate message body schema, optionally tied to the
// handler that produces it.
type Payload struct {
	Schema  map[string]any
	Handler string
}

// structReflector inlines a named struct's definition at the root;
// reflector handles every other kind, which have no root definition.
var (
	structReflector = &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
		ExpandedStruct: true,
	}
	reflector = &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
)

func reflectorFor(t reflect.Type) *jsonschema.Reflector {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct && t.Name() != "" {
		return structReflector
	}
	return reflector
}

// ResolvePayload converts a Go type into a JSON Schema object titled after
// the type. Types that cannot be described, such as channels or funcs, yield
// a *SchemaResolutionError.
func ResolvePayload(t reflect.Type) (schema map[string]any, err error) {
	if t == nil {
		return nil, &errspkg.SchemaResolutionError{Type: "<nil>", Err: errors.New("type is nil")}
	}
	if err := checkSupported(t, map[reflect.Type]bool{}); err != nil {
		return nil, &errspkg.SchemaResolutionError{Type: t.String(), Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			schema = nil
			err = &errspkg.SchemaResolutionError{Type: t.String(), Err: fmt.Errorf("reflect: %v", r)}
		}
	}()

	raw, err := codec.MarshalJSON(reflectorFor(t).ReflectFromType(t))
	if err != nil {
		return nil, &errspkg.SchemaResolutionError{Type: t.String(), Err: err}
	}
	if err := codec.UnmarshalJSON(raw, &schema); err != nil {
		return nil, &errspkg.SchemaResolutionError{Type: t.String(), Err: err}
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["title"]; !ok {
		schema["title"] = typeTitle(t)
	}
	return schema, nil
}

// ResolvePayloadOf is ResolvePayload for the dynamic type of v.
func ResolvePayloadOf(v any) (map[string]any, error) {
	return ResolvePayload(reflect.TypeOf(v))
}

// ResolvePayloads combines candidate payloads into the message payload.
// No candidates produce a null schema titled "<extra>:Message:Payload",
// identical schemas are collapsed, a single schema is used as is and several
// become a oneOf keyed by title.
func ResolvePayloads(payloads []Payload, extra string) map[string]any {
	unique := dedupe(payloads)

	switch len(unique) {
	case 0:
		return map[string]any{
			"title": joinTitle(extra, "Message", "Payload"),
			"type":  "null",
		}
	case 1:
		return unique[0].Schema
	}

	oneOf := make(map[string]any, len(unique))
	for _, p := range unique {
		body := cloneSchema(p.Schema)
		title, _ := body["title"].(string)
		if p.Handler != "" {
			title = joinTitle(p.Handler, extra, title)
		}
		if title == "" {
			title = joinTitle(extra, "Message", "Payload")
		}
		base := title
		for i := 2; oneOf[title] != nil; i++ {
			title = fmt.Sprintf("%s:%d", base, i)
		}
		body["title"] = title
		oneOf[title] = body
	}
	return map[string]any{"oneOf": oneOf}
}

func dedupe(payloads []Payload) []Payload {
	seen := make(map[string]struct{}, len(payloads))
	unique := make([]Payload, 0, len(payloads))
	for _, p := range payloads {
		if p.Schema == nil {
			continue
		}
		key, err := codec.MarshalJSON(p.Schema)
		if err != nil {
			unique = append(unique, p)
			continue
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

func checkSupported(t reflect.Type, visited map[reflect.Type]bool) error {
	if visited[t] {
		return nil
	}
	visited[t] = true

	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Errorf("unsupported kind %s", t.Kind())
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return checkSupported(t.Elem(), visited)
	case reflect.Map:
		if err := checkSupported(t.Key(), visited); err != nil {
			return err
		}
		return checkSupported(t.Elem(), visited)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() || field.Tag.Get("json") == "-" {
				continue
			}
			if err := checkSupported(field.Type, visited); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func typeTitle(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func joinTitle(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

func cloneSchema(schema map[string]any) map[string]any {
	cloned := make(map[string]any, len(schema))
	for k, v := range schema {
		cloned[k] = v
	}
	return cloned
}
