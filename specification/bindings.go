package specification

import (
	"fmt"
	"reflect"
	"sort"
)

// Protocol tags a binding with the broker family it describes.
type Protocol string

const (
	ProtocolKafka  Protocol = "kafka"
	ProtocolNATS   Protocol = "nats"
	ProtocolSQS    Protocol = "sqs"
	ProtocolAMQP   Protocol = "amqp"
	ProtocolHTTP   Protocol = "http"
	ProtocolMemory Protocol = "memory"
)

// Scope is the document element a binding is attached to.
type Scope string

const (
	ScopeChannel   Scope = "channel"
	ScopeOperation Scope = "operation"
)

// Binding holds the protocol specific fields of one channel or operation,
// including bindingVersion.
type Binding map[string]any

// Bindings maps each protocol to its binding.
type Bindings map[Protocol]Binding

type vocabulary struct {
	version   string
	channel   []string
	operation []string
}

var vocabularies = map[Protocol]vocabulary{
	ProtocolKafka: {
		version:   "0.4.0",
		channel:   []string{"topic", "partitions", "replicas", "topicConfiguration"},
		operation: []string{"groupId", "clientId", "replyTo"},
	},
	ProtocolNATS: {
		version:   "custom",
		channel:   []string{"subject", "queue"},
		operation: []string{"replyTo"},
	},
	ProtocolSQS: {
		version:   "custom",
		channel:   []string{"queue"},
		operation: []string{"replyTo"},
	},
	ProtocolAMQP: {
		version:   "0.2.0",
		channel:   []string{"is", "exchange", "queue"},
		operation: []string{"cc", "ack", "replyTo", "deliveryMode", "mandatory", "priority"},
	},
	ProtocolHTTP: {
		version:   "0.3.0",
		operation: []string{"type", "method", "query"},
	},
	ProtocolMemory: {
		version: "custom",
	},
}

// NewBinding validates fields against the closed vocabulary of protocol and
// scope. Empty values are dropped and bindingVersion is added. A binding with
// no remaining fields is returned as nil.
func NewBinding(protocol Protocol, scope Scope, fields map[string]any) (Binding, error) {
	vocab, ok := vocabularies[protocol]
	if !ok {
		return nil, fmt.Errorf("bindings: unknown protocol %q", protocol)
	}

	var allowed []string
	switch scope {
	case ScopeChannel:
		allowed = vocab.channel
	case ScopeOperation:
		allowed = vocab.operation
	default:
		return nil, fmt.Errorf("bindings: unknown scope %q", scope)
	}

	binding := Binding{}
	for _, key := range sortedKeys(fields) {
		if !contains(allowed, key) {
			return nil, fmt.Errorf("bindings: field %q is not valid for %s %s binding", key, protocol, scope)
		}
		if isEmpty(fields[key]) {
			continue
		}
		binding[key] = fields[key]
	}
	if len(binding) == 0 {
		return nil, nil
	}
	binding["bindingVersion"] = vocab.version
	return binding, nil
}

// Add attaches binding under protocol, skipping nil bindings.
func (b Bindings) Add(protocol Protocol, binding Binding) Bindings {
	if binding == nil {
		return b
	}
	if b == nil {
		b = Bindings{}
	}
	b[protocol] = binding
	return b
}

// Fields returns the allowed field names for protocol and scope, sorted.
func Fields(protocol Protocol, scope Scope) []string {
	vocab := vocabularies[protocol]
	var fields []string
	switch scope {
	case ScopeChannel:
		fields = append(fields, vocab.channel...)
	case ScopeOperation:
		fields = append(fields, vocab.operation...)
	}
	sort.Strings(fields)
	return fields
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
