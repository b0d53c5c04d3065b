package logging

// contextKeys lists, per broker, the log context fields every message log line
// carries. Missing values are logged as empty strings so lines stay aligned.
var contextKeys = map[string][]string{
	"kafka":     {"topic", "group_id"},
	"confluent": {"topic", "group_id"},
	"nats":      {"subject", "queue", "stream"},
	"rabbitmq":  {"queue", "exchange"},
	"sqs":       {"queue"},
	"http":      {"path"},
	"channel":   {"topic"},
}

// BrokerContext returns the default log context for broker, with any known
// values from values filled in. Unknown brokers get only the broker field.
func BrokerContext(broker string, values LogFields) LogFields {
	keys := contextKeys[broker]
	fields := make(LogFields, len(keys)+1+len(values))
	fields["broker"] = broker
	for _, key := range keys {
		fields[key] = ""
	}
	for key, value := range values {
		fields[key] = value
	}
	return fields
}

// ForBroker returns a child logger carrying the broker's default log context.
func ForBroker(log ServiceLogger, broker string, values LogFields) ServiceLogger {
	return log.With(BrokerContext(broker, values))
}

// ForPublisher returns a child logger for a publisher of broker. The
// destination is logged under the broker's first context key and exchange,
// when set, under "exchange".
func ForPublisher(log ServiceLogger, broker, destination, exchange string) ServiceLogger {
	values := LogFields{"destination": destination}
	if keys := contextKeys[broker]; len(keys) > 0 {
		values[keys[0]] = destination
	}
	if exchange != "" {
		values["exchange"] = exchange
	}
	return ForBroker(log, broker, values)
}
