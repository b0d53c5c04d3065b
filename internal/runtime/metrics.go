package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PublishMetrics tracks publish statistics per broker and destination.
type PublishMetrics struct {
	mu sync.Mutex

	messagesTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	batchSize       *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// newPublishCounterVec creates a counter vec in the streamflow/publisher namespace.
func newPublishCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamflow",
			Subsystem: "publisher",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newPublishHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "streamflow",
			Subsystem: "publisher",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPublishMetrics creates the collectors. A nil registerer selects
// prometheus.DefaultRegisterer.
func NewPublishMetrics(registerer prometheus.Registerer) *PublishMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := []string{"broker", "destination", "kind"}
	return &PublishMetrics{
		registerer:      registerer,
		messagesTotal:   newPublishCounterVec("messages_total", "Total number of messages handed to the broker", labels),
		errorsTotal:     newPublishCounterVec("errors_total", "Total number of failed publish calls", labels),
		durationSeconds: newPublishHistogramVec("duration_seconds", "Duration of publish calls including middlewares", prometheus.DefBuckets, labels),
		batchSize:       newPublishHistogramVec("batch_size", "Number of messages per batch call", []float64{1, 2, 5, 10, 25, 50, 100, 250, 500}, []string{"broker", "destination"}),
	}
}

// Register registers the collectors. Collectors already registered by
// another instance are reused, so several brokers can share a registerer.
func (m *PublishMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.messagesTotal, err = registerCollector(m.registerer, m.messagesTotal); err != nil {
		return err
	}
	if m.errorsTotal, err = registerCollector(m.registerer, m.errorsTotal); err != nil {
		return err
	}
	if m.durationSeconds, err = registerCollector(m.registerer, m.durationSeconds); err != nil {
		return err
	}
	if m.batchSize, err = registerCollector(m.registerer, m.batchSize); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return c, err
		}
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
		return c, err
	}
	return c, nil
}

// ObservePublish records one publish call of count messages.
func (m *PublishMetrics) ObservePublish(broker, destination, kind string, count int, duration time.Duration, err error) {
	m.messagesTotal.WithLabelValues(broker, destination, kind).Add(float64(count))
	m.durationSeconds.WithLabelValues(broker, destination, kind).Observe(duration.Seconds())
	if kind == "batch" {
		m.batchSize.WithLabelValues(broker, destination).Observe(float64(count))
	}
	if err != nil {
		m.errorsTotal.WithLabelValues(broker, destination, kind).Inc()
	}
}
