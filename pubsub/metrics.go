package pubsub

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts notification deliveries. A nil *Metrics is valid and records nothing.
type Metrics struct {
	deliveredCounter *prometheus.CounterVec
	panicCounter     *prometheus.CounterVec
}

// NewMetrics registers the delivery counters on reg. Registering twice on the same registerer
// reuses the already registered collectors.
func NewMetrics(reg prometheus.Registerer, subsystem string) (*Metrics, error) {
	delivered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sliding_sync_client",
		Subsystem: subsystem,
		Name:      "payloads_delivered",
		Help:      "Number of payloads delivered to subscribers",
	}, []string{"payload_type"}))
	if err != nil {
		return nil, err
	}
	panics, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sliding_sync_client",
		Subsystem: subsystem,
		Name:      "subscriber_panics",
		Help:      "Number of subscriber callbacks which panicked",
	}, []string{"payload_type"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		deliveredCounter: delivered,
		panicCounter:     panics,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) delivered(p Payload) {
	if m == nil {
		return
	}
	m.deliveredCounter.WithLabelValues(p.Type()).Inc()
}

func (m *Metrics) panicked(p Payload) {
	if m == nil {
		return
	}
	m.panicCounter.WithLabelValues(p.Type()).Inc()
}
