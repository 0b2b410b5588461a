// Package metrics holds the Prometheus collectors exported by the fabric engine.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks traffic and operation counts per rank. A nil
// *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	mu sync.Mutex

	messagesSent       *prometheus.CounterVec
	messagesReceived   *prometheus.CounterVec
	bytesSent          *prometheus.CounterVec
	collectivesTotal   *prometheus.CounterVec
	collectiveDuration *prometheus.HistogramVec
	requestsActive     *prometheus.GaugeVec
	rmaOpsTotal        *prometheus.CounterVec
	abortsTotal        *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mpiflow",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mpiflow",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mpiflow",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewEngineMetrics creates the collectors. A nil registerer means the default one.
func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &EngineMetrics{
		registerer:         registerer,
		messagesSent:       newCounterVec("messages_sent_total", "Envelopes published by this rank", []string{"rank", "kind"}),
		messagesReceived:   newCounterVec("messages_received_total", "Envelopes delivered to this rank", []string{"rank", "kind"}),
		bytesSent:          newCounterVec("payload_bytes_sent_total", "Payload bytes published by this rank", []string{"rank"}),
		collectivesTotal:   newCounterVec("collectives_total", "Collective operations completed", []string{"rank", "op"}),
		collectiveDuration: newHistogramVec("collective_duration_seconds", "Wall time spent inside a collective", []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}, []string{"rank", "op"}),
		requestsActive:     newGaugeVec("requests_active", "Requests started but not yet completed or freed", []string{"rank"}),
		rmaOpsTotal:        newCounterVec("rma_operations_total", "One-sided operations issued", []string{"rank", "op"}),
		abortsTotal:        newCounterVec("aborts_total", "Job aborts observed", []string{"rank"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *EngineMetrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesSent,
		m.messagesReceived,
		m.bytesSent,
		m.collectivesTotal,
		m.collectiveDuration,
		m.requestsActive,
		m.rmaOpsTotal,
		m.abortsTotal,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func rankLabel(rank int32) string {
	return strconv.Itoa(int(rank))
}

// MessageSent records one published envelope.
func (m *EngineMetrics) MessageSent(rank int32, kind string, payloadBytes int) {
	if m == nil {
		return
	}
	r := rankLabel(rank)
	m.messagesSent.WithLabelValues(r, kind).Inc()
	m.bytesSent.WithLabelValues(r).Add(float64(payloadBytes))
}

// MessageReceived records one delivered envelope.
func (m *EngineMetrics) MessageReceived(rank int32, kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(rankLabel(rank), kind).Inc()
}

// CollectiveDone records a finished collective and its duration.
func (m *EngineMetrics) CollectiveDone(rank int32, op string, took time.Duration) {
	if m == nil {
		return
	}
	r := rankLabel(rank)
	m.collectivesTotal.WithLabelValues(r, op).Inc()
	m.collectiveDuration.WithLabelValues(r, op).Observe(took.Seconds())
}

// RequestStarted increments the active request gauge.
func (m *EngineMetrics) RequestStarted(rank int32) {
	if m == nil {
		return
	}
	m.requestsActive.WithLabelValues(rankLabel(rank)).Inc()
}

// RequestRetired decrements the active request gauge.
func (m *EngineMetrics) RequestRetired(rank int32) {
	if m == nil {
		return
	}
	m.requestsActive.WithLabelValues(rankLabel(rank)).Dec()
}

// RMAOperation records one get, put, lock or unlock.
func (m *EngineMetrics) RMAOperation(rank int32, op string) {
	if m == nil {
		return
	}
	m.rmaOpsTotal.WithLabelValues(rankLabel(rank), op).Inc()
}

// Aborted records a job abort seen by rank.
func (m *EngineMetrics) Aborted(rank int32) {
	if m == nil {
		return
	}
	m.abortsTotal.WithLabelValues(rankLabel(rank)).Inc()
}

// Reset clears all series (useful for testing).
func (m *EngineMetrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messagesSent.Reset()
	m.messagesReceived.Reset()
	m.bytesSent.Reset()
	m.collectivesTotal.Reset()
	m.collectiveDuration.Reset()
	m.requestsActive.Reset()
	m.rmaOpsTotal.Reset()
	m.abortsTotal.Reset()
}
