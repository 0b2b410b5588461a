package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NoError(t, m.Register())

	m.MessageSent(0, "data", 16)
	m.MessageSent(0, "data", 8)
	m.MessageReceived(1, "data")
	m.RMAOperation(1, "put")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("0", "data")))
	assert.Equal(t, 24.0, testutil.ToFloat64(m.bytesSent.WithLabelValues("0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesReceived.WithLabelValues("1", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rmaOpsTotal.WithLabelValues("1", "put")))
}

func TestEngineMetrics_RequestsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NoError(t, m.Register())

	m.RequestStarted(2)
	m.RequestStarted(2)
	m.RequestRetired(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsActive.WithLabelValues("2")))
}

func TestEngineMetrics_Collectives(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NoError(t, m.Register())

	m.CollectiveDone(0, "allreduce", 3*time.Millisecond)
	m.Aborted(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.collectivesTotal.WithLabelValues("0", "allreduce")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.abortsTotal.WithLabelValues("0")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.collectiveDuration))
}

func TestEngineMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	other := NewEngineMetrics(reg)
	assert.NoError(t, other.Register(), "already registered collectors are tolerated")
}

func TestEngineMetrics_NilSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		require.NoError(t, m.Register())
		m.MessageSent(0, "data", 1)
		m.MessageReceived(0, "data")
		m.CollectiveDone(0, "barrier", time.Millisecond)
		m.RequestStarted(0)
		m.RequestRetired(0)
		m.RMAOperation(0, "get")
		m.Aborted(0)
		m.Reset()
	})
}

func TestEngineMetrics_Reset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NoError(t, m.Register())

	m.MessageSent(0, "data", 4)
	m.Reset()

	assert.Equal(t, 0, testutil.CollectAndCount(m.messagesSent))
}
