package metric

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-channel", "test_counter", counter)
	require.NoError(t, err)

	counter.Add(3)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = mf
			break
		}
	}
	require.NotNil(t, found, "Counter should be registered in Prometheus registry")
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, 3.0, found.GetMetric()[0].GetCounter().GetValue())
}

func TestMetricsRegistry_RegisterGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-channel", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(7)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_gauge" {
			found = true
			assert.Equal(t, 7.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found, "Gauge should be registered in Prometheus registry")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "first",
	})
	second := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dup_counter",
		Help: "second",
	})

	require.NoError(t, registry.RegisterCounter("chan-a", "dup_counter", first))

	err := registry.RegisterCounter("chan-a", "dup_counter", second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate metric registration")
}

func TestMetricsRegistry_UnregisterMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "short_lived_counter",
		Help: "removed below",
	})

	require.NoError(t, registry.RegisterCounter("chan-a", "short_lived_counter", counter))
	assert.True(t, registry.Unregister("chan-a", "short_lived_counter"))
	assert.False(t, registry.Unregister("chan-a", "short_lived_counter"))

	// Re-registration after unregister must succeed.
	require.NoError(t, registry.RegisterCounter("chan-a", "short_lived_counter", counter))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "concurrency test",
			})
			err := registry.RegisterCounter("chan", fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestMetricsRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	require.NotNil(t, core.MessagesPublished)
	require.NotNil(t, core.MessagesConsumed)
	require.NotNil(t, core.ChannelDepth)
	require.NotNil(t, core.ProducersWaiting)
	require.NotNil(t, core.TerminationState)
	require.NotNil(t, core.RoutinesActive)
	require.NotNil(t, core.RoutineInvocations)
	require.NotNil(t, core.RoutineFailures)

	// Core metrics are pre-registered: exercising them must be visible in a
	// Gather without further registration.
	core.MessagesPublished.WithLabelValues("ints").Add(2)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "flow_channel_published_total" {
			found = true
		}
	}
	assert.True(t, found)
}
