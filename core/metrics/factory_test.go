package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/provision/core/factory"
	metrics "github.com/kilianp07/provision/core/metrics"
	inframetrics "github.com/kilianp07/provision/infra/metrics"
)

func TestMetricsFactory_Builtins(t *testing.T) {
	assert.Subset(t, metrics.SinkTypes(), []string{"influx", "nop", "prometheus"})

	s, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink 1 (missing)")
}

func TestNewMetricsSink_Multi(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s, "nop entries collapse")

	cfgs := []factory.ModuleConfig{
		{Type: "prometheus"},
		{Type: "nop"},
		{Type: "prometheus"},
	}
	s, err = metrics.NewMetricsSink(cfgs)
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "expected MultiSink, got %T", s)
	require.Len(t, m.Sinks, 2)
	for _, sub := range m.Sinks {
		assert.IsType(t, &inframetrics.PromSink{}, sub)
	}
}
