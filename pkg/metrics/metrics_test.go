package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpCollector_DoesNotPanic(t *testing.T) {
	c := NoOp()
	c.IncHit()
	c.IncMiss()
	c.IncLoad()
	c.IncLoadError()
	c.IncDedupCollapse()
	c.IncEagerRefresh()
	c.IncEviction(EvictionReasonCapacity)
	c.SetSizeBytes(123)
	c.SetLength(4)
}

func TestPrometheusCollector_CountersCollect(t *testing.T) {
	is := assert.New(t)

	c := NewPrometheusCollector("test_cache")
	c.IncHit()
	c.IncHit()
	c.IncMiss()
	c.IncLoad()
	c.IncLoadError()
	c.IncDedupCollapse()
	c.IncEagerRefresh()
	c.IncEviction(EvictionReasonTTL)
	c.SetSizeBytes(2048)
	c.SetLength(10)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] = metricValue(m)
		}
	}

	is.Equal(2.0, values["stashcore_hit_total"])
	is.Equal(1.0, values["stashcore_miss_total"])
	is.Equal(1.0, values["stashcore_load_total"])
	is.Equal(1.0, values["stashcore_load_error_total"])
	is.Equal(1.0, values["stashcore_dedup_collapse_total"])
	is.Equal(1.0, values["stashcore_eager_refresh_total"])
	is.Equal(2048.0, values["stashcore_size_bytes"])
	is.Equal(10.0, values["stashcore_length"])
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	default:
		return 0
	}
}
