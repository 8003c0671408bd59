package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var _ Collector = (*PrometheusCollector)(nil)

// PrometheusCollector implements Collector as a prometheus.Collector:
// counters are plain int64s updated with atomic operations on the hot path,
// and only read into Prometheus metric values when Collect is invoked by a
// registry scrape.
type PrometheusCollector struct {
	labels prometheus.Labels

	hits           int64
	misses         int64
	loads          int64
	loadErrors     int64
	dedupCollapses int64
	eagerRefreshes int64
	evictions      map[EvictionReason]*int64

	sizeBytes int64
	length    int64

	hitDesc       *prometheus.Desc
	missDesc      *prometheus.Desc
	loadDesc      *prometheus.Desc
	loadErrDesc   *prometheus.Desc
	dedupDesc     *prometheus.Desc
	refreshDesc   *prometheus.Desc
	evictionDesc  *prometheus.Desc
	sizeDesc      *prometheus.Desc
	lengthDesc    *prometheus.Desc
}

// NewPrometheusCollector returns a Collector whose metrics carry the label
// name=<name>, exposed as a standalone prometheus.Collector: callers must register it
// themselves with prometheus.Register or a custom registry.
func NewPrometheusCollector(name string) *PrometheusCollector {
	labels := prometheus.Labels{"name": name}

	evictions := make(map[EvictionReason]*int64, 3)
	for _, reason := range []EvictionReason{EvictionReasonCapacity, EvictionReasonTTL, EvictionReasonManual} {
		var count int64
		evictions[reason] = &count
	}

	return &PrometheusCollector{
		labels:    labels,
		evictions: evictions,

		hitDesc:      prometheus.NewDesc("stashcore_hit_total", "Total number of cache hits", nil, labels),
		missDesc:     prometheus.NewDesc("stashcore_miss_total", "Total number of cache misses", nil, labels),
		loadDesc:     prometheus.NewDesc("stashcore_load_total", "Total number of loader invocations", nil, labels),
		loadErrDesc:  prometheus.NewDesc("stashcore_load_error_total", "Total number of failed loader invocations", nil, labels),
		dedupDesc:    prometheus.NewDesc("stashcore_dedup_collapse_total", "Total number of concurrent loads collapsed into one in-flight load", nil, labels),
		refreshDesc:  prometheus.NewDesc("stashcore_eager_refresh_total", "Total number of XFetch-triggered eager refreshes", nil, labels),
		evictionDesc: prometheus.NewDesc("stashcore_eviction_total", "Total number of entries evicted, labeled by reason", []string{"reason"}, labels),
		sizeDesc:     prometheus.NewDesc("stashcore_size_bytes", "Current accumulated size of cached values in bytes", nil, labels),
		lengthDesc:   prometheus.NewDesc("stashcore_length", "Current number of resident entries", nil, labels),
	}
}

func (p *PrometheusCollector) IncHit()           { atomic.AddInt64(&p.hits, 1) }
func (p *PrometheusCollector) IncMiss()          { atomic.AddInt64(&p.misses, 1) }
func (p *PrometheusCollector) IncLoad()          { atomic.AddInt64(&p.loads, 1) }
func (p *PrometheusCollector) IncLoadError()     { atomic.AddInt64(&p.loadErrors, 1) }
func (p *PrometheusCollector) IncDedupCollapse() { atomic.AddInt64(&p.dedupCollapses, 1) }
func (p *PrometheusCollector) IncEagerRefresh()  { atomic.AddInt64(&p.eagerRefreshes, 1) }

func (p *PrometheusCollector) IncEviction(reason EvictionReason) {
	// The map itself is immutable after construction; only known reasons
	// are counted.
	if counter, ok := p.evictions[reason]; ok {
		atomic.AddInt64(counter, 1)
	}
}

func (p *PrometheusCollector) SetSizeBytes(bytes int64) { atomic.StoreInt64(&p.sizeBytes, bytes) }
func (p *PrometheusCollector) SetLength(n int64)        { atomic.StoreInt64(&p.length, n) }

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.hitDesc
	ch <- p.missDesc
	ch <- p.loadDesc
	ch <- p.loadErrDesc
	ch <- p.dedupDesc
	ch <- p.refreshDesc
	ch <- p.evictionDesc
	ch <- p.sizeDesc
	ch <- p.lengthDesc
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(p.hitDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.hits)))
	ch <- prometheus.MustNewConstMetric(p.missDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.misses)))
	ch <- prometheus.MustNewConstMetric(p.loadDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.loads)))
	ch <- prometheus.MustNewConstMetric(p.loadErrDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.loadErrors)))
	ch <- prometheus.MustNewConstMetric(p.dedupDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.dedupCollapses)))
	ch <- prometheus.MustNewConstMetric(p.refreshDesc, prometheus.CounterValue, float64(atomic.LoadInt64(&p.eagerRefreshes)))
	ch <- prometheus.MustNewConstMetric(p.sizeDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&p.sizeBytes)))
	ch <- prometheus.MustNewConstMetric(p.lengthDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&p.length)))

	for reason, counter := range p.evictions {
		ch <- prometheus.MustNewConstMetric(p.evictionDesc, prometheus.CounterValue, float64(atomic.LoadInt64(counter)), string(reason))
	}
}
