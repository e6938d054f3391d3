package cache

import "github.com/prometheus/client_golang/prometheus"

// PrometheusRecorder reports cache activity as a Prometheus counter vector
// labeled by outcome (hit/miss/evict). Register it once per process and
// share it across every Cache instance that should contribute to the same
// metric.
type PrometheusRecorder struct {
	counter *prometheus.CounterVec
}

// NewPrometheusRecorder creates and registers the counter vector against
// reg. Pass prometheus.DefaultRegisterer to use the global registry.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "decode_cache",
		Name:      "events_total",
		Help:      "Count of decode cache hits, misses, and evictions.",
	}, []string{"outcome"})
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return &PrometheusRecorder{counter: c}, nil
}

func (r *PrometheusRecorder) Hit()   { r.counter.WithLabelValues("hit").Inc() }
func (r *PrometheusRecorder) Miss()  { r.counter.WithLabelValues("miss").Inc() }
func (r *PrometheusRecorder) Evict() { r.counter.WithLabelValues("evict").Inc() }
