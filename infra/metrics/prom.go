package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/provision/core/metrics"
)

// PromSink records provision events in Prometheus metrics.
type PromSink struct {
	aggregations *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	loyalty      *prometheus.GaugeVec
	isochrones   *prometheus.CounterVec
	isoLatency   *prometheus.HistogramVec
	computed     *prometheus.CounterVec
}

// NewPromSink registers provision metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusAddr.
func NewPromSink(cfg coremetrics.Config) (*PromSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_aggregations_total",
			Help: "Total number of provision aggregations",
		}, []string{"level"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provision_aggregation_duration_seconds",
			Help:    "Duration of provision aggregations",
			Buckets: prometheus.DefBuckets,
		}, []string{"level"}),
		loyalty: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "provision_loyalty",
			Help: "Last computed loyalty by level and service type",
		}, []string{"level", "service_type"}),
		isochrones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isochrone_requests_total",
			Help: "Isochrone resolutions by mode and outcome",
		}, []string{"mode", "outcome"}),
		isoLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isochrone_resolve_seconds",
			Help:    "Time spent resolving isochrones",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode", "outcome"}),
		computed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "territory_aggregates_computed_total",
			Help: "Territorial aggregates computed by level and kind",
		}, []string{"level", "kind", "forced"}),
	}
	var err error
	if s.aggregations, err = register(reg, s.aggregations); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.loyalty, err = register(reg, s.loyalty); err != nil {
		return nil, err
	}
	if s.isochrones, err = register(reg, s.isochrones); err != nil {
		return nil, err
	}
	if s.isoLatency, err = register(reg, s.isoLatency); err != nil {
		return nil, err
	}
	if s.computed, err = register(reg, s.computed); err != nil {
		return nil, err
	}

	return s, nil
}

// register returns the already registered collector when c is a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAggregation counts the run and keeps the latest loyalty.
func (s *PromSink) RecordAggregation(ev coremetrics.AggregationEvent) error {
	level := ev.Target.Level.String()
	service := ev.ServiceType
	if service == "" {
		service = "all"
	}
	s.aggregations.WithLabelValues(level).Inc()
	s.duration.WithLabelValues(level).Observe(ev.Duration.Seconds())
	s.loyalty.WithLabelValues(level, service).Set(ev.Loyalty)
	return nil
}

// RecordIsochrone counts resolutions by outcome.
func (s *PromSink) RecordIsochrone(ev coremetrics.IsochroneEvent) error {
	mode := ev.Mode.String()
	s.isochrones.WithLabelValues(mode, ev.Outcome).Inc()
	s.isoLatency.WithLabelValues(mode, ev.Outcome).Observe(ev.Latency.Seconds())
	return nil
}

// RecordAggregate counts territorial aggregate computations.
func (s *PromSink) RecordAggregate(ev coremetrics.AggregateEvent) error {
	s.computed.WithLabelValues(ev.Unit.Level.String(), ev.Kind, strconv.FormatBool(ev.Forced)).Inc()
	return nil
}

