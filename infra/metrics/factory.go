package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/provision/core/factory"
	coremetrics "github.com/kilianp07/provision/core/metrics"
)

func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	// const_labels tag every provision series, e.g. {city: spb} when
	// several deployments share one Prometheus.
	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			ConstLabels map[string]string `json:"const_labels"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var reg prometheus.Registerer = prometheus.DefaultRegisterer
		if len(c.ConstLabels) > 0 {
			reg = prometheus.WrapRegistererWith(c.ConstLabels, reg)
		}
		return NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
