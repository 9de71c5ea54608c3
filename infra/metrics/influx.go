package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	corelog "github.com/kilianp07/provision/core/logger"
	coremetrics "github.com/kilianp07/provision/core/metrics"
	"github.com/kilianp07/provision/infra/logger"
)

// InfluxSink writes provision events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      corelog.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAggregation writes the score as a provision_score point.
func (s *InfluxSink) RecordAggregation(ev coremetrics.AggregationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("provision_score").
		AddTag("level", ev.Target.Level.String()).
		AddTag("unit_id", strconv.FormatInt(ev.Target.ID, 10))
	if ev.SocialGroup != "" {
		p = p.AddTag("social_group", ev.SocialGroup)
	}
	if ev.LivingSituation != "" {
		p = p.AddTag("living_situation", ev.LivingSituation)
	}
	if ev.ServiceType != "" {
		p = p.AddTag("service_type", ev.ServiceType)
	}
	p = p.AddField("loyalty", round4(ev.Loyalty)).
		AddField("alternative_loyalty", round4(ev.AlternativeLoyalty)).
		AddField("calculations", ev.Calculations).
		AddField("duration_ms", round4(float64(ev.Duration.Microseconds())/1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordIsochrone writes one isochrone resolution.
func (s *InfluxSink) RecordIsochrone(ev coremetrics.IsochroneEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("isochrone_lookup").
		AddTag("mode", ev.Mode.String()).
		AddTag("outcome", ev.Outcome).
		AddField("minutes", ev.Minutes).
		AddField("latency_ms", round4(float64(ev.Latency.Microseconds())/1000)).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

func round4(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
