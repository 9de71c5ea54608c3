package metrics

// Package metrics defines interfaces and implementations for collecting
// provision metrics. Sinks like PromSink and InfluxSink record aggregation
// runs, isochrone lookups and task pool outcomes and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
