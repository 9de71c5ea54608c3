package metrics

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAggregation forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordAggregation(ev AggregationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAggregation(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordIsochrone forwards isochrone events to sinks supporting them.
func (m *MultiSink) RecordIsochrone(ev IsochroneEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(IsochroneRecorder); ok {
			if err := rec.RecordIsochrone(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTask forwards task events to sinks supporting them.
func (m *MultiSink) RecordTask(ev TaskEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TaskRecorder); ok {
			if err := rec.RecordTask(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordAggregate forwards aggregate computation events to sinks supporting them.
func (m *MultiSink) RecordAggregate(ev AggregateEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AggregateRecorder); ok {
			if err := rec.RecordAggregate(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
