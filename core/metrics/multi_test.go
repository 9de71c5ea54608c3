package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordAggregation(AggregationEvent) error {
	r.count++
	return nil
}

func (r *recordSink) RecordIsochrone(IsochroneEvent) error {
	r.count++
	return nil
}

// aggregationOnly does not implement the optional recorders.
type aggregationOnly struct{ count int }

func (a *aggregationOnly) RecordAggregation(AggregationEvent) error {
	a.count++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks supporting them.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	s3 := &aggregationOnly{}
	m := NewMultiSink(s1, s2, s3)
	if err := m.RecordAggregation(AggregationEvent{}); err != nil {
		t.Fatalf("record aggregation: %v", err)
	}
	if err := m.RecordIsochrone(IsochroneEvent{Outcome: IsochroneHit}); err != nil {
		t.Fatalf("record isochrone: %v", err)
	}
	if err := m.RecordTask(TaskEvent{Outcome: TaskOK}); err != nil {
		t.Fatalf("record task: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("events not forwarded: %d %d", s1.count, s2.count)
	}
	if s3.count != 1 {
		t.Fatalf("expected 1 aggregation on plain sink, got %d", s3.count)
	}
}
