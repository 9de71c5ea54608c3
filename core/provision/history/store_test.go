package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/provision/core/factory"
	"github.com/kilianp07/provision/core/model"
)

func sampleRecords(now time.Time) []Record {
	return []Record{
		{RunID: uuid.NewString(), Timestamp: now.Add(-2 * time.Hour), Target: model.Unit{ID: 1, Level: model.LevelBlock}, ServiceType: "pharmacy", Loyalty: 0.4},
		{RunID: uuid.NewString(), Timestamp: now.Add(-time.Hour), Target: model.Unit{ID: 2, Level: model.LevelBlock}, ServiceType: "school", Loyalty: 0.6},
		{RunID: uuid.NewString(), Timestamp: now, Target: model.Unit{ID: 1, Level: model.LevelDistrict}, ServiceType: "pharmacy", Loyalty: 0.8},
	}
}

func exercise(t *testing.T, store LogStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	for _, r := range sampleRecords(now) {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, err := store.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	block := model.LevelBlock
	out, err := store.Query(ctx, Query{Level: &block, TargetID: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Loyalty != 0.4 {
		t.Fatalf("unexpected filter result: %+v", out)
	}
	out, err = store.Query(ctx, Query{Start: now.Add(-90 * time.Minute), ServiceType: "pharmacy"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Target.Level != model.LevelDistrict {
		t.Fatalf("unexpected time filter result: %+v", out)
	}
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore_Query(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "hist", "runs.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 3, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()
	rec := Record{RunID: "r", Timestamp: time.Now(), ServiceType: strings.Repeat("x", 4096)}
	for i := 0; i < 400; i++ {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(filepath.Join(dir, "runs*"))
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := store.Query(context.Background(), Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 400 {
		t.Fatalf("expected 400 records across files, got %d", len(out))
	}
}

func TestNewLogStore(t *testing.T) {
	s, err := NewLogStore(factory.ModuleConfig{})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := s.(NopStore); !ok {
		t.Fatalf("expected NopStore, got %T", s)
	}
	s, err = NewLogStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "x.jsonl")}})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if _, ok := s.(*JSONLStore); !ok {
		t.Fatalf("expected JSONLStore, got %T", s)
	}
	if _, err := NewLogStore(factory.ModuleConfig{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown store")
	}
}
