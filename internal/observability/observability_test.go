package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveResolution("summary", "remote")
	m.ObserveResolution("summary", "local")
	m.ObserveResolution("summary", "local")
	m.ObserveFallbackFailure("history")
	m.ObserveMaterialization("entity")
	m.ObserveReinitialization()
	m.ObserveSearch(SearchSuperseded)
	m.ObserveStatement("query", 0.01)

	if got := testutil.ToFloat64(m.resolutions.WithLabelValues("summary", "local")); got != 2 {
		t.Errorf("local resolutions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.engineReinits); got != 1 {
		t.Errorf("reinitializations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.searches.WithLabelValues(SearchSuperseded)); got != 1 {
		t.Errorf("superseded searches = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.queryDuration); n != 1 {
		t.Errorf("expected 1 histogram series, got %d", n)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution("summary", "remote")
	m.ObserveFallbackFailure("summary")
	m.ObserveMaterialization("entity")
	m.ObserveReinitialization()
	m.ObserveSearch(SearchExecuted)
	m.ObserveStatement("exec", 1)
}

func TestAccessStats_Concurrent(t *testing.T) {
	stats := NewAccessStats(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.RecordAccess("010000500870", "summary")
				stats.RecordAccess("0100005", "history")
			}
		}()
	}
	wg.Wait()

	top := stats.Top(10)
	if len(top) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(top))
	}
	for _, s := range top {
		if s.Frequency != 1000 {
			t.Errorf("expected frequency 1000 for %s, got %d", s.Entity, s.Frequency)
		}
	}
	if top[0].Entity != "0100005" {
		t.Errorf("ties should sort by entity, got %s first", top[0].Entity)
	}
}

func TestAccessStats_TopOrderingAndCopy(t *testing.T) {
	stats := NewAccessStats(time.Hour)
	stats.RecordAccess("a", "summary")
	stats.RecordAccess("b", "summary")
	stats.RecordAccess("b", "grades")

	top := stats.Top(1)
	if len(top) != 1 || top[0].Entity != "b" || top[0].Operations["grades"] != 1 {
		t.Fatalf("unexpected top %+v", top)
	}
	top[0].Operations["grades"] = 99
	if stats.Top(1)[0].Operations["grades"] != 1 {
		t.Error("Top should return copies")
	}
	if len(stats.Top(0)) != 0 {
		t.Error("Top(0) should be empty")
	}
}

func TestAccessStats_Prune(t *testing.T) {
	stats := NewAccessStats(time.Minute)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stats.now = func() time.Time { return base }
	stats.RecordAccess("old", "summary")

	stats.now = func() time.Time { return base.Add(2 * time.Minute) }
	stats.RecordAccess("new", "summary")
	stats.Prune()

	if stats.Len() != 1 || stats.Top(1)[0].Entity != "new" {
		t.Fatalf("expected only 'new' to survive, got %+v", stats.Top(5))
	}
}

func TestAccessStats_NilRecordIsNoop(t *testing.T) {
	var stats *AccessStats
	stats.RecordAccess("a", "summary")
}
