package observability

import (
	"sort"
	"sync"
	"time"
)

// AccessStats tracks how often entities are requested, per operation. It
// backs the session's working-set report.
type AccessStats struct {
	mu      sync.RWMutex
	entries map[string]*EntityStats
	window  time.Duration
	now     func() time.Time
}

// EntityStats holds access statistics for one entity.
type EntityStats struct {
	Entity     string
	Frequency  int64
	LastSeen   time.Time
	Operations map[string]int // operation → count (e.g., "summary" → 5)
}

// NewAccessStats creates a tracker pruning entries idle for longer than window.
func NewAccessStats(window time.Duration) *AccessStats {
	return &AccessStats{
		entries: make(map[string]*EntityStats),
		window:  window,
		now:     time.Now,
	}
}

// RecordAccess records one request for an entity. Safe for concurrent use.
func (a *AccessStats) RecordAccess(entity, operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, exists := a.entries[entity]
	if !exists {
		stats = &EntityStats{
			Entity:     entity,
			Operations: make(map[string]int),
		}
		a.entries[entity] = stats
	}

	stats.Frequency++
	stats.LastSeen = a.now()
	stats.Operations[operation]++
}

// Top returns copies of the n most requested entities, most frequent first.
// Ties sort by entity code.
func (a *AccessStats) Top(n int) []EntityStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 || len(a.entries) == 0 {
		return []EntityStats{}
	}

	stats := make([]EntityStats, 0, len(a.entries))
	for _, s := range a.entries {
		cp := EntityStats{
			Entity:     s.Entity,
			Frequency:  s.Frequency,
			LastSeen:   s.LastSeen,
			Operations: make(map[string]int, len(s.Operations)),
		}
		for op, count := range s.Operations {
			cp.Operations[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Entity < stats[j].Entity
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Len returns the number of tracked entities.
func (a *AccessStats) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Prune removes entries not seen within the window.
func (a *AccessStats) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	threshold := a.now().Add(-a.window)
	for entity, stats := range a.entries {
		if stats.LastSeen.Before(threshold) {
			delete(a.entries, entity)
		}
	}
}
