package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSized(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPartitionCache_LookupAndAdd(t *testing.T) {
	c := NewPartitionCache(1 << 20)
	path := filepath.Join(t.TempDir(), "data_0.parquet")
	writeSized(t, path, 100)

	if _, ok := c.Lookup("membership/a"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Add("membership/a", path); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got, ok := c.Lookup("membership/a"); !ok || got != path {
		t.Fatalf("Lookup = %q, %v", got, ok)
	}
	if err := c.Add("membership/b", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("adding a missing file should fail")
	}

	s := c.Stats()
	if s.Files != 1 || s.Bytes != 100 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPartitionCache_EvictsLeastRecentlyUsed(t *testing.T) {
	dir := t.TempDir()
	c := NewPartitionCache(250)

	for _, name := range []string{"a", "b"} {
		writeSized(t, filepath.Join(dir, name), 100)
		c.Add(name, filepath.Join(dir, name))
	}
	c.Lookup("a") // b is now the oldest
	writeSized(t, filepath.Join(dir, "c"), 100)
	c.Add("c", filepath.Join(dir, "c"))

	if _, ok := c.Lookup("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, err := os.Stat(filepath.Join(dir, "b")); !os.IsNotExist(err) {
		t.Error("evicted file should be deleted")
	}
	if _, ok := c.Lookup("a"); !ok {
		t.Error("a should survive")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d", c.Stats().Evictions)
	}
}

func TestPartitionCache_KeepsNewestOverBudget(t *testing.T) {
	c := NewPartitionCache(10)
	path := filepath.Join(t.TempDir(), "big")
	writeSized(t, path, 100)
	c.Add("big", path)

	if _, ok := c.Lookup("big"); !ok {
		t.Error("a single oversized file should stay cached")
	}
}

func TestPartitionCache_ForgetsChangedFiles(t *testing.T) {
	c := NewPartitionCache(1 << 20)
	path := filepath.Join(t.TempDir(), "x")
	writeSized(t, path, 50)
	c.Add("x", path)

	writeSized(t, path, 60)
	if _, ok := c.Lookup("x"); ok {
		t.Fatal("resized file should miss")
	}
	if c.Stats().Files != 0 {
		t.Errorf("stale entry should be forgotten, stats %+v", c.Stats())
	}
}

func TestPartitionCache_Warm(t *testing.T) {
	root := t.TempDir()
	older := filepath.Join(root, "membership", "school_year=2022-2023", "state_leaid=01", "data_0.parquet")
	newer := filepath.Join(root, "membership", "school_year=2023-2024", "state_leaid=01", "data_0.parquet")
	writeSized(t, older, 100)
	writeSized(t, newer, 100)
	writeSized(t, filepath.Join(root, "membership", ".download-123"), 10)
	past := time.Now().Add(-time.Hour)
	os.Chtimes(older, past, past)

	c := NewPartitionCache(150)
	n, err := c.Warm(root)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 file to fit the budget, got %d", n)
	}
	if _, ok := c.Lookup("membership/school_year=2023-2024/state_leaid=01/data_0.parquet"); !ok {
		t.Error("most recent file should be kept")
	}
	if _, err := os.Stat(older); !os.IsNotExist(err) {
		t.Error("older file should be evicted from disk")
	}

	if n, err := NewPartitionCache(0).Warm(filepath.Join(root, "absent")); err != nil || n != 0 {
		t.Errorf("warming a missing root = %d, %v", n, err)
	}
}
