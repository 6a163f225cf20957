package storage

import (
	"container/list"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCacheBytes bounds the mirror when no size is configured.
const DefaultCacheBytes int64 = 2 << 30

// PartitionCache indexes mirrored partition files by object key and keeps
// their total size under a byte budget. Over budget, the least recently
// used files are deleted first; the most recent file always stays.
type PartitionCache struct {
	mu     sync.Mutex
	budget int64
	used   int64
	lru    *list.List // front is most recent
	byKey  map[string]*list.Element
	stats  CacheStats
}

type cachedFile struct {
	key  string
	path string
	size int64
}

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Files     int
	Bytes     int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewPartitionCache creates a cache bounded to budget bytes.
func NewPartitionCache(budget int64) *PartitionCache {
	if budget <= 0 {
		budget = DefaultCacheBytes
	}
	return &PartitionCache{
		budget: budget,
		lru:    list.New(),
		byKey:  make(map[string]*list.Element),
	}
}

// Lookup returns the local file of key. A file that vanished or changed
// size behind the cache's back counts as a miss and is forgotten.
func (c *PartitionCache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.byKey[key]
	if !ok {
		c.stats.Misses++
		return "", false
	}
	f := elem.Value.(*cachedFile)
	if info, err := os.Stat(f.path); err != nil || info.Size() != f.size {
		c.forgetLocked(elem)
		c.stats.Misses++
		return "", false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return f.path, true
}

// Add records path as the local copy of key and enforces the budget.
func (c *PartitionCache) Add(key, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(key, path, info.Size())
	c.evictLocked()
	return nil
}

// Warm registers the files already mirrored under root, oldest first, so
// a restarted process reuses them. Interrupted downloads are skipped.
func (c *PartitionCache) Warm(root string) (int, error) {
	type found struct {
		key, path string
		size      int64
		mod       time.Time
	}
	var files []found
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".download-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, found{filepath.ToSlash(rel), path, info.Size(), info.ModTime()})
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.addLocked(f.key, f.path, f.size)
	}
	c.evictLocked()
	return len(c.byKey), nil
}

// Stats returns a snapshot of the cache counters.
func (c *PartitionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Files, s.Bytes = len(c.byKey), c.used
	return s
}

func (c *PartitionCache) addLocked(key, path string, size int64) {
	if elem, ok := c.byKey[key]; ok {
		f := elem.Value.(*cachedFile)
		c.used += size - f.size
		f.path, f.size = path, size
		c.lru.MoveToFront(elem)
		return
	}
	c.byKey[key] = c.lru.PushFront(&cachedFile{key: key, path: path, size: size})
	c.used += size
}

func (c *PartitionCache) evictLocked() {
	for c.used > c.budget && c.lru.Len() > 1 {
		elem := c.lru.Back()
		path := elem.Value.(*cachedFile).path
		c.forgetLocked(elem)
		os.Remove(path)
		c.stats.Evictions++
	}
}

func (c *PartitionCache) forgetLocked(elem *list.Element) {
	f := c.lru.Remove(elem).(*cachedFile)
	delete(c.byKey, f.key)
	c.used -= f.size
}
