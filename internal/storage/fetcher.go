package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FetchError reports the object a download failed for.
type FetchError struct {
	ObjectPath string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.ObjectPath, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher mirrors objects into a local directory, preserving their key
// layout so hive-style path segments survive. Concurrent requests for the
// same object share one download.
type Fetcher struct {
	storage     ObjectStorage
	cache       *PartitionCache
	cacheDir    string
	concurrency int
	flight      singleflight.Group
}

// NewFetcher creates a fetcher writing under cacheDir.
// concurrency bounds parallel downloads per Fetch call.
func NewFetcher(storage ObjectStorage, cacheDir string, cache *PartitionCache, concurrency int) *Fetcher {
	if cache == nil {
		cache = NewPartitionCache(0)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{
		storage:     storage,
		cache:       cache,
		cacheDir:    cacheDir,
		concurrency: concurrency,
	}
}

// Fetch returns local paths for the given object keys, in input order.
// The first failure cancels the remaining downloads and is returned as a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, objectPaths []string) ([]string, error) {
	local := make([]string, len(objectPaths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, key := range objectPaths {
		g.Go(func() error {
			path, err := f.fetchOne(ctx, key)
			if err != nil {
				return &FetchError{ObjectPath: key, Err: err}
			}
			local[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return local, nil
}

// Cache exposes the index of mirrored files.
func (f *Fetcher) Cache() *PartitionCache { return f.cache }

func (f *Fetcher) fetchOne(ctx context.Context, key string) (string, error) {
	if path, ok := f.cache.Lookup(key); ok {
		return path, nil
	}

	v, err, _ := f.flight.Do(key, func() (interface{}, error) {
		if path, ok := f.cache.Lookup(key); ok {
			return path, nil
		}
		dst, err := ResolveUnder(f.cacheDir, key)
		if err != nil {
			return "", err
		}
		if err := f.storage.Download(ctx, key, dst); err != nil {
			return "", err
		}
		if err := f.cache.Add(key, dst); err != nil {
			return "", err
		}
		return dst, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
