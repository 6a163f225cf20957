package partition

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/usaschooldata/schooldata/internal/storage"
)

// DefaultBaseURL is the public host of the published dataset.
const DefaultBaseURL = "https://data.usaschooldata.com"

// Source turns object keys into locations the engine can read.
type Source interface {
	// Locations returns one engine-readable location per key, in order.
	Locations(ctx context.Context, keys []string) ([]string, error)

	// Name identifies the source in logs.
	Name() string
}

// MissingError reports a partition object that does not exist.
type MissingError struct {
	Key string
	Err error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("partition %s not found", e.Key)
}

func (e *MissingError) Unwrap() error { return e.Err }

// HTTPSource addresses partitions on an HTTP host scanned by httpfs.
type HTTPSource struct {
	BaseURL string
}

// NewHTTPSource creates an HTTP source; an empty base URL uses the public host.
func NewHTTPSource(baseURL string) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPSource{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPSource) Locations(_ context.Context, keys []string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.BaseURL + "/" + k
	}
	return out, nil
}

func (s *HTTPSource) Name() string { return "http" }

// LocalSource addresses partitions in a local directory tree.
type LocalSource struct {
	Dir string
}

func (s *LocalSource) Locations(_ context.Context, keys []string) ([]string, error) {
	out := make([]string, len(keys))
	for i, k := range keys {
		p, err := storage.ResolveUnder(s.Dir, k)
		if err != nil {
			return nil, err
		}
		out[i] = filepath.ToSlash(p)
	}
	return out, nil
}

func (s *LocalSource) Name() string { return "local" }

// MirrorSource downloads partitions from object storage into a local cache
// and addresses the cached copies.
type MirrorSource struct {
	fetcher *storage.Fetcher
}

// NewMirrorSource creates a mirror source over a fetcher.
func NewMirrorSource(fetcher *storage.Fetcher) *MirrorSource {
	return &MirrorSource{fetcher: fetcher}
}

func (s *MirrorSource) Locations(ctx context.Context, keys []string) ([]string, error) {
	paths, err := s.fetcher.Fetch(ctx, keys)
	if err != nil {
		var fe *storage.FetchError
		if errors.Is(err, storage.ErrObjectNotFound) && errors.As(err, &fe) {
			return nil, &MissingError{Key: fe.ObjectPath, Err: err}
		}
		return nil, err
	}
	for i, p := range paths {
		paths[i] = filepath.ToSlash(p)
	}
	return paths, nil
}

func (s *MirrorSource) Name() string { return "mirror" }
