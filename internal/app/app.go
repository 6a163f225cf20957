// Package app wires a schooldata session: one engine, one materializer
// catalog, one searcher, and the remote client, shared by every request.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/usaschooldata/schooldata/internal/availability"
	"github.com/usaschooldata/schooldata/internal/blend"
	"github.com/usaschooldata/schooldata/internal/config"
	"github.com/usaschooldata/schooldata/internal/engine"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/materializer"
	"github.com/usaschooldata/schooldata/internal/observability"
	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/internal/remote"
	"github.com/usaschooldata/schooldata/internal/search"
	"github.com/usaschooldata/schooldata/internal/storage"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// accessWindow bounds how long idle entities stay in the access stats.
const accessWindow = time.Hour

// Option customizes a session.
type Option func(*options)

type options struct {
	opener     engine.Opener
	registerer prometheus.Registerer
	logWriter  io.Writer
}

// WithOpener replaces the default DuckDB opener.
func WithOpener(o engine.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithRegisterer registers session metrics on r instead of a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(opts *options) { opts.registerer = r }
}

// WithLogWriter sends session logs to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(opts *options) { opts.logWriter = w }
}

// Session owns the engine and every component built on it.
type Session struct {
	ID string

	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	stats    *observability.AccessStats

	engine   *engine.Engine
	remote   *remote.Client
	guard    *availability.Guard
	resolver *blend.Resolver
	searcher *search.Searcher

	mu     sync.Mutex
	closed bool
}

// New validates cfg and wires a session. The engine initializes lazily on
// the first local request.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	s := &Session{ID: uuid.NewString(), cfg: cfg}

	base, err := logctx.New(o.logWriter, cfg.Log.Level, cfg.Log.Human)
	if err != nil {
		return nil, err
	}
	s.logger = base.With().Str("session", s.ID).Logger()
	ctx = logctx.WithLogger(ctx, s.logger)

	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			s.registry = prometheus.NewRegistry()
			reg = s.registry
		}
		s.metrics = observability.NewMetrics(reg)
	}
	s.stats = observability.NewAccessStats(accessWindow)

	source, years, err := s.buildSource(ctx)
	if err != nil {
		return nil, err
	}

	opener := o.opener
	if opener == nil {
		opener = engine.DuckDBOpener(cfg.Engine.Path)
	}
	s.engine = engine.New(opener, engine.Options{
		Extensions:         cfg.Engine.Extensions,
		MaxExpressionDepth: cfg.Engine.MaxExpressionDepth,
		Metrics:            s.metrics,
	})

	m := materializer.New(s.engine, partition.NewResolver(years), source, s.metrics)
	s.guard = availability.NewGuard(m)

	var backend blend.Remote
	if cfg.Remote.Address != "" {
		s.remote, err = remote.Dial(remote.Options{
			Address:  cfg.Remote.Address,
			Timeout:  cfg.Remote.Timeout,
			Insecure: cfg.Remote.Insecure,
		})
		if err != nil {
			return nil, err
		}
		backend = s.remote
	}
	s.resolver = blend.NewResolver(backend, s.guard, blend.Options{
		Ready:   s.engine.Initialize,
		Metrics: s.metrics,
		Stats:   s.stats,
	})

	s.searcher = search.New(s.engine, source, search.Options{
		Debounce:       cfg.Search.Debounce,
		MinQueryLength: cfg.Search.MinQueryLength,
		Limit:          cfg.Search.Limit,
		Metrics:        s.metrics,
	})

	s.logger.Info().
		Str("source", string(cfg.Source.Type)).
		Bool("remote", s.remote != nil).
		Int("years", len(years)).
		Msg("session ready")
	return s, nil
}

// buildSource creates the partition source and the known years.
func (s *Session) buildSource(ctx context.Context) (partition.Source, []types.SchoolYear, error) {
	cfg := s.cfg
	years := cfg.SchoolYears()

	switch cfg.Source.Type {
	case config.SourceHTTP:
		return partition.NewHTTPSource(cfg.Source.BaseURL), years, nil
	case config.SourceLocal:
		return &partition.LocalSource{Dir: cfg.Source.Dir}, years, nil
	}

	store, err := s.buildStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if cfg.DiscoverYears {
		found, err := partition.DiscoverYears(ctx, store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to discover years: %w", err)
		}
		if len(found) > 0 {
			years = found
		}
	}
	cache := storage.NewPartitionCache(cfg.Source.CacheBytes)
	if n, err := cache.Warm(cfg.Source.CacheDir); err != nil {
		s.logger.Warn().Err(err).Str("dir", cfg.Source.CacheDir).Msg("failed to index mirrored partitions")
	} else if n > 0 {
		s.logger.Info().Int("files", n).Msg("reusing mirrored partitions")
	}
	fetcher := storage.NewFetcher(store, cfg.Source.CacheDir, cache, cfg.Source.Concurrency)
	return partition.NewMirrorSource(fetcher), years, nil
}

func (s *Session) buildStorage(ctx context.Context) (storage.ObjectStorage, error) {
	sc := s.cfg.Source.Storage
	switch sc.Type {
	case "local":
		return storage.NewLocalStorage(sc.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if sc.S3.Region != "" {
			s3Cfg.Region = sc.S3.Region
		}
		if sc.S3.Endpoint != "" {
			s3Cfg.Endpoint = sc.S3.Endpoint
		}
		s3Cfg.UsePathStyle = sc.S3.UsePathStyle
		s3Cfg.Prefix = sc.S3.Prefix
		s3Cfg.Anonymous = sc.S3.Anonymous
		s.logger.Info().Str("bucket", sc.S3.Bucket).Str("region", s3Cfg.Region).Msg("using s3 storage")
		return storage.NewS3Storage(ctx, sc.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", sc.Type)
	}
}

// Context attaches the session logger to ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	return logctx.WithLogger(ctx, s.logger)
}

// Resolver returns the blended request layer.
func (s *Session) Resolver() *blend.Resolver { return s.resolver }

// Local returns the year-guarded local backend.
func (s *Session) Local() *availability.Guard { return s.guard }

// Searcher returns the directory searcher.
func (s *Session) Searcher() *search.Searcher { return s.searcher }

// Engine returns the session engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Registry returns the private metrics registry, or nil when metrics are
// disabled or registered elsewhere.
func (s *Session) Registry() *prometheus.Registry { return s.registry }

// TopEntities returns the most requested entities of this session.
func (s *Session) TopEntities(n int) []observability.EntityStats {
	s.stats.Prune()
	return s.stats.Top(n)
}

// Close interrupts any running statement and releases the engine and the
// remote connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.engine.CancelPending()
	var firstErr error
	if err := s.engine.Close(); err != nil {
		firstErr = err
	}
	if s.remote != nil {
		if err := s.remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.logger.Info().Msg("session closed")
	return firstErr
}
