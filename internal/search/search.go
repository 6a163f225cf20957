// Package search serves debounced school-name lookups over a directory-wide
// working table.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/usaschooldata/schooldata/internal/engine"
	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/observability"
	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/internal/sqltext"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// ErrSuperseded is returned by a search that a newer search replaced.
var ErrSuperseded = errors.New("search: superseded by a newer search")

// DirectoryTable is the working table holding the most recent directory slice.
const DirectoryTable = "school_directory"

// Defaults applied by New to zero options.
const (
	DefaultDebounce       = 500 * time.Millisecond
	DefaultMinQueryLength = 3
	DefaultLimit          = 10
)

// Querier is the engine surface the searcher needs. Build reports the
// engine generation owning what it created; Generation the current one.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
	Build(ctx context.Context, query string, args ...any) (uint64, error)
	Generation() uint64
}

// Options configures a Searcher.
type Options struct {
	// Debounce delays each search; a negative value disables the delay.
	Debounce       time.Duration
	MinQueryLength int
	Limit          int
	Metrics        *observability.Metrics
}

// Searcher runs at most one search at a time. A new call supersedes any
// pending or running one by canceling its context; statements issued by
// other callers of the engine are never interrupted.
type Searcher struct {
	q      Querier
	source partition.Source
	opts   Options

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc

	buildMu  sync.Mutex
	built    bool
	builtGen uint64
}

// New creates a searcher reading the directory from source.
func New(q Querier, source partition.Source, opts Options) *Searcher {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultMinQueryLength
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Searcher{q: q, source: source, opts: opts}
}

// Search returns directory entries whose name contains query, narrowed by
// filters, ordered by name. Queries shorter than the minimum length with
// no filters return no results without touching the engine.
func (s *Searcher) Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.DirectoryEntry, error) {
	query = strings.TrimSpace(query)
	gated := len([]rune(query)) < s.opts.MinQueryLength && filters.IsEmpty()

	scanCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	seq := s.supersede(cancel, gated)
	if gated {
		s.opts.Metrics.ObserveSearch(observability.SearchGated)
		return []types.DirectoryEntry{}, nil
	}
	defer s.release(seq)

	if err := s.wait(scanCtx); err != nil {
		return nil, s.outcome(scanCtx, err)
	}
	gen, err := s.ensureDirectory(scanCtx)
	if err != nil {
		return nil, s.outcome(scanCtx, err)
	}

	sqlText, args := searchSQL(query, filters, s.opts.Limit)
	res, err := s.q.Query(scanCtx, sqlText, args...)
	if err != nil && !errors.Is(err, engine.ErrCanceled) && s.q.Generation() != gen {
		// The engine was reinitialized after the directory was ensured.
		if _, err = s.ensureDirectory(scanCtx); err == nil {
			res, err = s.q.Query(scanCtx, sqlText, args...)
		}
	}
	if err != nil {
		return nil, s.outcome(scanCtx, err)
	}

	out := make([]types.DirectoryEntry, res.Len())
	for i := range out {
		out[i] = types.DirectoryEntry{
			NCESSCH:     engine.String(res, i, "ncessch"),
			Name:        engine.String(res, i, "sch_name"),
			SchoolYear:  types.SchoolYear(engine.String(res, i, "school_year")),
			StateCode:   engine.String(res, i, "state_code"),
			SchoolType:  engine.String(res, i, "sch_type"),
			SchoolLevel: engine.String(res, i, "sch_level"),
			Charter:     engine.String(res, i, "charter"),
		}
	}
	s.opts.Metrics.ObserveSearch(observability.SearchExecuted)
	return out, nil
}

// supersede cancels the previous search and, unless gated, registers the
// new one as current. A running scan stops because its statement context
// derives from the canceled search context.
func (s *Searcher) supersede(cancel context.CancelCauseFunc, gated bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(ErrSuperseded)
	}
	s.seq++
	s.cancel = nil
	if !gated {
		s.cancel = cancel
	}
	return s.seq
}

func (s *Searcher) release(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.cancel = nil
	}
}

func (s *Searcher) wait(ctx context.Context) error {
	if s.opts.Debounce < 0 {
		return ctx.Err()
	}
	fire := make(chan struct{})
	timer := time.AfterFunc(s.opts.Debounce, func() { close(fire) })
	select {
	case <-fire:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return context.Cause(ctx)
	}
}

// outcome maps a failure of a superseded search to ErrSuperseded.
func (s *Searcher) outcome(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrSuperseded) {
		s.opts.Metrics.ObserveSearch(observability.SearchSuperseded)
		logger := logctx.FromContext(ctx)
		logger.Debug().Msg("search superseded")
		return ErrSuperseded
	}
	s.opts.Metrics.ObserveSearch(observability.SearchFailed)
	return err
}

// ensureDirectory builds the directory table on first use and again
// whenever the engine session that held it is gone. It returns the
// generation holding the table.
func (s *Searcher) ensureDirectory(ctx context.Context) (uint64, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.built && s.builtGen == s.q.Generation() {
		return s.builtGen, nil
	}

	locations, err := s.source.Locations(ctx, []string{partition.DirectoryKey})
	if err != nil {
		return 0, err
	}
	gen, err := s.q.Build(ctx, directorySQL(locations))
	if err != nil {
		if errors.Is(err, engine.ErrCanceled) {
			return 0, err
		}
		var se *errs.Error
		if errors.As(err, &se) && se == err {
			return 0, se.WithDetails(map[string]interface{}{errs.DetailBackend: string(types.SourceLocal)})
		}
		return 0, errs.NewQueryError("search: build directory", err)
	}
	s.built, s.builtGen = true, gen
	logger := logctx.FromContext(ctx)
	logger.Debug().Str("source", s.source.Name()).Uint64("generation", gen).Msg("directory table materialized")
	return gen, nil
}

func directorySQL(locations []string) string {
	return fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
SELECT ncessch, sch_name, school_year, state_code, sch_type, sch_level, charter
FROM read_parquet(%s)
WHERE school_year_no = 1`, DirectoryTable, sqltext.List(locations...))
}

// searchSQL builds the lookup with every user value bound as a parameter.
func searchSQL(query string, f types.SearchFilters, limit int) (string, []any) {
	var where []string
	var args []any
	if query != "" {
		where = append(where, `LOWER(sch_name) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, sqltext.LikeContains(query))
	}
	for _, c := range []struct{ column, value string }{
		{"state_code", f.StateCode},
		{"sch_type", f.SchoolType},
		{"sch_level", f.SchoolLevel},
		{"charter", f.Charter},
	} {
		if c.value != "" {
			where = append(where, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = "\nWHERE " + strings.Join(where, "\n  AND ")
	}
	return fmt.Sprintf(`SELECT ncessch, sch_name, school_year, state_code, sch_type, sch_level, charter
FROM %s%s
ORDER BY sch_name
LIMIT %d`, DirectoryTable, clause, limit), args
}
