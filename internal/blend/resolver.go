package blend

import (
	"context"
	"fmt"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/observability"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// Operation names used in logs and metrics.
const (
	OpSummary = "summary"
	OpGrades  = "grades"
	OpHistory = "history"
	OpProfile = "profile"
)

// Remote is the remote aggregation backend.
type Remote interface {
	GetSummary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.YearRecord, error)
	GetFullHistory(ctx context.Context, code types.EntityCode) ([]types.YearRecord, error)
}

// Local is the embedded engine backend.
type Local interface {
	Summary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.AggregateSummary, error)
	GradeBreakdown(ctx context.Context, code types.EntityCode, year types.SchoolYear) ([]types.GradeCount, error)
	History(ctx context.Context, code types.EntityCode) (*types.HistoricalSeries, error)
	AvailableYears() []string
}

// Options configures a Resolver.
type Options struct {
	// Ready gates the local fallback. Nil means always ready.
	Ready Readiness
	// Metrics and Stats may be nil.
	Metrics *observability.Metrics
	Stats   *observability.AccessStats
}

// Resolver answers the logical enrollment requests. Districts are served
// locally because the remote service only aggregates schools.
type Resolver struct {
	remote  Remote
	local   Local
	ready   Readiness
	metrics *observability.Metrics
	stats   *observability.AccessStats
}

// NewResolver creates a resolver. remote may be nil for local-only use.
func NewResolver(remote Remote, local Local, opts Options) *Resolver {
	return &Resolver{
		remote:  remote,
		local:   local,
		ready:   opts.Ready,
		metrics: opts.Metrics,
		stats:   opts.Stats,
	}
}

// Profile is a summary and grade breakdown from one backend.
type Profile struct {
	Summary *types.AggregateSummary `json:"summary"`
	Grades  []types.GradeCount      `json:"grades"`
}

// Summary returns the entity's summary for the year, or for every year when
// year is empty. An absent summary is a nil value.
func (r *Resolver) Summary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (Result[*types.AggregateSummary], error) {
	if err := validate(code, year); err != nil {
		return Result[*types.AggregateSummary]{}, err
	}
	ctx = logctx.WithEntity(ctx, string(code), string(year))
	return observe(r, ctx, OpSummary, code, remoteFor(r, code, func(ctx context.Context) (*types.AggregateSummary, error) {
		return r.remoteSummary(ctx, code, year)
	}), func(ctx context.Context) (*types.AggregateSummary, error) {
		return r.local.Summary(ctx, code, year)
	})
}

// GradeBreakdown returns every grade for the year in pedagogical order.
// An empty year means the most recent year with data.
func (r *Resolver) GradeBreakdown(ctx context.Context, code types.EntityCode, year types.SchoolYear) (Result[[]types.GradeCount], error) {
	if err := validate(code, year); err != nil {
		return Result[[]types.GradeCount]{}, err
	}
	ctx = logctx.WithEntity(ctx, string(code), string(year))
	return observe(r, ctx, OpGrades, code, remoteFor(r, code, func(ctx context.Context) ([]types.GradeCount, error) {
		return r.remoteGrades(ctx, code, year)
	}), func(ctx context.Context) ([]types.GradeCount, error) {
		return r.local.GradeBreakdown(ctx, code, r.localYear(year))
	})
}

// History returns the entity's series, ascending by year.
func (r *Resolver) History(ctx context.Context, code types.EntityCode) (Result[*types.HistoricalSeries], error) {
	if err := validate(code, types.AllYears); err != nil {
		return Result[*types.HistoricalSeries]{}, err
	}
	ctx = logctx.WithEntity(ctx, string(code), "")
	return observe(r, ctx, OpHistory, code, remoteFor(r, code, func(ctx context.Context) (*types.HistoricalSeries, error) {
		recs, err := r.remote.GetFullHistory(ctx, code)
		if err != nil {
			return nil, err
		}
		return types.SeriesFromRecords(code, recs), nil
	}), func(ctx context.Context) (*types.HistoricalSeries, error) {
		return r.local.History(ctx, code)
	})
}

// Profile returns the summary and grade breakdown of one year from the
// same backend.
func (r *Resolver) Profile(ctx context.Context, code types.EntityCode, year types.SchoolYear) (Result[Profile], error) {
	if err := validate(code, year); err != nil {
		return Result[Profile]{}, err
	}
	ctx = logctx.WithEntity(ctx, string(code), string(year))
	return observe(r, ctx, OpProfile, code, remoteFor(r, code, func(ctx context.Context) (Profile, error) {
		if year.IsAll() {
			recs, err := r.remote.GetFullHistory(ctx, code)
			if err != nil {
				return Profile{}, err
			}
			p := Profile{Summary: types.SummaryFromRecords(code, recs)}
			if len(recs) > 0 {
				p.Grades = latest(recs).GradeCounts()
			}
			return p, nil
		}
		rec, err := r.remote.GetSummary(ctx, code, year)
		if err != nil || rec == nil {
			return Profile{}, err
		}
		return Profile{Summary: rec.Summary(code), Grades: rec.GradeCounts()}, nil
	}), func(ctx context.Context) (Profile, error) {
		sum, err := r.local.Summary(ctx, code, year)
		if err != nil {
			return Profile{}, err
		}
		grades, err := r.local.GradeBreakdown(ctx, code, r.localYear(year))
		if err != nil {
			return Profile{}, err
		}
		return Profile{Summary: sum, Grades: grades}, nil
	})
}

func (r *Resolver) remoteSummary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.AggregateSummary, error) {
	if year.IsAll() {
		recs, err := r.remote.GetFullHistory(ctx, code)
		if err != nil {
			return nil, err
		}
		return types.SummaryFromRecords(code, recs), nil
	}
	rec, err := r.remote.GetSummary(ctx, code, year)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Summary(code), nil
}

func (r *Resolver) remoteGrades(ctx context.Context, code types.EntityCode, year types.SchoolYear) ([]types.GradeCount, error) {
	if year.IsAll() {
		recs, err := r.remote.GetFullHistory(ctx, code)
		if err != nil || len(recs) == 0 {
			return nil, err
		}
		return latest(recs).GradeCounts(), nil
	}
	rec, err := r.remote.GetSummary(ctx, code, year)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.GradeCounts(), nil
}

// remoteFor returns fn when the entity is served remotely, nil otherwise.
func remoteFor[T any](r *Resolver, code types.EntityCode, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	if r.remote == nil || code.IsDistrict() {
		return nil
	}
	return fn
}

// localYear resolves the empty year of a grade breakdown to the most
// recent known year.
func (r *Resolver) localYear(year types.SchoolYear) types.SchoolYear {
	if !year.IsAll() {
		return year
	}
	if years := r.local.AvailableYears(); len(years) > 0 {
		return types.SchoolYear(years[0])
	}
	return year
}

func observe[T any](r *Resolver, ctx context.Context, op string, code types.EntityCode, remote, local func(context.Context) (T, error)) (Result[T], error) {
	r.stats.RecordAccess(string(code), op)
	res, err := Resolve(ctx, op, remote, local, r.ready)
	if err != nil {
		if remote != nil {
			r.metrics.ObserveFallbackFailure(op)
		}
		return res, err
	}
	r.metrics.ObserveResolution(op, string(res.Source))
	return res, nil
}

func latest(recs []types.YearRecord) types.YearRecord {
	out := recs[0]
	for _, r := range recs[1:] {
		if r.SchoolYear > out.SchoolYear {
			out = r
		}
	}
	return out
}

func validate(code types.EntityCode, year types.SchoolYear) error {
	if code.Kind() == types.KindUnknown {
		return errs.NewValidationError(errs.CodeInvalidEntity,
			fmt.Sprintf("entity code %q must be 7 (district) or 12 (school) characters", string(code)))
	}
	if !year.IsAll() && !year.Valid() {
		return errs.NewValidationError(errs.CodeInvalidYear,
			fmt.Sprintf("school year %q must look like 2023-2024", string(year)))
	}
	return nil
}
