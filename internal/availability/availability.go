// Package availability turns missing-partition failures into
// YearAvailabilityError values that name the years a caller can retry with.
package availability

import (
	"context"
	"errors"
	"strings"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/materializer"
	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// Engine messages that indicate a partition object is absent.
var missingMarkers = []string{
	"No files found that match the pattern",
	"HTTP 404",
	"404 (Not Found)",
}

// IsYearUnavailable reports whether err is a missing-partition failure for
// the given year. It never matches the all-years scope.
func IsYearUnavailable(err error, year types.SchoolYear) bool {
	if err == nil || year.IsAll() {
		return false
	}
	var me *partition.MissingError
	if errors.As(err, &me) {
		return strings.Contains(me.Key, string(year))
	}
	msg := err.Error()
	if !strings.Contains(msg, string(year)) {
		return false
	}
	for _, marker := range missingMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Classify wraps a missing-partition failure for year into a
// YearAvailabilityError. Any other error is returned unchanged.
func Classify(err error, year types.SchoolYear, available []string) error {
	if _, ok := errs.AsYearUnavailable(err); ok {
		return err
	}
	if !IsYearUnavailable(err, year) {
		return err
	}
	return errs.NewYearAvailabilityError(string(year), available, err)
}

// Guard runs per-year materializer operations and classifies their failures.
type Guard struct {
	m *materializer.Materializer
}

// NewGuard wraps a materializer.
func NewGuard(m *materializer.Materializer) *Guard {
	return &Guard{m: m}
}

// AvailableYears returns the years the guard reports on failure, most recent first.
func (g *Guard) AvailableYears() []string {
	return g.m.Resolver().AvailableYearStrings()
}

func (g *Guard) classify(err error, year types.SchoolYear) error {
	return Classify(err, year, g.AvailableYears())
}

// EnsureEntityTable materializes the entity's table for one year.
func (g *Guard) EnsureEntityTable(ctx context.Context, code types.EntityCode, year types.SchoolYear) error {
	return g.classify(g.m.EnsureEntityTable(ctx, code, year), year)
}

// QueryEntity returns the entity's rows for one year.
func (g *Guard) QueryEntity(ctx context.Context, code types.EntityCode, year types.SchoolYear, filters types.MembershipFilters) ([]types.MembershipRow, error) {
	rows, err := g.m.QueryEntity(ctx, code, year, filters)
	return rows, g.classify(err, year)
}

// Aggregate sums the entity's enrollment along one dimension.
func (g *Guard) Aggregate(ctx context.Context, code types.EntityCode, year types.SchoolYear, dim types.Dimension) (types.Rollup, error) {
	r, err := g.m.Aggregate(ctx, code, year, dim)
	if dim == types.DimensionYear {
		return r, err
	}
	return r, g.classify(err, year)
}

// Summary returns the entity's summary for one year.
func (g *Guard) Summary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.AggregateSummary, error) {
	s, err := g.m.Summary(ctx, code, year)
	return s, g.classify(err, year)
}

// GradeBreakdown returns the entity's grade breakdown for one year.
func (g *Guard) GradeBreakdown(ctx context.Context, code types.EntityCode, year types.SchoolYear) ([]types.GradeCount, error) {
	gc, err := g.m.GradeBreakdown(ctx, code, year)
	return gc, g.classify(err, year)
}

// History returns the entity's series across every known year.
func (g *Guard) History(ctx context.Context, code types.EntityCode) (*types.HistoricalSeries, error) {
	return g.m.History(ctx, code)
}

// Notice describes a substitution made by RecoverLatest.
type Notice struct {
	RequestedYear   types.SchoolYear `json:"requested_year"`
	SubstitutedYear types.SchoolYear `json:"substituted_year"`
	AvailableYears  []string         `json:"available_years"`
}

// RecoverLatest runs fn for the requested year. When that fails with a
// YearAvailabilityError it retries exactly once with the most recent
// available year and reports the substitution. A second failure is returned
// as is.
func RecoverLatest[T any](ctx context.Context, requested types.SchoolYear, available []string,
	fn func(context.Context, types.SchoolYear) (T, error)) (T, *Notice, error) {
	v, err := fn(ctx, requested)
	ye, ok := errs.AsYearUnavailable(err)
	if !ok {
		return v, nil, err
	}
	if len(ye.AvailableYears) > 0 {
		available = ye.AvailableYears
	}
	if len(available) == 0 || types.SchoolYear(available[0]) == requested {
		return v, nil, err
	}

	substitute := types.SchoolYear(available[0])
	logger := logctx.FromContext(ctx)
	logger.Warn().
		Str("requested_year", string(requested)).
		Str("substituted_year", string(substitute)).
		Msg("requested year unavailable, retrying with latest")

	v, err = fn(ctx, substitute)
	if err != nil {
		return v, nil, err
	}
	return v, &Notice{
		RequestedYear:   requested,
		SubstitutedYear: substitute,
		AvailableYears:  append([]string(nil), available...),
	}, nil
}
