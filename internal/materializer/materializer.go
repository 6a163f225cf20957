// Package materializer builds and queries per-entity working tables in the
// embedded engine. Each entity has at most one per-year table and one
// all-years table; both are replaced, never merged, when their key changes.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/usaschooldata/schooldata/internal/engine"
	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/observability"
	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// Querier is the subset of the engine adapter the materializer needs.
// Build reports the engine generation that owns the table it created;
// Generation reports the current one.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*engine.Result, error)
	Build(ctx context.Context, query string, args ...any) (uint64, error)
	Generation() uint64
}

// Materialization kinds reported to metrics.
const (
	KindEntity  = "entity"
	KindHistory = "history"
)

const allYearsKey = "*"

// tableState records what a working table holds and which engine session
// it lives in.
type tableState struct {
	key string
	gen uint64
}

// Metrics holds materializer statistics.
type Metrics struct {
	Builds    int64
	CacheHits int64
}

// Materializer owns the working-table catalog of one engine session.
type Materializer struct {
	q        Querier
	resolver *partition.Resolver
	source   partition.Source
	obs      *observability.Metrics

	mu      sync.Mutex
	locks   map[types.EntityCode]*sync.Mutex
	tables  map[types.EntityCode]tableState
	history map[types.EntityCode]uint64 // entity → generation of its all-years table
	metrics Metrics
}

// New creates a materializer. obs may be nil.
func New(q Querier, resolver *partition.Resolver, source partition.Source, obs *observability.Metrics) *Materializer {
	return &Materializer{
		q:        q,
		resolver: resolver,
		source:   source,
		obs:      obs,
		locks:    make(map[types.EntityCode]*sync.Mutex),
		tables:   make(map[types.EntityCode]tableState),
		history:  make(map[types.EntityCode]uint64),
	}
}

// Resolver returns the partition resolver the materializer scans with.
func (m *Materializer) Resolver() *partition.Resolver { return m.resolver }

// Metrics returns a snapshot of build statistics.
func (m *Materializer) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Materialized reports the year key of the entity's per-year table.
// The all-years key is "*". A table built before the engine was last
// reinitialized no longer exists and is not reported.
func (m *Materializer) Materialized(code types.EntityCode) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tables[code]
	if !ok || st.gen != m.q.Generation() {
		return "", false
	}
	return st.key, true
}

// EnsureEntityTable materializes the entity's rows for one year, or for all
// known years when year is empty. It is a no-op when the table already
// holds that key.
func (m *Materializer) EnsureEntityTable(ctx context.Context, code types.EntityCode, year types.SchoolYear) error {
	if err := validate(code, year); err != nil {
		return err
	}
	unlock := m.lockEntity(code)
	defer unlock()
	_, err := m.ensureEntityLocked(ctx, code, year)
	return m.scope(err, code, year)
}

// EnsureHistoricalTable materializes the entity's rows across every known year.
func (m *Materializer) EnsureHistoricalTable(ctx context.Context, code types.EntityCode) error {
	if err := validate(code, types.AllYears); err != nil {
		return err
	}
	unlock := m.lockEntity(code)
	defer unlock()
	_, err := m.ensureHistoryLocked(ctx, code)
	return m.scope(err, code, types.AllYears)
}

// QueryEntity returns the entity's membership rows for the year, filtered by
// equality filters, ordered by year descending, grade, race/ethnicity, sex.
func (m *Materializer) QueryEntity(ctx context.Context, code types.EntityCode, year types.SchoolYear, filters types.MembershipFilters) ([]types.MembershipRow, error) {
	if err := validate(code, year); err != nil {
		return nil, err
	}
	unlock := m.lockEntity(code)
	defer unlock()

	query, args := rowsSQL(entityTable(code), code.Kind(), filters)
	res, err := m.selectEnsured(ctx, func() (uint64, error) {
		return m.ensureEntityLocked(ctx, code, year)
	}, query, args...)
	if err != nil {
		return nil, m.scope(err, code, year)
	}

	rows := make([]types.MembershipRow, res.Len())
	for i := range rows {
		rows[i] = types.MembershipRow{
			NCESSCH:       engine.String(res, i, "ncessch"),
			SchoolYear:    types.SchoolYear(engine.String(res, i, "school_year")),
			Grade:         engine.String(res, i, "grade"),
			RaceEthnicity: engine.String(res, i, "race_ethnicity"),
			Sex:           engine.String(res, i, "sex"),
			StudentCount:  engine.Int64(res, i, "student_count"),
		}
	}
	return rows, nil
}

// Aggregate sums the entity's enrollment along one dimension. The by-year
// rollup spans every known year and lists the years present, ascending;
// the closed-set dimensions list every category in order, 0 when absent.
func (m *Materializer) Aggregate(ctx context.Context, code types.EntityCode, year types.SchoolYear, dim types.Dimension) (types.Rollup, error) {
	if !dim.Valid() {
		return types.Rollup{}, errs.NewValidationError(errs.CodeInvalidDimension, fmt.Sprintf("unknown dimension %q", string(dim)))
	}
	if dim == types.DimensionYear {
		year = types.AllYears
	}
	if err := validate(code, year); err != nil {
		return types.Rollup{}, err
	}
	unlock := m.lockEntity(code)
	defer unlock()

	table := entityTable(code)
	ensure := func() (uint64, error) { return m.ensureEntityLocked(ctx, code, year) }
	if dim == types.DimensionYear {
		table = historyTable(code)
		ensure = func() (uint64, error) { return m.ensureHistoryLocked(ctx, code) }
	}

	res, err := m.selectEnsured(ctx, ensure, groupSQL(table, dim.Column()))
	if err != nil {
		return types.Rollup{}, m.scope(err, code, year)
	}
	counts := make(map[string]int64, res.Len())
	var order []string
	for i := 0; i < res.Len(); i++ {
		cat := engine.String(res, i, "category")
		counts[cat] += engine.Int64(res, i, "student_count")
		order = append(order, cat)
	}
	return types.Rollup{Dimension: dim, Counts: fill(dim, counts, order)}, nil
}

// Summary returns the entity's headline figures for the year, or nil when
// the entity has no rows in scope.
func (m *Materializer) Summary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.AggregateSummary, error) {
	if err := validate(code, year); err != nil {
		return nil, err
	}
	unlock := m.lockEntity(code)
	defer unlock()

	res, err := m.selectEnsured(ctx, func() (uint64, error) {
		return m.ensureEntityLocked(ctx, code, year)
	}, summarySQL(entityTable(code)))
	if err != nil {
		return nil, m.scope(err, code, year)
	}
	if res.Len() == 0 || engine.Scalar(res, 0, "total_enrollment") == nil {
		return nil, nil
	}

	rec := wideRecord(res, 0)
	sum := &types.AggregateSummary{
		EntityCode:      code,
		TotalEnrollment: rec.Total,
		EarliestYear:    types.SchoolYear(engine.String(res, 0, "earliest_year")),
		LatestYear:      types.SchoolYear(engine.String(res, 0, "latest_year")),
		ByRaceEthnicity: rec.RaceCounts(),
		BySex:           rec.SexCounts(),
	}
	if code.IsDistrict() {
		sum.SchoolCount = engine.Int64(res, 0, "school_count")
	}
	return sum, nil
}

// GradeBreakdown returns every grade in pedagogical order for the year,
// including zeros.
func (m *Materializer) GradeBreakdown(ctx context.Context, code types.EntityCode, year types.SchoolYear) ([]types.GradeCount, error) {
	rollup, err := m.Aggregate(ctx, code, year, types.DimensionGrade)
	if err != nil {
		return nil, err
	}
	out := make([]types.GradeCount, len(rollup.Counts))
	for i, c := range rollup.Counts {
		out[i] = types.GradeCount{Grade: c.Category, Count: c.Count}
	}
	return out, nil
}

// History returns one rollup per year present, ascending.
func (m *Materializer) History(ctx context.Context, code types.EntityCode) (*types.HistoricalSeries, error) {
	if err := validate(code, types.AllYears); err != nil {
		return nil, err
	}
	unlock := m.lockEntity(code)
	defer unlock()

	res, err := m.selectEnsured(ctx, func() (uint64, error) {
		return m.ensureHistoryLocked(ctx, code)
	}, historySQL(historyTable(code)))
	if err != nil {
		return nil, m.scope(err, code, types.AllYears)
	}

	records := make([]types.YearRecord, res.Len())
	for i := range records {
		records[i] = wideRecord(res, i)
	}
	return types.SeriesFromRecords(code, records), nil
}

// selectEnsured ensures a working table and queries it. When the select
// fails because the engine was reinitialized after the ensure, the table is
// rebuilt in the new session and the select runs once more.
func (m *Materializer) selectEnsured(ctx context.Context, ensure func() (uint64, error), query string, args ...any) (*engine.Result, error) {
	gen, err := ensure()
	if err != nil {
		return nil, err
	}
	res, err := m.q.Query(ctx, query, args...)
	if err == nil || errors.Is(err, engine.ErrCanceled) || m.q.Generation() == gen {
		return res, err
	}

	logger := logctx.FromContext(ctx)
	logger.Debug().Err(err).Msg("engine reinitialized under working table, rebuilding")
	if _, err := ensure(); err != nil {
		return nil, err
	}
	return m.q.Query(ctx, query, args...)
}

func (m *Materializer) ensureEntityLocked(ctx context.Context, code types.EntityCode, year types.SchoolYear) (uint64, error) {
	key := yearKey(year)

	m.mu.Lock()
	current, ok := m.tables[code]
	if ok && current.key == key && current.gen == m.q.Generation() {
		m.metrics.CacheHits++
		m.mu.Unlock()
		return current.gen, nil
	}
	m.mu.Unlock()

	var locators []partition.Locator
	if year.IsAll() {
		locators = m.resolver.Resolve(code)
	} else {
		locators = m.resolver.Resolve(code, year)
	}
	gen, err := m.build(ctx, entityTable(code), locators, code, year, KindEntity)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.tables[code] = tableState{key: key, gen: gen}
	m.metrics.Builds++
	m.mu.Unlock()
	return gen, nil
}

func (m *Materializer) ensureHistoryLocked(ctx context.Context, code types.EntityCode) (uint64, error) {
	m.mu.Lock()
	if gen, ok := m.history[code]; ok && gen == m.q.Generation() {
		m.metrics.CacheHits++
		m.mu.Unlock()
		return gen, nil
	}
	m.mu.Unlock()

	gen, err := m.build(ctx, historyTable(code), m.resolver.Resolve(code), code, types.AllYears, KindHistory)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.history[code] = gen
	m.metrics.Builds++
	m.mu.Unlock()
	return gen, nil
}

func (m *Materializer) build(ctx context.Context, table string, locators []partition.Locator, code types.EntityCode, year types.SchoolYear, kind string) (uint64, error) {
	locations, err := m.source.Locations(ctx, partition.Keys(locators))
	if err != nil {
		return 0, err
	}
	gen, err := m.q.Build(ctx, createTableSQL(table, locations, code, year))
	if err != nil {
		return 0, err
	}
	m.obs.ObserveMaterialization(kind)
	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("entity", string(code)).
		Str("year", yearKey(year)).
		Str("kind", kind).
		Int("partitions", len(locations)).
		Str("source", m.source.Name()).
		Uint64("generation", gen).
		Msg("working table materialized")
	return gen, nil
}

// lockEntity serializes ensure+select per entity so a query always sees the
// table state it ensured.
func (m *Materializer) lockEntity(code types.EntityCode) func() {
	m.mu.Lock()
	l, ok := m.locks[code]
	if !ok {
		l = &sync.Mutex{}
		m.locks[code] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// scope attaches entity, year, and backend details to a failure. Canceled
// statements and structured errors keep their identity.
func (m *Materializer) scope(err error, code types.EntityCode, year types.SchoolYear) error {
	if err == nil {
		return nil
	}
	details := errs.Scope(string(code), string(year), string(types.SourceLocal))
	var se *errs.Error
	if errors.As(err, &se) && se == err {
		return se.WithDetails(details)
	}
	if errors.Is(err, engine.ErrCanceled) || errors.Is(err, context.Canceled) {
		return err
	}
	return errs.NewQueryError("materializer: "+string(code)+" "+yearKey(year), err).WithDetails(details)
}

func validate(code types.EntityCode, year types.SchoolYear) error {
	if code.Kind() == types.KindUnknown {
		return errs.NewValidationError(errs.CodeInvalidEntity,
			fmt.Sprintf("entity code %q must be 7 (district) or 12 (school) characters", string(code))).
			WithDetails(errs.Scope(string(code), string(year), string(types.SourceLocal)))
	}
	if !year.IsAll() && !year.Valid() {
		return errs.NewValidationError(errs.CodeInvalidYear,
			fmt.Sprintf("school year %q must look like 2023-2024", string(year))).
			WithDetails(errs.Scope(string(code), string(year), string(types.SourceLocal)))
	}
	return nil
}

func yearKey(year types.SchoolYear) string {
	if year.IsAll() {
		return allYearsKey
	}
	return string(year)
}

// fill orders the grouped counts of a dimension. Closed-set dimensions list
// every category in closed-set order followed by any unexpected categories;
// the year dimension lists what it found, ascending.
func fill(dim types.Dimension, counts map[string]int64, seen []string) []types.CategoryCount {
	categories := dim.Categories()
	if categories == nil {
		sort.Strings(seen)
		out := make([]types.CategoryCount, 0, len(seen))
		for _, c := range seen {
			out = append(out, types.CategoryCount{Category: c, Count: counts[c]})
		}
		return out
	}

	known := make(map[string]bool, len(categories))
	out := make([]types.CategoryCount, 0, len(categories))
	for _, c := range categories {
		known[c] = true
		out = append(out, types.CategoryCount{Category: c, Count: counts[c]})
	}
	var extra []string
	for _, c := range seen {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	if dim == types.DimensionGrade {
		sort.SliceStable(extra, func(i, j int) bool { return types.GradeRank(extra[i]) < types.GradeRank(extra[j]) })
	} else {
		sort.Strings(extra)
	}
	for _, c := range extra {
		out = append(out, types.CategoryCount{Category: c, Count: counts[c]})
	}
	return out
}

// wideRecord reads one pivoted row into a YearRecord.
func wideRecord(res *engine.Result, row int) types.YearRecord {
	get := func(alias string) int64 { return engine.Int64(res, row, alias) }
	rec := types.YearRecord{
		SchoolYear:      types.SchoolYear(engine.String(res, row, "school_year")),
		Total:           get("total_enrollment"),
		NativeAmerican:  get("native_american"),
		Asian:           get("asian"),
		Black:           get("black"),
		Hispanic:        get("hispanic"),
		PacificIslander: get("pacific_islander"),
		Multiracial:     get("multiracial"),
		White:           get("white"),
		Male:            get("male"),
		Female:          get("female"),
	}
	for i := range rec.Grades {
		rec.Grades[i] = get(GradeAlias(i))
	}
	return rec
}
