package blend

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/internal/observability"
	"github.com/usaschooldata/schooldata/pkg/types"
)

const (
	school   types.EntityCode = "010000500870"
	district types.EntityCode = "0100005"
)

type fakeRemote struct {
	summary *types.YearRecord
	history []types.YearRecord
	err     error
	calls   int
}

func (f *fakeRemote) GetSummary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.YearRecord, error) {
	f.calls++
	return f.summary, f.err
}

func (f *fakeRemote) GetFullHistory(ctx context.Context, code types.EntityCode) ([]types.YearRecord, error) {
	f.calls++
	return f.history, f.err
}

type fakeLocal struct {
	summary    *types.AggregateSummary
	grades     []types.GradeCount
	series     *types.HistoricalSeries
	err        error
	calls      int
	gradeYears []types.SchoolYear
}

func (f *fakeLocal) Summary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.AggregateSummary, error) {
	f.calls++
	return f.summary, f.err
}

func (f *fakeLocal) GradeBreakdown(ctx context.Context, code types.EntityCode, year types.SchoolYear) ([]types.GradeCount, error) {
	f.calls++
	f.gradeYears = append(f.gradeYears, year)
	return f.grades, f.err
}

func (f *fakeLocal) History(ctx context.Context, code types.EntityCode) (*types.HistoricalSeries, error) {
	f.calls++
	return f.series, f.err
}

func (f *fakeLocal) AvailableYears() []string { return []string{"2023-2024", "2022-2023"} }

func remoteRecord() *types.YearRecord {
	return &types.YearRecord{SchoolYear: "2023-2024", Total: 30, Male: 15, Female: 15}
}

func TestResolve_RemoteSuccess(t *testing.T) {
	local := func(context.Context) (int, error) { t.Fatal("local must not run"); return 0, nil }
	res, err := Resolve(context.Background(), "op", func(context.Context) (int, error) { return 1, nil }, local, nil)
	require.NoError(t, err)
	assert.Equal(t, Result[int]{Value: 1, Source: types.SourceRemote}, res)
}

func TestResolve_FallbackTagsLocal(t *testing.T) {
	remote := func(context.Context) (int, error) { return 0, errs.NewTransportError("down", nil) }
	local := func(context.Context) (int, error) { return 2, nil }

	res, err := Resolve(context.Background(), "op", remote, local, nil)
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, res.Source)
	assert.Equal(t, 2, res.Value)
}

func TestResolve_BothFailSurfacesRemote(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf))

	remoteErr := errs.NewTransportError("down", nil)
	remote := func(context.Context) (int, error) { return 0, remoteErr }
	local := func(context.Context) (int, error) { return 0, errs.NewQueryError("bad", nil) }

	_, err := Resolve(ctx, "op", remote, local, nil)
	assert.Same(t, remoteErr, err)
	assert.Contains(t, buf.String(), "local fallback failed")
}

func TestResolve_LocalYearUnavailableWins(t *testing.T) {
	remote := func(context.Context) (int, error) { return 0, errs.NewTransportError("down", nil) }
	local := func(context.Context) (int, error) {
		return 0, errs.NewYearAvailabilityError("1999-2000", []string{"2023-2024"}, nil)
	}

	_, err := Resolve(context.Background(), "op", remote, local, nil)
	_, ok := errs.AsYearUnavailable(err)
	assert.True(t, ok, "got %v", err)
}

func TestResolve_EngineNotReady(t *testing.T) {
	remoteErr := errs.NewTransportError("down", nil)
	remote := func(context.Context) (int, error) { return 0, remoteErr }
	localRan := false
	local := func(context.Context) (int, error) { localRan = true; return 0, nil }
	notReady := func(context.Context) error { return errs.NewEngineInitError("no engine", nil) }

	_, err := Resolve(context.Background(), "op", remote, local, notReady)
	assert.Same(t, remoteErr, err)
	assert.False(t, localRan)

	_, err = Resolve(context.Background(), "op", nil, local, notReady)
	assert.True(t, errs.IsEngineInit(err))
}

func TestResolver_SummaryRemote(t *testing.T) {
	remote := &fakeRemote{summary: remoteRecord()}
	local := &fakeLocal{}
	r := NewResolver(remote, local, Options{})

	res, err := r.Summary(context.Background(), school, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, types.SourceRemote, res.Source)
	assert.Equal(t, int64(30), res.Value.TotalEnrollment)
	assert.Equal(t, types.SchoolYear("2023-2024"), res.Value.EarliestYear)
	assert.Zero(t, local.calls)
}

func TestResolver_RemoteAbsentIsSuccess(t *testing.T) {
	remote := &fakeRemote{}
	local := &fakeLocal{summary: &types.AggregateSummary{TotalEnrollment: 1}}
	r := NewResolver(remote, local, Options{})

	res, err := r.Summary(context.Background(), school, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, types.SourceRemote, res.Source)
	assert.Nil(t, res.Value)
	assert.Zero(t, local.calls)
}

func TestResolver_DistrictRoutesLocal(t *testing.T) {
	remote := &fakeRemote{summary: remoteRecord()}
	local := &fakeLocal{summary: &types.AggregateSummary{EntityCode: district, TotalEnrollment: 42, SchoolCount: 3}}
	r := NewResolver(remote, local, Options{})

	res, err := r.Summary(context.Background(), district, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, res.Source)
	assert.Equal(t, int64(42), res.Value.TotalEnrollment)
	assert.Zero(t, remote.calls)
}

func TestResolver_AllYearsSummaryAggregatesHistory(t *testing.T) {
	remote := &fakeRemote{history: []types.YearRecord{
		{SchoolYear: "2022-2023", Total: 16},
		{SchoolYear: "2023-2024", Total: 30},
	}}
	r := NewResolver(remote, &fakeLocal{}, Options{})

	res, err := r.Summary(context.Background(), school, types.AllYears)
	require.NoError(t, err)
	assert.Equal(t, int64(46), res.Value.TotalEnrollment)
	assert.Equal(t, types.SchoolYear("2022-2023"), res.Value.EarliestYear)
	assert.Equal(t, types.SchoolYear("2023-2024"), res.Value.LatestYear)
}

func TestResolver_GradesFallbackUsesLatestYear(t *testing.T) {
	remote := &fakeRemote{err: errs.NewTransportError("down", nil)}
	local := &fakeLocal{grades: []types.GradeCount{{Grade: types.GradeKindergarten, Count: 8}}}
	r := NewResolver(remote, local, Options{})

	res, err := r.GradeBreakdown(context.Background(), school, types.AllYears)
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, res.Source)
	assert.Equal(t, []types.SchoolYear{"2023-2024"}, local.gradeYears)
}

func TestResolver_GradesRemoteZeroFilled(t *testing.T) {
	rec := remoteRecord()
	rec.Grades[1] = 8
	r := NewResolver(&fakeRemote{summary: rec}, &fakeLocal{}, Options{})

	res, err := r.GradeBreakdown(context.Background(), school, "2023-2024")
	require.NoError(t, err)
	require.Len(t, res.Value, len(types.GradeValues()))
	assert.Equal(t, types.GradeCount{Grade: types.GradeKindergarten, Count: 8}, res.Value[1])
	assert.Zero(t, res.Value[0].Count)
}

func TestResolver_HistoryRemote(t *testing.T) {
	remote := &fakeRemote{history: []types.YearRecord{{SchoolYear: "2022-2023", Total: 16}, {SchoolYear: "2023-2024", Total: 30}}}
	r := NewResolver(remote, &fakeLocal{}, Options{})

	res, err := r.History(context.Background(), school)
	require.NoError(t, err)
	require.Len(t, res.Value.Years, 2)
	assert.Equal(t, int64(30), res.Value.Years[1].Total)
}

func TestResolver_ProfileSharesSource(t *testing.T) {
	remote := &fakeRemote{err: errs.NewTransportError("down", nil)}
	local := &fakeLocal{
		summary: &types.AggregateSummary{TotalEnrollment: 30},
		grades:  []types.GradeCount{{Grade: types.GradeKindergarten, Count: 8}},
	}
	r := NewResolver(remote, local, Options{})

	res, err := r.Profile(context.Background(), school, "2023-2024")
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, res.Source)
	assert.Equal(t, int64(30), res.Value.Summary.TotalEnrollment)
	assert.Len(t, res.Value.Grades, 1)
}

func TestResolver_Validation(t *testing.T) {
	remote := &fakeRemote{}
	r := NewResolver(remote, &fakeLocal{}, Options{})

	_, err := r.Summary(context.Background(), "123", "2023-2024")
	assert.True(t, errs.IsValidation(err))
	_, err = r.GradeBreakdown(context.Background(), school, "2023")
	assert.Equal(t, errs.CodeInvalidYear, errs.GetCode(err))
	assert.Zero(t, remote.calls)
}

func TestResolver_Observability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	stats := observability.NewAccessStats(0)

	remote := &fakeRemote{err: errors.New("down")}
	local := &fakeLocal{err: errors.New("also down")}
	r := NewResolver(remote, local, Options{Metrics: metrics, Stats: stats})

	_, err := r.Summary(context.Background(), school, "2023-2024")
	require.Error(t, err)
	local.err = nil
	_, err = r.Summary(context.Background(), school, "2023-2024")
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(reg, "schooldata_fallback_failures_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "schooldata_resolutions_total"))
	top := stats.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, string(school), top[0].Entity)
}
