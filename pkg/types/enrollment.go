package types

// DataSource tags which backend produced a result.
type DataSource string

const (
	SourceRemote DataSource = "remote"
	SourceLocal  DataSource = "local"
)

// CategoryCount is the student count of one demographic category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// GradeCount is the student count of one grade.
type GradeCount struct {
	Grade string `json:"grade"`
	Count int64  `json:"student_count"`
}

// AggregateSummary is the headline enrollment view of one entity.
type AggregateSummary struct {
	EntityCode      EntityCode      `json:"entity_code"`
	TotalEnrollment int64           `json:"total_enrollment"`
	EarliestYear    SchoolYear      `json:"earliest_year"`
	LatestYear      SchoolYear      `json:"latest_year"`
	SchoolCount     int64           `json:"school_count,omitempty"` // districts only
	ByRaceEthnicity []CategoryCount `json:"by_race_ethnicity"`
	BySex           []CategoryCount `json:"by_sex"`
}

// YearRecord is one year of pre-aggregated enrollment as served by the
// remote aggregation service.
type YearRecord struct {
	SchoolYear      SchoolYear `json:"school_year"`
	Total           int64      `json:"total_enrollment"`
	NativeAmerican  int64      `json:"native_american"`
	Asian           int64      `json:"asian"`
	Black           int64      `json:"black"`
	Hispanic        int64      `json:"hispanic"`
	PacificIslander int64      `json:"pacific_islander"`
	Multiracial     int64      `json:"multiracial"`
	White           int64      `json:"white"`
	Male            int64      `json:"male"`
	Female          int64      `json:"female"`

	// Grades holds counts in GradeValues order.
	Grades [17]int64 `json:"grades"`
}

// RaceCounts returns the race/ethnicity breakdown in closed-set order.
func (r YearRecord) RaceCounts() []CategoryCount {
	values := []int64{r.NativeAmerican, r.Asian, r.Black, r.Hispanic, r.PacificIslander, r.Multiracial, r.White}
	out := make([]CategoryCount, len(raceEthnicityValues))
	for i, race := range raceEthnicityValues {
		out[i] = CategoryCount{Category: race, Count: values[i]}
	}
	return out
}

// SexCounts returns the sex breakdown in closed-set order.
func (r YearRecord) SexCounts() []CategoryCount {
	return []CategoryCount{
		{Category: SexFemale, Count: r.Female},
		{Category: SexMale, Count: r.Male},
	}
}

// GradeCounts returns every grade in pedagogical order, including zeros.
func (r YearRecord) GradeCounts() []GradeCount {
	out := make([]GradeCount, len(gradeValues))
	for i, grade := range gradeValues {
		out[i] = GradeCount{Grade: grade, Count: r.Grades[i]}
	}
	return out
}

// Summary converts a single-year record into an AggregateSummary.
func (r YearRecord) Summary(code EntityCode) *AggregateSummary {
	return &AggregateSummary{
		EntityCode:      code,
		TotalEnrollment: r.Total,
		EarliestYear:    r.SchoolYear,
		LatestYear:      r.SchoolYear,
		ByRaceEthnicity: r.RaceCounts(),
		BySex:           r.SexCounts(),
	}
}

// Rollup converts the record into one entry of a historical series.
func (r YearRecord) Rollup() YearRollup {
	return YearRollup{
		SchoolYear:      r.SchoolYear,
		Total:           r.Total,
		ByRaceEthnicity: r.RaceCounts(),
		BySex:           r.SexCounts(),
		ByGrade:         r.GradeCounts(),
	}
}

// YearRollup is one year of a historical series.
type YearRollup struct {
	SchoolYear      SchoolYear      `json:"school_year"`
	Total           int64           `json:"total_enrollment"`
	ByRaceEthnicity []CategoryCount `json:"by_race_ethnicity"`
	BySex           []CategoryCount `json:"by_sex"`
	ByGrade         []GradeCount    `json:"by_grade"`
}

// HistoricalSeries is an entity's enrollment across years, ascending by year.
type HistoricalSeries struct {
	EntityCode EntityCode   `json:"entity_code"`
	Years      []YearRollup `json:"years"`
}

// SeriesFromRecords builds a historical series from remote records. Records
// are expected in ascending year order.
func SeriesFromRecords(code EntityCode, records []YearRecord) *HistoricalSeries {
	series := &HistoricalSeries{EntityCode: code, Years: make([]YearRollup, 0, len(records))}
	for _, rec := range records {
		series.Years = append(series.Years, rec.Rollup())
	}
	return series
}

// MembershipRow is one row of the membership fact table scoped to an entity.
// District rows are summed per school.
type MembershipRow struct {
	NCESSCH       string     `json:"ncessch"`
	SchoolYear    SchoolYear `json:"school_year"`
	Grade         string     `json:"grade"`
	RaceEthnicity string     `json:"race_ethnicity"`
	Sex           string     `json:"sex"`
	StudentCount  int64      `json:"student_count"`
}

// MembershipFilters narrows membership rows by equality. Empty fields match all.
type MembershipFilters struct {
	Grade         string
	RaceEthnicity string
	Sex           string
}

// IsEmpty reports whether no filter is set.
func (f MembershipFilters) IsEmpty() bool {
	return f.Grade == "" && f.RaceEthnicity == "" && f.Sex == ""
}

// Rollup is the result of aggregating an entity along one dimension.
type Rollup struct {
	Dimension Dimension       `json:"dimension"`
	Counts    []CategoryCount `json:"counts"`
}

// Count returns the count of one category, or 0 when absent.
func (r Rollup) Count(category string) int64 {
	for _, c := range r.Counts {
		if c.Category == category {
			return c.Count
		}
	}
	return 0
}

// Total returns the sum over all categories.
func (r Rollup) Total() int64 {
	var total int64
	for _, c := range r.Counts {
		total += c.Count
	}
	return total
}

// SummaryFromRecords aggregates records across years into one summary, or
// nil when there are none.
func SummaryFromRecords(code EntityCode, records []YearRecord) *AggregateSummary {
	if len(records) == 0 {
		return nil
	}
	var sum YearRecord
	earliest, latest := records[0].SchoolYear, records[0].SchoolYear
	for _, r := range records {
		sum.Total += r.Total
		sum.NativeAmerican += r.NativeAmerican
		sum.Asian += r.Asian
		sum.Black += r.Black
		sum.Hispanic += r.Hispanic
		sum.PacificIslander += r.PacificIslander
		sum.Multiracial += r.Multiracial
		sum.White += r.White
		sum.Male += r.Male
		sum.Female += r.Female
		if r.SchoolYear < earliest {
			earliest = r.SchoolYear
		}
		if r.SchoolYear > latest {
			latest = r.SchoolYear
		}
	}
	out := sum.Summary(code)
	out.EarliestYear, out.LatestYear = earliest, latest
	return out
}

// RecordFromRollup flattens one year of a historical series back into the
// remote record shape. Categories outside the closed sets are dropped.
func RecordFromRollup(y YearRollup) YearRecord {
	rec := YearRecord{SchoolYear: y.SchoolYear, Total: y.Total}
	races := map[string]*int64{
		RaceNativeAmerican:  &rec.NativeAmerican,
		RaceAsian:           &rec.Asian,
		RaceBlack:           &rec.Black,
		RaceHispanic:        &rec.Hispanic,
		RacePacificIslander: &rec.PacificIslander,
		RaceMultiracial:     &rec.Multiracial,
		RaceWhite:           &rec.White,
	}
	for _, c := range y.ByRaceEthnicity {
		if p, ok := races[c.Category]; ok {
			*p += c.Count
		}
	}
	for _, c := range y.BySex {
		switch c.Category {
		case SexFemale:
			rec.Female += c.Count
		case SexMale:
			rec.Male += c.Count
		}
	}
	for _, g := range y.ByGrade {
		for i, label := range gradeValues {
			if g.Grade == label {
				rec.Grades[i] += g.Count
				break
			}
		}
	}
	return rec
}
