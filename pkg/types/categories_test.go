package types

import (
	"sort"
	"testing"
)

func TestGradeRank_Order(t *testing.T) {
	grades := GradeValues()
	if len(grades) != 17 {
		t.Fatalf("expected 17 grades, got %d", len(grades))
	}
	shuffled := []string{"Grade 10", "Adult Education", "Kindergarten", "Grade 2", "Ungraded", "Pre-Kindergarten", "Grade 1"}
	sort.SliceStable(shuffled, func(i, j int) bool { return GradeRank(shuffled[i]) < GradeRank(shuffled[j]) })
	want := []string{"Pre-Kindergarten", "Kindergarten", "Grade 1", "Grade 2", "Grade 10", "Ungraded", "Adult Education"}
	for i := range want {
		if shuffled[i] != want[i] {
			t.Fatalf("order = %v, want %v", shuffled, want)
		}
	}
	if GradeRank("Grade 14") != 99 {
		t.Errorf("unknown grade rank = %d, want 99", GradeRank("Grade 14"))
	}
	for i := 1; i < len(grades); i++ {
		if GradeRank(grades[i-1]) >= GradeRank(grades[i]) {
			t.Errorf("%s should rank before %s", grades[i-1], grades[i])
		}
	}
}

func TestClosedSets_AreCopies(t *testing.T) {
	races := RaceEthnicityValues()
	races[0] = "mutated"
	if RaceEthnicityValues()[0] != RaceNativeAmerican {
		t.Fatal("closed set should not be mutable through returned slice")
	}
	if len(SexValues()) != 2 {
		t.Fatalf("expected 2 sex values, got %d", len(SexValues()))
	}
}

func TestDimension_Categories(t *testing.T) {
	if DimensionYear.Categories() != nil {
		t.Error("year dimension should be open")
	}
	if len(DimensionRaceEthnicity.Categories()) != 7 {
		t.Error("race dimension should have 7 categories")
	}
	if DimensionGrade.Column() != "grade" || DimensionYear.Column() != "school_year" {
		t.Error("unexpected dimension columns")
	}
	if Dimension("county").Valid() {
		t.Error("unknown dimension should be invalid")
	}
}

func TestSchoolYear_Valid(t *testing.T) {
	valid := []SchoolYear{"2023-2024", "2014-2015"}
	invalid := []SchoolYear{"", "2023", "2023-2025", "2023_2024", "abcd-efgh", "2023-20245"}
	for _, y := range valid {
		if !y.Valid() {
			t.Errorf("%q should be valid", y)
		}
	}
	for _, y := range invalid {
		if y.Valid() {
			t.Errorf("%q should be invalid", y)
		}
	}
	years := DefaultAvailableYears()
	if years[0] != "2023-2024" || years[len(years)-1] != "2014-2015" {
		t.Errorf("unexpected default years %v", years)
	}
}

func TestYearRecord_Conversions(t *testing.T) {
	rec := YearRecord{SchoolYear: "2022-2023", Total: 30, Asian: 10, White: 20, Male: 18, Female: 12}
	rec.Grades[0] = 5
	rec.Grades[16] = 1

	sum := rec.Summary("010000500870")
	if sum.EarliestYear != "2022-2023" || sum.LatestYear != "2022-2023" || sum.TotalEnrollment != 30 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.ByRaceEthnicity) != 7 || sum.ByRaceEthnicity[1].Count != 10 {
		t.Errorf("unexpected race counts %+v", sum.ByRaceEthnicity)
	}
	if sum.BySex[0].Category != SexFemale || sum.BySex[0].Count != 12 {
		t.Errorf("unexpected sex counts %+v", sum.BySex)
	}
	grades := rec.GradeCounts()
	if grades[0].Grade != GradePreK || grades[0].Count != 5 || grades[16].Grade != GradeAdultEducation {
		t.Errorf("unexpected grade counts %+v", grades)
	}

	series := SeriesFromRecords("010000500870", []YearRecord{rec})
	if len(series.Years) != 1 || len(series.Years[0].ByGrade) != 17 {
		t.Errorf("unexpected series %+v", series)
	}
}

func TestSummaryFromRecords(t *testing.T) {
	if SummaryFromRecords("010000500870", nil) != nil {
		t.Error("no records should yield no summary")
	}
	records := []YearRecord{
		{SchoolYear: "2023-2024", Total: 30, Asian: 10, Male: 15, Female: 15},
		{SchoolYear: "2022-2023", Total: 16, Black: 9, Male: 9, Female: 7},
	}
	s := SummaryFromRecords("010000500870", records)
	if s.TotalEnrollment != 46 || s.EarliestYear != "2022-2023" || s.LatestYear != "2023-2024" {
		t.Errorf("summary = %+v", s)
	}
	if s.BySex[0].Count != 22 || s.BySex[1].Count != 24 {
		t.Errorf("by sex = %+v", s.BySex)
	}
}

func TestRecordFromRollup(t *testing.T) {
	rec := YearRecord{SchoolYear: "2023-2024", Total: 30, Asian: 10, Hispanic: 8, White: 12, Male: 15, Female: 15}
	rec.Grades[1] = 8
	rec.Grades[2] = 22

	if got := RecordFromRollup(rec.Rollup()); got != rec {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}

	extra := YearRollup{
		SchoolYear:      "2023-2024",
		Total:           3,
		ByRaceEthnicity: []CategoryCount{{Category: "Not Specified", Count: 3}},
		ByGrade:         []GradeCount{{Grade: "Grade 14", Count: 3}},
	}
	got := RecordFromRollup(extra)
	if got.Total != 3 || got.Asian != 0 || got.Grades != [17]int64{} {
		t.Errorf("unknown categories should be dropped: %+v", got)
	}
}
