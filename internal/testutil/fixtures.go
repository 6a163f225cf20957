// Package testutil writes small hive-partitioned parquet datasets that
// mirror the published membership and directory layout.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// MembershipRecord is one row of a membership partition file. The year and
// state prefix live in the hive path, not in the file.
type MembershipRecord struct {
	NCESSCH       string `parquet:"ncessch"`
	LEAID         string `parquet:"leaid"`
	Grade         string `parquet:"grade"`
	RaceEthnicity string `parquet:"race_ethnicity"`
	Sex           string `parquet:"sex"`
	StudentCount  int64  `parquet:"student_count"`
}

// DirectoryRecord is one row of the school directory file.
type DirectoryRecord struct {
	NCESSCH      string `parquet:"ncessch"`
	SchName      string `parquet:"sch_name"`
	SchoolYear   string `parquet:"school_year"`
	SchoolYearNo int32  `parquet:"school_year_no"`
	StateCode    string `parquet:"state_code"`
	LEAID        string `parquet:"leaid"`
	SchType      string `parquet:"sch_type"`
	SchLevel     string `parquet:"sch_level"`
	Charter      string `parquet:"charter"`
}

// Entities of the sample dataset.
const (
	SchoolLincoln    types.EntityCode = "010000500870"
	SchoolWashington types.EntityCode = "010000500871"
	SchoolQuoted     types.EntityCode = "01000'500872"
	DistrictAlabama  types.EntityCode = "0100005"
	SchoolCalifornia types.EntityCode = "060000100001"
	SchoolPercent    types.EntityCode = "060000100002"
	DistrictCA       types.EntityCode = "0600001"
)

// SampleYears are the years present in the sample dataset, most recent first.
func SampleYears() []types.SchoolYear {
	return types.Years("2023-2024", "2022-2023")
}

// WriteParquet writes rows to path, creating parent directories.
func WriteParquet[T any](t testing.TB, path string, rows []T) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("write parquet %s: %v", path, err)
	}
}

// WriteMembership writes one membership partition under root.
func WriteMembership(t testing.TB, root, prefix string, year types.SchoolYear, rows []MembershipRecord) {
	t.Helper()
	key := partition.Locator{Prefix: prefix, Year: year}.ObjectKey()
	WriteParquet(t, filepath.Join(root, filepath.FromSlash(key)), rows)
}

// WriteDirectory writes the directory file under root.
func WriteDirectory(t testing.TB, root string, rows []DirectoryRecord) {
	t.Helper()
	WriteParquet(t, filepath.Join(root, partition.DirectoryKey), rows)
}

// SampleDataset writes the standard fixture into a temporary directory and
// returns its root.
//
// Lincoln (2023-2024): 30 students, 15 female and 15 male.
// District 0100005 (2023-2024): 42 students across three schools.
func SampleDataset(t testing.TB) string {
	t.Helper()
	root := t.TempDir()

	al := string(DistrictAlabama)
	WriteMembership(t, root, "01", "2023-2024", []MembershipRecord{
		{string(SchoolLincoln), al, types.GradeKindergarten, types.RaceHispanic, types.SexFemale, 5},
		{string(SchoolLincoln), al, types.GradeKindergarten, types.RaceHispanic, types.SexMale, 3},
		{string(SchoolLincoln), al, "Grade 1", types.RaceAsian, types.SexFemale, 10},
		{string(SchoolLincoln), al, "Grade 1", types.RaceWhite, types.SexMale, 12},
		{string(SchoolWashington), al, "Grade 1", types.RaceWhite, types.SexFemale, 4},
		{string(SchoolWashington), al, "Grade 2", types.RaceAsian, types.SexMale, 6},
		{string(SchoolQuoted), al, "Grade 3", types.RaceWhite, types.SexFemale, 2},
	})
	WriteMembership(t, root, "01", "2022-2023", []MembershipRecord{
		{string(SchoolLincoln), al, types.GradeKindergarten, types.RaceWhite, types.SexFemale, 7},
		{string(SchoolLincoln), al, "Grade 1", types.RaceBlack, types.SexMale, 9},
		{string(SchoolWashington), al, "Grade 2", types.RaceAsian, types.SexMale, 2},
	})
	WriteMembership(t, root, "06", "2023-2024", []MembershipRecord{
		{string(SchoolCalifornia), string(DistrictCA), "Grade 1", types.RaceAsian, types.SexFemale, 50},
		{string(SchoolPercent), string(DistrictCA), "Grade 9", types.RaceMultiracial, types.SexMale, 8},
	})
	WriteMembership(t, root, "06", "2022-2023", []MembershipRecord{
		{string(SchoolCalifornia), string(DistrictCA), "Grade 1", types.RaceAsian, types.SexFemale, 45},
	})

	WriteDirectory(t, root, []DirectoryRecord{
		{string(SchoolLincoln), "Lincoln Elementary", "2023-2024", 1, "AL", al, "Regular School", "Elementary", "No"},
		{string(SchoolLincoln), "Lincoln Primary", "2022-2023", 2, "AL", al, "Regular School", "Elementary", "No"},
		{string(SchoolWashington), "Washington Middle", "2023-2024", 1, "AL", al, "Regular School", "Middle", "Yes"},
		{string(SchoolQuoted), "O'Brien Academy", "2023-2024", 1, "AL", al, "Alternative Education School", "High", "No"},
		{string(SchoolCalifornia), "Lincoln High", "2023-2024", 1, "CA", string(DistrictCA), "Regular School", "High", "No"},
		{string(SchoolPercent), "100% Prep Academy", "2023-2024", 1, "CA", string(DistrictCA), "Regular School", "High", "Yes"},
	})

	return root
}
