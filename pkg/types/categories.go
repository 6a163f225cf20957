package types

// Race/ethnicity categories reported in membership data.
const (
	RaceNativeAmerican  = "American Indian or Alaska Native"
	RaceAsian           = "Asian"
	RaceBlack           = "Black or African American"
	RaceHispanic        = "Hispanic/Latino"
	RacePacificIslander = "Native Hawaiian or Other Pacific Islander"
	RaceMultiracial     = "Two or more races"
	RaceWhite           = "White"
)

// Sex categories reported in membership data.
const (
	SexFemale = "Female"
	SexMale   = "Male"
)

// Grade labels reported in membership data.
const (
	GradePreK           = "Pre-Kindergarten"
	GradeKindergarten   = "Kindergarten"
	GradeUngraded       = "Ungraded"
	GradeAdultEducation = "Adult Education"
)

var raceEthnicityValues = []string{
	RaceNativeAmerican,
	RaceAsian,
	RaceBlack,
	RaceHispanic,
	RacePacificIslander,
	RaceMultiracial,
	RaceWhite,
}

var sexValues = []string{SexFemale, SexMale}

var gradeValues = []string{
	GradePreK,
	GradeKindergarten,
	"Grade 1",
	"Grade 2",
	"Grade 3",
	"Grade 4",
	"Grade 5",
	"Grade 6",
	"Grade 7",
	"Grade 8",
	"Grade 9",
	"Grade 10",
	"Grade 11",
	"Grade 12",
	"Grade 13",
	GradeUngraded,
	GradeAdultEducation,
}

// RaceEthnicityValues returns the closed set of race/ethnicity categories.
func RaceEthnicityValues() []string { return append([]string(nil), raceEthnicityValues...) }

// SexValues returns the closed set of sex categories.
func SexValues() []string { return append([]string(nil), sexValues...) }

// GradeValues returns the closed set of grades in pedagogical order.
func GradeValues() []string { return append([]string(nil), gradeValues...) }

// GradeRank returns the sort rank of a grade label. Unknown labels sort last.
func GradeRank(grade string) int {
	switch grade {
	case GradePreK:
		return -1
	case GradeKindergarten:
		return 0
	case GradeUngraded:
		return 20
	case GradeAdultEducation:
		return 21
	}
	for i := 1; i <= 13; i++ {
		if grade == gradeValues[i+1] {
			return i
		}
	}
	return 99
}

// Dimension names a demographic breakdown.
type Dimension string

const (
	DimensionYear          Dimension = "year"
	DimensionRaceEthnicity Dimension = "race_ethnicity"
	DimensionSex           Dimension = "sex"
	DimensionGrade         Dimension = "grade"
)

// Column returns the membership column grouped by the dimension.
func (d Dimension) Column() string {
	if d == DimensionYear {
		return "school_year"
	}
	return string(d)
}

// Categories returns the closed category set of the dimension. The year
// dimension is open and returns nil.
func (d Dimension) Categories() []string {
	switch d {
	case DimensionRaceEthnicity:
		return RaceEthnicityValues()
	case DimensionSex:
		return SexValues()
	case DimensionGrade:
		return GradeValues()
	default:
		return nil
	}
}

// Valid reports whether d is one of the known dimensions.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionYear, DimensionRaceEthnicity, DimensionSex, DimensionGrade:
		return true
	}
	return false
}
