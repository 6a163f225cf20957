package types

import "strconv"

// SchoolYear identifies one academic year partition, formatted YYYY-YYYY.
// Lexicographic order is chronological order.
type SchoolYear string

// AllYears is the year filter meaning "every known year".
const AllYears SchoolYear = ""

// Valid reports whether the year has the YYYY-YYYY shape with consecutive years.
func (y SchoolYear) Valid() bool {
	s := string(y)
	if len(s) != 9 || s[4] != '-' {
		return false
	}
	start, err := strconv.Atoi(s[:4])
	if err != nil {
		return false
	}
	end, err := strconv.Atoi(s[5:])
	if err != nil {
		return false
	}
	return end == start+1
}

// IsAll reports whether the year is the all-years filter.
func (y SchoolYear) IsAll() bool { return y == AllYears }

// String returns the year token.
func (y SchoolYear) String() string { return string(y) }

// Years converts plain strings into school years.
func Years(values ...string) []SchoolYear {
	out := make([]SchoolYear, len(values))
	for i, v := range values {
		out[i] = SchoolYear(v)
	}
	return out
}

// DefaultAvailableYears lists the published membership years, most recent first.
func DefaultAvailableYears() []SchoolYear {
	return Years(
		"2023-2024",
		"2022-2023",
		"2021-2022",
		"2020-2021",
		"2019-2020",
		"2018-2019",
		"2017-2018",
		"2016-2017",
		"2015-2016",
		"2014-2015",
	)
}
