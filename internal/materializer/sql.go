package materializer

import (
	"fmt"
	"strings"

	"github.com/usaschooldata/schooldata/internal/sqltext"
	"github.com/usaschooldata/schooldata/pkg/types"
)

const tablePrefix = "membership"

// entityTable names the per-year working table of an entity.
func entityTable(code types.EntityCode) string {
	return sqltext.TableName(tablePrefix, string(code))
}

// historyTable names the all-years working table of an entity.
func historyTable(code types.EntityCode) string {
	return entityTable(code) + "_history"
}

// createTableSQL builds the CREATE OR REPLACE TABLE AS SELECT statement that
// materializes an entity's rows from the given partition locations.
func createTableSQL(table string, locations []string, code types.EntityCode, year types.SchoolYear) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE %s AS\nSELECT *\nFROM read_parquet(%s, hive_partitioning = true, hive_types_autocast = false)\nWHERE %s = %s",
		table, sqltext.List(locations...), code.Kind().FilterColumn(), sqltext.String(string(code)))
	if !year.IsAll() {
		fmt.Fprintf(&b, "\n  AND school_year = %s", sqltext.String(string(year)))
	}
	return b.String()
}

// gradeRankSQL orders grades pedagogically.
var gradeRankSQL = func() string {
	var b strings.Builder
	b.WriteString("CASE grade")
	for _, g := range types.GradeValues() {
		fmt.Fprintf(&b, " WHEN %s THEN %d", sqltext.String(g), types.GradeRank(g))
	}
	b.WriteString(" ELSE 99 END")
	return b.String()
}()

// rowsSQL selects membership rows with optional equality filters bound as
// parameters. District rows are summed per school.
func rowsSQL(table string, kind types.EntityKind, f types.MembershipFilters) (string, []any) {
	var where []string
	var args []any
	if f.Grade != "" {
		where = append(where, "grade = ?")
		args = append(args, f.Grade)
	}
	if f.RaceEthnicity != "" {
		where = append(where, "race_ethnicity = ?")
		args = append(args, f.RaceEthnicity)
	}
	if f.Sex != "" {
		where = append(where, "sex = ?")
		args = append(args, f.Sex)
	}
	clause := ""
	if len(where) > 0 {
		clause = "\nWHERE " + strings.Join(where, " AND ")
	}

	if kind == types.KindDistrict {
		return fmt.Sprintf(`SELECT ncessch, school_year, grade, race_ethnicity, sex, SUM(student_count) AS student_count
FROM %s%s
GROUP BY ncessch, school_year, grade, race_ethnicity, sex
ORDER BY school_year DESC, ncessch, %s, race_ethnicity, sex`, table, clause, gradeRankSQL), args
	}
	return fmt.Sprintf(`SELECT ncessch, school_year, grade, race_ethnicity, sex, student_count
FROM %s%s
ORDER BY school_year DESC, %s, race_ethnicity, sex`, table, clause, gradeRankSQL), args
}

// groupSQL sums student counts per value of one column.
func groupSQL(table, column string) string {
	return fmt.Sprintf("SELECT %s AS category, SUM(student_count) AS student_count\nFROM %s\nGROUP BY %s\nORDER BY %s",
		column, table, column, column)
}

// pivot is one conditional-sum output column.
type pivot struct {
	alias  string
	column string
	value  string
}

func (p pivot) sql() string {
	return fmt.Sprintf("SUM(CASE WHEN %s = %s THEN student_count ELSE 0 END) AS %s", p.column, sqltext.String(p.value), p.alias)
}

var racePivots = []pivot{
	{"native_american", "race_ethnicity", types.RaceNativeAmerican},
	{"asian", "race_ethnicity", types.RaceAsian},
	{"black", "race_ethnicity", types.RaceBlack},
	{"hispanic", "race_ethnicity", types.RaceHispanic},
	{"pacific_islander", "race_ethnicity", types.RacePacificIslander},
	{"multiracial", "race_ethnicity", types.RaceMultiracial},
	{"white", "race_ethnicity", types.RaceWhite},
}

var sexPivots = []pivot{
	{"male", "sex", types.SexMale},
	{"female", "sex", types.SexFemale},
}

// gradePivots follow GradeValues order.
var gradePivots = func() []pivot {
	grades := types.GradeValues()
	out := make([]pivot, len(grades))
	for i, g := range grades {
		out[i] = pivot{alias: GradeAlias(i), column: "grade", value: g}
	}
	return out
}()

// GradeAlias is the wide-record column name of the i-th grade in GradeValues order.
func GradeAlias(i int) string {
	switch {
	case i == 0:
		return "grade_pk"
	case i == 1:
		return "grade_k"
	case i <= 14:
		return fmt.Sprintf("grade_%02d", i-1)
	case i == 15:
		return "ungraded"
	default:
		return "adult_education"
	}
}

func pivotColumns(groups ...[]pivot) string {
	var cols []string
	for _, g := range groups {
		for _, p := range g {
			cols = append(cols, "  "+p.sql())
		}
	}
	return strings.Join(cols, ",\n")
}

// summarySQL computes the summary of a working table in one pass.
func summarySQL(table string) string {
	return fmt.Sprintf(`SELECT
  SUM(student_count) AS total_enrollment,
  MIN(school_year) AS earliest_year,
  MAX(school_year) AS latest_year,
  COUNT(DISTINCT ncessch) AS school_count,
%s
FROM %s`, pivotColumns(racePivots, sexPivots), table)
}

// historySQL computes one wide record per year, ascending.
func historySQL(table string) string {
	return fmt.Sprintf(`SELECT
  school_year,
  SUM(student_count) AS total_enrollment,
%s
FROM %s
GROUP BY school_year
ORDER BY school_year ASC`, pivotColumns(racePivots, sexPivots, gradePivots), table)
}
