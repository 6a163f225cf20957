package partition

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/usaschooldata/schooldata/pkg/types"
)

func TestLocator_ObjectKey(t *testing.T) {
	l := Locator{Prefix: "01", Year: "2023-2024"}
	want := "membership/school_year=2023-2024/state_leaid=01/data_0.parquet"
	if got := l.ObjectKey(); got != want {
		t.Errorf("ObjectKey = %s, want %s", got, want)
	}
	if YearOfKey(want) != "2023-2024" {
		t.Errorf("YearOfKey = %q", YearOfKey(want))
	}
	if YearOfKey(DirectoryKey) != "" {
		t.Error("directory key carries no year")
	}
}

func TestResolver_SchoolSingleYear(t *testing.T) {
	r := NewResolver(nil)
	locs := r.Resolve("010000500870", "2022-2023")
	if len(locs) != 1 {
		t.Fatalf("expected 1 locator, got %d", len(locs))
	}
	if locs[0] != (Locator{Prefix: "01", Year: "2022-2023"}) {
		t.Errorf("unexpected locator %+v", locs[0])
	}
}

func TestResolver_AllYearsInConfiguredOrder(t *testing.T) {
	r := NewResolver(types.Years("2023-2024", "2022-2023", "2021-2022"))
	locs := r.Resolve("0100005")
	if len(locs) != 3 {
		t.Fatalf("expected 3 locators, got %d", len(locs))
	}
	for i, want := range []types.SchoolYear{"2023-2024", "2022-2023", "2021-2022"} {
		if locs[i].Year != want || locs[i].Prefix != "01" {
			t.Errorf("locator %d = %+v", i, locs[i])
		}
	}
	if r.Latest() != "2023-2024" {
		t.Errorf("Latest = %s", r.Latest())
	}
}

func TestResolver_HoldsPrivateCopy(t *testing.T) {
	years := types.Years("2023-2024", "2022-2023")
	r := NewResolver(years)
	years[0] = "1999-2000"
	if r.Latest() != "2023-2024" {
		t.Fatal("resolver should not alias the caller's slice")
	}
	got := r.AvailableYears()
	got[0] = "1999-2000"
	if r.Latest() != "2023-2024" {
		t.Fatal("AvailableYears should return a copy")
	}
	if !r.Knows("2022-2023") || r.Knows("2024-2025") {
		t.Error("Knows mismatch")
	}
}

func TestResolver_DefaultYears(t *testing.T) {
	r := NewResolver(nil)
	if len(r.Resolve("010000500870")) != 10 {
		t.Fatalf("expected the 10 default years")
	}
}

// TestProperty_ResolveFollowsInput checks that resolution never fails and
// preserves input order and prefix.
func TestProperty_ResolveFollowsInput(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	r := NewResolver(nil)
	properties.Property("one locator per requested year", prop.ForAll(
		func(code string, starts []int) bool {
			years := make([]types.SchoolYear, len(starts))
			for i, s := range starts {
				years[i] = types.SchoolYear(formatYear(s))
			}
			locs := r.Resolve(types.EntityCode(code), years...)
			if len(years) == 0 {
				return len(locs) == len(r.AvailableYears())
			}
			if len(locs) != len(years) {
				return false
			}
			for i := range locs {
				if locs[i].Year != years[i] || locs[i].Prefix != types.EntityCode(code).Prefix() {
					return false
				}
			}
			return true
		},
		gen.NumString(),
		gen.SliceOf(gen.IntRange(2000, 2030)),
	))

	properties.TestingRun(t)
}

func formatYear(start int) string {
	return strconv.Itoa(start) + "-" + strconv.Itoa(start+1)
}
