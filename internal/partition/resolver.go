// Package partition maps entity codes and school years onto the object keys
// of the hive-partitioned membership dataset, and turns those keys into
// locations the embedded engine can scan.
package partition

import (
	"fmt"
	"strings"

	"github.com/usaschooldata/schooldata/pkg/types"
)

const (
	// MembershipRoot is the top-level prefix of the membership partitions.
	MembershipRoot = "membership"

	// DirectoryKey is the object holding the school directory.
	DirectoryKey = "directory.parquet"

	yearSegment   = "school_year="
	prefixSegment = "state_leaid="
	dataFile      = "data_0.parquet"
)

// Locator identifies one membership partition.
type Locator struct {
	Prefix string
	Year   types.SchoolYear
}

// ObjectKey returns the partition's object key relative to the dataset root.
func (l Locator) ObjectKey() string {
	return fmt.Sprintf("%s/%s%s/%s%s/%s", MembershipRoot, yearSegment, l.Year, prefixSegment, l.Prefix, dataFile)
}

// Resolver computes partition locators for entities. It holds an immutable
// copy of the known school years, most recent first.
type Resolver struct {
	years []types.SchoolYear
}

// NewResolver creates a resolver over the given years. An empty list falls
// back to the published default years.
func NewResolver(years []types.SchoolYear) *Resolver {
	if len(years) == 0 {
		years = types.DefaultAvailableYears()
	}
	return &Resolver{years: append([]types.SchoolYear(nil), years...)}
}

// Resolve returns one locator per year for the entity's prefix. With no
// years given, every known year is resolved in configured order.
func (r *Resolver) Resolve(code types.EntityCode, years ...types.SchoolYear) []Locator {
	if len(years) == 0 {
		years = r.years
	}
	prefix := code.Prefix()
	out := make([]Locator, len(years))
	for i, y := range years {
		out[i] = Locator{Prefix: prefix, Year: y}
	}
	return out
}

// Keys returns the object keys of the locators.
func Keys(locators []Locator) []string {
	keys := make([]string, len(locators))
	for i, l := range locators {
		keys[i] = l.ObjectKey()
	}
	return keys
}

// AvailableYears returns a copy of the known years, most recent first.
func (r *Resolver) AvailableYears() []types.SchoolYear {
	return append([]types.SchoolYear(nil), r.years...)
}

// AvailableYearStrings returns the known years as plain strings.
func (r *Resolver) AvailableYearStrings() []string {
	out := make([]string, len(r.years))
	for i, y := range r.years {
		out[i] = string(y)
	}
	return out
}

// Latest returns the most recent known year.
func (r *Resolver) Latest() types.SchoolYear {
	return r.years[0]
}

// Knows reports whether the year is in the known list.
func (r *Resolver) Knows(year types.SchoolYear) bool {
	for _, y := range r.years {
		if y == year {
			return true
		}
	}
	return false
}

// YearOfKey extracts the school year segment of a partition key, or "" when
// the key carries none.
func YearOfKey(key string) types.SchoolYear {
	for _, seg := range strings.Split(key, "/") {
		if v, ok := strings.CutPrefix(seg, yearSegment); ok {
			return types.SchoolYear(v)
		}
	}
	return ""
}
