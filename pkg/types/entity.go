// Package types provides the core data types for school and district enrollment data.
package types

// EntityKind distinguishes districts from schools.
type EntityKind string

const (
	// KindDistrict is a local education agency identified by a 7-character LEAID.
	KindDistrict EntityKind = "district"

	// KindSchool is a school identified by a 12-character NCESSCH.
	KindSchool EntityKind = "school"

	// KindUnknown is any code whose length matches neither kind.
	KindUnknown EntityKind = "unknown"
)

const (
	// DistrictCodeLength is the length of an LEAID.
	DistrictCodeLength = 7

	// SchoolCodeLength is the length of an NCESSCH.
	SchoolCodeLength = 12

	// prefixLength is the length of the state FIPS prefix shared by both kinds.
	prefixLength = 2
)

// EntityCode identifies a school or a district. The kind is determined by
// length alone; the characters themselves are not validated and may contain
// anything, including quote characters.
type EntityCode string

// Kind classifies the code by its length.
func (c EntityCode) Kind() EntityKind {
	switch len(c) {
	case DistrictCodeLength:
		return KindDistrict
	case SchoolCodeLength:
		return KindSchool
	default:
		return KindUnknown
	}
}

// IsSchool reports whether the code identifies a school.
func (c EntityCode) IsSchool() bool { return c.Kind() == KindSchool }

// IsDistrict reports whether the code identifies a district.
func (c EntityCode) IsDistrict() bool { return c.Kind() == KindDistrict }

// Prefix returns the state/administrative prefix used for partition routing.
func (c EntityCode) Prefix() string {
	if len(c) < prefixLength {
		return string(c)
	}
	return string(c[:prefixLength])
}

// String returns the code as a plain string.
func (c EntityCode) String() string { return string(c) }

// FilterColumn returns the membership column an entity of this kind is matched on.
func (k EntityKind) FilterColumn() string {
	if k == KindDistrict {
		return "leaid"
	}
	return "ncessch"
}
