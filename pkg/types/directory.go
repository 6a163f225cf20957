package types

// DirectoryEntry is one school in the directory search index.
type DirectoryEntry struct {
	NCESSCH     string     `json:"ncessch"`
	Name        string     `json:"sch_name"`
	SchoolYear  SchoolYear `json:"school_year"`
	StateCode   string     `json:"state_code"`
	SchoolType  string     `json:"sch_type"`
	SchoolLevel string     `json:"sch_level"`
	Charter     string     `json:"charter"`
}

// SearchFilters are structured directory filters. Empty fields match all.
type SearchFilters struct {
	StateCode   string
	SchoolType  string
	SchoolLevel string
	Charter     string
}

// IsEmpty reports whether no filter is set.
func (f SearchFilters) IsEmpty() bool {
	return f.StateCode == "" && f.SchoolType == "" && f.SchoolLevel == "" && f.Charter == ""
}
