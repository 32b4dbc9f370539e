package types

import "fmt"

// SortField is a leaderboard column readers can sort by
type SortField string

const (
	SortFieldBeetles      SortField = "beetles"
	SortFieldPokes        SortField = "pokes"
	SortFieldSocialCredit SortField = "socialCredit"
	SortFieldUsername     SortField = "username"
)

// AllSortFields returns all valid sort fields
func AllSortFields() []SortField {
	return []SortField{
		SortFieldBeetles,
		SortFieldPokes,
		SortFieldSocialCredit,
		SortFieldUsername,
	}
}

// IsValid checks if the sort field is valid
func (f SortField) IsValid() bool {
	switch f {
	case SortFieldBeetles,
		SortFieldPokes,
		SortFieldSocialCredit,
		SortFieldUsername:
		return true
	default:
		return false
	}
}

// Normalize treats empty as beetles, the canonical ordering
func (f SortField) Normalize() SortField {
	if f == "" {
		return SortFieldBeetles
	}
	return f
}

func (f SortField) String() string {
	return string(f)
}

// ParseSortField parses a query value. "user" is accepted as an alias of username.
func ParseSortField(s string) (SortField, error) {
	if s == "user" {
		return SortFieldUsername, nil
	}
	field := SortField(s).Normalize()
	if !field.IsValid() {
		return "", fmt.Errorf("invalid sort field: %s", s)
	}
	return field, nil
}

// SortDirection is ascending or descending
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

func (d SortDirection) String() string {
	return string(d)
}

// ParseSortDirection parses a query value, treating empty as descending
func ParseSortDirection(s string) (SortDirection, error) {
	if s == "" {
		return SortDesc, nil
	}
	d := SortDirection(s)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid sort direction: %s", s)
	}
	return d, nil
}
