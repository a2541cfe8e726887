package enums

import "fmt"

// SourceTable tags which business table a purchase record came from.
type SourceTable string

const (
	SourceTableMemberships   SourceTable = "memberships"
	SourceTableRegistrations SourceTable = "registrations"
)

var validSourceTables = []SourceTable{
	SourceTableMemberships,
	SourceTableRegistrations,
}

// String implements fmt.Stringer.
func (s SourceTable) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SourceTable) IsValid() bool {
	for _, candidate := range validSourceTables {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSourceTable converts raw input into a SourceTable.
func ParseSourceTable(value string) (SourceTable, error) {
	for _, candidate := range validSourceTables {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid source table %q", value)
}

// LineItemType maps the source table to the line item type it produces.
func (s SourceTable) LineItemType() LineItemType {
	if s == SourceTableRegistrations {
		return LineItemTypeRegistration
	}
	return LineItemTypeMembership
}
