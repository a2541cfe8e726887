package enums

import "fmt"

// LineItemType classifies one charge, discount, or donation component of an invoice.
type LineItemType string

const (
	LineItemTypeMembership   LineItemType = "membership"
	LineItemTypeRegistration LineItemType = "registration"
	LineItemTypeDiscount     LineItemType = "discount"
	LineItemTypeDonation     LineItemType = "donation"
)

var validLineItemTypes = []LineItemType{
	LineItemTypeMembership,
	LineItemTypeRegistration,
	LineItemTypeDiscount,
	LineItemTypeDonation,
}

// String implements fmt.Stringer.
func (t LineItemType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t LineItemType) IsValid() bool {
	for _, candidate := range validLineItemTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLineItemType converts raw input into a LineItemType.
func ParseLineItemType(value string) (LineItemType, error) {
	for _, candidate := range validLineItemTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line item type %q", value)
}
