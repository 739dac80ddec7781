package enums

import "fmt"

// PlanType is the billing cadence of a pro subscription.
type PlanType string

const (
	PlanTypeMonth PlanType = "month"
	PlanTypeYear  PlanType = "year"
)

var validPlanTypes = []PlanType{
	PlanTypeMonth,
	PlanTypeYear,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
