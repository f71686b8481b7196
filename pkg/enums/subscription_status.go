package enums

import "fmt"

// SubscriptionStatus tracks the lifecycle state of a user subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusTrial,
	SubscriptionStatusActive,
	SubscriptionStatusExpired,
	SubscriptionStatusCancelled,
}

// CurrentSubscriptionStatuses are the states that count toward the
// at-most-one-current-row invariant.
var CurrentSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusTrial,
}

// String implements fmt.Stringer.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCurrent reports whether the status represents a live entitlement.
func (s SubscriptionStatus) IsCurrent() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrial
}

// IsTerminal reports whether the status can never transition again; a new plan
// assignment always creates a fresh row instead of reviving one.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusExpired || s == SubscriptionStatusCancelled
}

// ParseSubscriptionStatus converts raw input into a SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
