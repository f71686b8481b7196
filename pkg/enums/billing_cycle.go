package enums

import (
	"fmt"
	"time"
)

// BillingCycle defines the cadence for a subscription.
type BillingCycle string

const (
	BillingCycleTrial   BillingCycle = "trial"
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

var validBillingCycles = []BillingCycle{
	BillingCycleTrial,
	BillingCycleMonthly,
	BillingCycleAnnual,
}

// String implements fmt.Stringer.
func (b BillingCycle) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingCycle.
func (b BillingCycle) IsValid() bool {
	for _, candidate := range validBillingCycles {
		if candidate == b {
			return true
		}
	}
	return false
}

// IsPaid reports whether the cycle represents a paid subscription.
func (b BillingCycle) IsPaid() bool {
	return b == BillingCycleMonthly || b == BillingCycleAnnual
}

// ExpiryFrom returns when a subscription started at the given instant runs out:
// trialDays for trials, one calendar month for monthly, one year for annual.
func (b BillingCycle) ExpiryFrom(start time.Time, trialDays int) time.Time {
	switch b {
	case BillingCycleTrial:
		return start.AddDate(0, 0, trialDays)
	case BillingCycleMonthly:
		return start.AddDate(0, 1, 0)
	case BillingCycleAnnual:
		return start.AddDate(1, 0, 0)
	}
	return start
}

// ParseBillingCycle converts raw input into a BillingCycle.
func ParseBillingCycle(value string) (BillingCycle, error) {
	for _, candidate := range validBillingCycles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing cycle %q", value)
}
