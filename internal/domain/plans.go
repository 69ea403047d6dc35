package domain

import "time"

// Role is the marketplace side a user acts on.
type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleHiring     Role = "hiring"
	RoleAdmin      Role = "admin"
)

// Subscribable reports whether the role can hold a subscription.
func (r Role) Subscribable() bool {
	return r == RoleFreelancer || r == RoleHiring
}

// PlanType is a plan tier.
type PlanType string

const (
	PlanFree  PlanType = "free"
	PlanBasic PlanType = "basic"
	PlanPro   PlanType = "pro"
)

// PlanTiers lists plan types from lowest to highest.
var PlanTiers = []PlanType{PlanFree, PlanBasic, PlanPro}

// Duration is a billing period.
type Duration string

const (
	DurationMonthly  Duration = "monthly"
	DurationYearly   Duration = "yearly"
	DurationLifetime Duration = "lifetime"
)

// Durations lists billing periods in display order.
var Durations = []Duration{DurationMonthly, DurationYearly, DurationLifetime}

// lifetimeYears is the synthetic span stored as the end date of lifetime plans.
const lifetimeYears = 100

// Advance returns t moved forward by one billing period.
func (d Duration) Advance(t time.Time) time.Time {
	switch d {
	case DurationYearly:
		return t.AddDate(1, 0, 0)
	case DurationLifetime:
		return t.AddDate(lifetimeYears, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// Pricing is the price of a (role, plan, duration) combination in major currency units.
type Pricing struct {
	Price         int64 `json:"price" yaml:"price"`
	OriginalPrice int64 `json:"originalPrice" yaml:"originalPrice"`
	Discount      int   `json:"discount" yaml:"discount"` // percent
}

// Unlimited is the limit value meaning "no cap".
const Unlimited = -1

// PlanLimits are the usage caps of a plan.
type PlanLimits struct {
	MaxGigs         int `json:"maxGigs" yaml:"maxGigs" bson:"maxGigs"`
	MaxApplications int `json:"maxApplications" yaml:"maxApplications" bson:"maxApplications"`
}

// Allows reports whether a counter at used may be incremented under limit.
func Allows(limit, used int) bool {
	return limit == Unlimited || used < limit
}
