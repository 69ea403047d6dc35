// Package catalog holds the static plan tables: pricing, usage limits and
// feature lists keyed by role, plan tier and billing duration. Lookups are
// pure and never touch storage.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gigmarket/backend/internal/domain"
)

//go:embed plans.yaml
var plansYAML []byte

type planEntry struct {
	Name     string                    `yaml:"name"`
	Limits   domain.PlanLimits         `yaml:"limits"`
	Features []string                  `yaml:"features"`
	Pricing  map[string]domain.Pricing `yaml:"pricing"`
}

type table map[domain.Role]map[domain.PlanType]planEntry

var plans = mustParse(plansYAML)

func mustParse(data []byte) table {
	t, err := parse(data)
	if err != nil {
		panic(fmt.Errorf("catalog: %w", err))
	}
	return t
}

func parse(data []byte) (table, error) {
	var raw map[string]map[string]planEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}

	t := make(table, len(raw))
	for role, tiers := range raw {
		r := domain.Role(role)
		if !r.Subscribable() {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		t[r] = make(map[domain.PlanType]planEntry, len(tiers))
		for tier, entry := range tiers {
			t[r][domain.PlanType(tier)] = entry
		}
	}
	return t, nil
}

// Pricing returns the price of a paid plan. It reports false for the free
// tier and for any combination missing from the table; callers must treat
// that as an invalid configuration, never as zero cost.
func Pricing(role domain.Role, planType domain.PlanType, duration domain.Duration) (domain.Pricing, bool) {
	entry, ok := plans[role][planType]
	if !ok {
		return domain.Pricing{}, false
	}
	p, ok := entry.Pricing[string(duration)]
	if !ok || p.Price <= 0 {
		return domain.Pricing{}, false
	}
	return p, true
}

// Limits returns the usage caps of a plan.
func Limits(role domain.Role, planType domain.PlanType) (domain.PlanLimits, error) {
	entry, ok := plans[role][planType]
	if !ok {
		return domain.PlanLimits{}, fmt.Errorf("no limits configured for role %q plan %q", role, planType)
	}
	return entry.Limits, nil
}

// UpgradeOption is a higher tier the user can move to.
type UpgradeOption struct {
	PlanType domain.PlanType                    `json:"planType"`
	Name     string                             `json:"name"`
	Pricing  map[domain.Duration]domain.Pricing `json:"pricing"`
}

// UpgradeOptions lists the tiers above current. It returns nil on the top tier.
func UpgradeOptions(role domain.Role, current domain.PlanType) []UpgradeOption {
	idx := tierIndex(current)
	if idx < 0 {
		return nil
	}

	var out []UpgradeOption
	for _, tier := range domain.PlanTiers[idx+1:] {
		entry, ok := plans[role][tier]
		if !ok {
			continue
		}
		out = append(out, UpgradeOption{
			PlanType: tier,
			Name:     entry.Name,
			Pricing:  pricingOf(entry),
		})
	}
	return out
}

// PlanInfo describes one tier for display.
type PlanInfo struct {
	PlanType domain.PlanType                    `json:"planType"`
	Name     string                             `json:"name"`
	Limits   domain.PlanLimits                  `json:"limits"`
	Features []string                           `json:"features"`
	Pricing  map[domain.Duration]domain.Pricing `json:"pricing"`
}

// FeatureComparison is one row of the plan comparison table.
type FeatureComparison struct {
	Feature string                     `json:"feature"`
	Values  map[domain.PlanType]string `json:"values"`
}

// PlansResponse is the public catalog for one role.
type PlansResponse struct {
	Role       domain.Role         `json:"role"`
	Plans      []PlanInfo          `json:"plans"`
	Comparison []FeatureComparison `json:"comparison"`
}

// Plans returns every tier of role in ascending order with a comparison table.
func Plans(role domain.Role) (*PlansResponse, error) {
	tiers, ok := plans[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	resp := &PlansResponse{Role: role}
	for _, tier := range domain.PlanTiers {
		entry, ok := tiers[tier]
		if !ok {
			continue
		}
		resp.Plans = append(resp.Plans, PlanInfo{
			PlanType: tier,
			Name:     entry.Name,
			Limits:   entry.Limits,
			Features: entry.Features,
			Pricing:  pricingOf(entry),
		})
	}
	resp.Comparison = comparison(resp.Plans)
	return resp, nil
}

func comparison(infos []PlanInfo) []FeatureComparison {
	rows := []FeatureComparison{
		{Feature: "Gig posts", Values: map[domain.PlanType]string{}},
		{Feature: "Applications", Values: map[domain.PlanType]string{}},
		{Feature: "Monthly price", Values: map[domain.PlanType]string{}},
	}
	for _, p := range infos {
		rows[0].Values[p.PlanType] = limitLabel(p.Limits.MaxGigs)
		rows[1].Values[p.PlanType] = limitLabel(p.Limits.MaxApplications)
		if price, ok := p.Pricing[domain.DurationMonthly]; ok {
			rows[2].Values[p.PlanType] = fmt.Sprintf("%d", price.Price)
		} else {
			rows[2].Values[p.PlanType] = "0"
		}
	}
	return rows
}

func limitLabel(n int) string {
	if n == domain.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func pricingOf(entry planEntry) map[domain.Duration]domain.Pricing {
	if len(entry.Pricing) == 0 {
		return nil
	}
	out := make(map[domain.Duration]domain.Pricing, len(entry.Pricing))
	for d, p := range entry.Pricing {
		out[domain.Duration(d)] = p
	}
	return out
}

func tierIndex(p domain.PlanType) int {
	for i, t := range domain.PlanTiers {
		if t == p {
			return i
		}
	}
	return -1
}
