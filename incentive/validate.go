package incentive

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// PercentageTolerance is how far a percentage table may drift from 100.
var PercentageTolerance = decimal.RequireFromString("0.01")

// Validate checks a policy before it is written. All problems are collected
// into one ValidationError; nothing is persisted when it returns non-nil.
func Validate(p Policy, domains DomainRegistry) error {
	ve := &ValidationError{}

	if err := ValidateKey(domains, p.Key); err != nil {
		var kv *ValidationError
		if errors.As(err, &kv) {
			ve.Fields = append(ve.Fields, kv.Fields...)
		}
	}

	if strings.TrimSpace(p.Name) == "" {
		ve.Add("policy_name", "is required")
	}
	if p.EffectiveFrom.IsZero() {
		ve.Add("effective_from", "is required")
	} else if !p.Window().Valid() {
		ve.Add("effective_to", "must not be before effective_from (%s)", p.EffectiveFrom)
	}
	if p.BaseAmount.IsNegative() {
		ve.Add("base_incentive_amount", "must be >= 0")
	}
	if p.BasePoints < 0 {
		ve.Add("base_points", "must be >= 0")
	}
	if !p.SplitPolicy.Valid() {
		ve.Add("split_policy", "must be one of equal, percentage_based, author_role_based, primary_inventor, weighted")
	}
	if !p.DistributionMethod.Valid() {
		ve.Add("distribution_method", "must be author_role_based or author_position_based")
	}

	for role, m := range p.RoleMultipliers {
		if m.IsNegative() || m.GreaterThan(one) {
			ve.Add("role_multipliers."+string(role), "must be between 0 and 1")
		}
	}

	switch p.SplitPolicy {
	case SplitPercentageBased:
		if len(p.RolePercentages) == 0 {
			ve.Add("role_percentages", "is required for percentage_based split")
		} else if sum := sumRolePercentages(p.RolePercentages); !withinTolerance(sum) {
			ve.Add("role_percentages", "must sum to 100 (got %s)", sum)
		}
	case SplitPrimaryInventor:
		if !p.PrimaryShare.IsZero() && (p.PrimaryShare.IsNegative() || p.PrimaryShare.GreaterThan(hundred)) {
			ve.Add("primary_share", "must be between 0 and 100")
		}
	case SplitWeighted:
		validatePositions(ve, p.PositionPercentages, true)
	case SplitAuthorRoleBased:
		if p.DistributionMethod == DistributionAuthorPosition {
			validatePositions(ve, p.PositionPercentages, true)
		}
	}
	if p.SplitPolicy != SplitPercentageBased {
		for _, rp := range p.RolePercentages {
			if rp.Percentage.IsNegative() || rp.Percentage.GreaterThan(hundred) {
				ve.Add("role_percentages."+string(rp.Role), "must be between 0 and 100")
			}
		}
	}

	validateTiers(ve, "sjr_tiers", p.SJRTiers)
	validateTiers(ve, "naas_tiers", p.NAASTiers)
	validateTiers(ve, "impact_factor_tiers", p.ImpactFactorTiers)

	for cat, b := range p.IndexingBonuses {
		validateBonus(ve, "indexing_bonuses."+cat, b)
	}
	for q, b := range p.QuartileBonuses {
		switch q {
		case Q1, Q2, Q3, Q4:
		default:
			ve.Add("quartile_bonuses."+string(q), "must be Q1..Q4")
		}
		validateBonus(ve, "quartile_bonuses."+string(q), b)
	}
	validateBonus(ve, "international_bonus", p.InternationalBonus)
	validateBonus(ve, "consortium_bonus", p.ConsortiumBonus)
	validateBonus(ve, "best_paper_award_bonus", p.BestPaperBonus)

	return ve.OrNil()
}

func validatePositions(ve *ValidationError, table []PositionPercentage, required bool) {
	if len(table) == 0 {
		if required {
			ve.Add("position_percentages", "is required for position-based split")
		}
		return
	}
	seen := make(map[int]bool, len(table))
	sum := decimal.Zero
	for _, pp := range table {
		if pp.Position < 1 || pp.Position > MaxRankedPosition {
			ve.Add("position_percentages", "position %d outside 1..%d", pp.Position, MaxRankedPosition)
		}
		if seen[pp.Position] {
			ve.Add("position_percentages", "position %d listed twice", pp.Position)
		}
		seen[pp.Position] = true
		sum = sum.Add(pp.Percentage)
	}
	if sum.Sub(hundred).GreaterThan(PercentageTolerance) {
		ve.Add("position_percentages", "must not sum above 100 (got %s)", sum)
	}
}

func validateTiers(ve *ValidationError, field string, tiers []RangeTier) {
	for i, t := range tiers {
		if t.Max != nil && !t.Max.GreaterThan(t.Min) {
			ve.Add(field, "tier %d: max must be greater than min", i)
		}
		validateBonus(ve, field, t.Bonus)
	}
}

func validateBonus(ve *ValidationError, field string, b Bonus) {
	if b.Amount.IsNegative() || b.Points < 0 {
		ve.Add(field, "bonus must not be negative")
	}
}

func sumRolePercentages(table []RolePercentage) decimal.Decimal {
	sum := decimal.Zero
	for _, rp := range table {
		sum = sum.Add(rp.Percentage)
	}
	return sum
}

func withinTolerance(sum decimal.Decimal) bool {
	return sum.Sub(hundred).Abs().LessThanOrEqual(PercentageTolerance)
}
