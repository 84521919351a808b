package incentive

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SPLIT STRATEGIES - Divide a total award among contributors
// =============================================================================
//
// Every strategy floors each share. The sum of shares therefore never
// exceeds the total; whatever integer division leaves over is not paid out.
// External contributors get a zero share and are left out of every
// denominator, so they never dilute the internal pool.

// MaxRankedPosition is the last author position that can earn a
// position-based share. Positions beyond it always get 0%.
const MaxRankedPosition = 5

// Award is a floored amount/points pair.
type Award struct {
	Amount decimal.Decimal `json:"amount"`
	Points int             `json:"points"`
}

// Share is one contributor's part of an award.
type Share struct {
	Contributor Contributor
	Amount      decimal.Decimal
	Points      int
	Basis       string
}

// SplitStrategy divides a total among contributors. The returned slice is
// parallel to contributors.
type SplitStrategy interface {
	Name() string
	Split(total Award, contributors []Contributor) []Share
}

// StrategyFor picks the split strategy a policy asks for.
func (c *Calculator) StrategyFor(p Policy) SplitStrategy {
	switch p.SplitPolicy {
	case SplitPercentageBased:
		return PercentageSplit{Table: p.RolePercentages}
	case SplitPrimaryInventor:
		return PrimaryInventorSplit{PrimaryShare: p.PrimaryShare}
	case SplitWeighted:
		return PositionSplit{Table: p.PositionPercentages}
	case SplitAuthorRoleBased:
		if p.DistributionMethod == DistributionAuthorPosition {
			return PositionSplit{Table: p.PositionPercentages}
		}
		return RoleMultiplierSplit{Multiplier: func(r Role) decimal.Decimal { return c.RoleMultiplier(p, r) }}
	default:
		return EqualSplit{}
	}
}

// Distribute computes the policy total for a contribution and splits it.
func (c *Calculator) Distribute(p Policy, con Contribution) (Result, []Share) {
	total := c.Total(p, con)
	shares := c.StrategyFor(p).Split(Award{Amount: total.Amount, Points: total.Points}, con.Contributors)
	return total, shares
}

// =============================================================================
// EQUAL
// =============================================================================

// EqualSplit gives every internal contributor floor(total / internalCount).
type EqualSplit struct{}

func (EqualSplit) Name() string { return string(SplitEqual) }

func (EqualSplit) Split(total Award, contributors []Contributor) []Share {
	n := countInternal(contributors)
	shares := zeroShares(contributors, "equal")
	if n == 0 {
		return shares
	}
	amt := total.Amount.Div(decimal.NewFromInt(int64(n))).Floor()
	pts := total.Points / n
	for i, c := range contributors {
		if c.IsInternal() {
			shares[i].Amount = amt
			shares[i].Points = pts
		}
	}
	return shares
}

// =============================================================================
// PERCENTAGE (role table)
// =============================================================================

// PercentageSplit gives each role its table percentage of the total, shared
// equally by the internal contributors holding that role.
type PercentageSplit struct {
	Table []RolePercentage
}

func (PercentageSplit) Name() string { return string(SplitPercentageBased) }

func (s PercentageSplit) Split(total Award, contributors []Contributor) []Share {
	shares := zeroShares(contributors, "role_percentage")
	pct := make(map[Role]decimal.Decimal, len(s.Table))
	for _, rp := range s.Table {
		pct[rp.Role] = pct[rp.Role].Add(rp.Percentage)
	}
	inRole := make(map[Role]int)
	for _, c := range contributors {
		if c.IsInternal() {
			inRole[c.Role]++
		}
	}
	for i, c := range contributors {
		p, ok := pct[c.Role]
		if !c.IsInternal() || !ok {
			continue
		}
		shares[i].Amount, shares[i].Points = portion(total, p, inRole[c.Role])
	}
	return shares
}

// =============================================================================
// POSITION (ranked author table)
// =============================================================================

// PositionSplit gives author position k the table percentage for k.
// Positions above MaxRankedPosition, and unranked contributors, get 0%.
// Contributors sharing a position share its percentage.
type PositionSplit struct {
	Table []PositionPercentage
}

func (PositionSplit) Name() string { return "position_based" }

func (s PositionSplit) Split(total Award, contributors []Contributor) []Share {
	shares := zeroShares(contributors, "position")
	pct := make(map[int]decimal.Decimal, len(s.Table))
	for _, pp := range s.Table {
		if pp.Position >= 1 && pp.Position <= MaxRankedPosition {
			pct[pp.Position] = pct[pp.Position].Add(pp.Percentage)
		}
	}
	atPosition := make(map[int]int)
	for _, c := range contributors {
		if c.IsInternal() {
			atPosition[c.Position]++
		}
	}
	for i, c := range contributors {
		p, ok := pct[c.Position]
		if !c.IsInternal() || !ok {
			continue
		}
		shares[i].Amount, shares[i].Points = portion(total, p, atPosition[c.Position])
	}
	return shares
}

// =============================================================================
// PRIMARY INVENTOR
// =============================================================================

// DefaultPrimaryShare is used when a primary_inventor policy has no share.
var DefaultPrimaryShare = decimal.NewFromInt(50)

// PrimaryInventorSplit gives the primary contributor PrimaryShare percent of
// the total and splits the rest equally among the other internal
// contributors. A sole internal contributor receives the whole total.
type PrimaryInventorSplit struct {
	PrimaryShare decimal.Decimal
}

func (PrimaryInventorSplit) Name() string { return string(SplitPrimaryInventor) }

func (s PrimaryInventorSplit) Split(total Award, contributors []Contributor) []Share {
	shares := zeroShares(contributors, "primary_inventor")
	n := countInternal(contributors)
	if n == 0 {
		return shares
	}
	primary := primaryIndex(contributors)
	if n == 1 {
		shares[primary].Amount = total.Amount.Floor()
		shares[primary].Points = total.Points
		shares[primary].Basis = "primary"
		return shares
	}

	share := s.PrimaryShare
	if share.IsZero() {
		share = DefaultPrimaryShare
	}
	share = decimal.Min(decimal.Max(share, decimal.Zero), hundred)

	primaryAmt := total.Amount.Mul(share).Div(hundred)
	primaryPts := decimal.NewFromInt(int64(total.Points)).Mul(share).Div(hundred)
	shares[primary].Amount = primaryAmt.Floor()
	shares[primary].Points = floorPoints(primaryPts)
	shares[primary].Basis = "primary"

	rest := decimal.NewFromInt(int64(n - 1))
	restAmt := total.Amount.Sub(primaryAmt).Div(rest).Floor()
	restPts := floorPoints(decimal.NewFromInt(int64(total.Points)).Sub(primaryPts).Div(rest))
	for i, c := range contributors {
		if i == primary || !c.IsInternal() {
			continue
		}
		shares[i].Amount = restAmt
		shares[i].Points = restPts
	}
	return shares
}

// primaryIndex returns the internal contributor flagged IsPrimary, else the
// first internal primary inventor, else the first internal contributor.
// Callers guarantee at least one internal contributor.
func primaryIndex(contributors []Contributor) int {
	first := -1
	byRole := -1
	for i, c := range contributors {
		if !c.IsInternal() {
			continue
		}
		if c.IsPrimary {
			return i
		}
		if byRole < 0 && c.Role == RolePrimaryInventor {
			byRole = i
		}
		if first < 0 {
			first = i
		}
	}
	if byRole >= 0 {
		return byRole
	}
	return first
}

// =============================================================================
// ROLE MULTIPLIER
// =============================================================================

// RoleMultiplierSplit gives each internal contributor total × multiplier.
// When the multipliers of everyone involved add up to more than 1 they are
// scaled down proportionally so the total is never exceeded.
type RoleMultiplierSplit struct {
	Multiplier func(Role) decimal.Decimal
}

func (RoleMultiplierSplit) Name() string { return string(SplitAuthorRoleBased) }

func (s RoleMultiplierSplit) Split(total Award, contributors []Contributor) []Share {
	shares := zeroShares(contributors, "role_multiplier")
	weights := make([]decimal.Decimal, len(contributors))
	sum := decimal.Zero
	for i, c := range contributors {
		if !c.IsInternal() {
			continue
		}
		w := DefaultRoleMultiplier
		if s.Multiplier != nil {
			w = s.Multiplier(c.Role)
		}
		weights[i] = w
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return shares
	}
	norm := one
	if sum.GreaterThan(one) {
		norm = sum
	}
	pts := decimal.NewFromInt(int64(total.Points))
	for i, c := range contributors {
		if !c.IsInternal() {
			continue
		}
		shares[i].Amount = total.Amount.Mul(weights[i]).Div(norm).Floor()
		shares[i].Points = floorPoints(pts.Mul(weights[i]).Div(norm))
	}
	return shares
}

// =============================================================================
// HELPERS
// =============================================================================

func zeroShares(contributors []Contributor, basis string) []Share {
	shares := make([]Share, len(contributors))
	for i, c := range contributors {
		shares[i] = Share{Contributor: c, Amount: decimal.Zero, Basis: basis}
		if !c.IsInternal() {
			shares[i].Basis = "external"
		}
	}
	return shares
}

func countInternal(contributors []Contributor) int {
	n := 0
	for _, c := range contributors {
		if c.IsInternal() {
			n++
		}
	}
	return n
}

// portion is floor(total × pct / 100 / count) for amount and points.
func portion(total Award, pct decimal.Decimal, count int) (decimal.Decimal, int) {
	if count <= 0 {
		return decimal.Zero, 0
	}
	div := hundred.Mul(decimal.NewFromInt(int64(count)))
	amt := total.Amount.Mul(pct).Div(div).Floor()
	pts := floorPoints(decimal.NewFromInt(int64(total.Points)).Mul(pct).Div(div))
	if amt.IsNegative() {
		amt = decimal.Zero
	}
	return amt, pts
}
