/*
calculator.go - Incentive amount and points for a contribution

ALGORITHM (accumulative; order only affects the breakdown):
  1. External contributors receive zero. Checked first, no exceptions.
  2. Start from the policy base amount and base points.
  3. Scale by the contributor's share: a role multiplier for research, book,
     chapter and conference domains, a role percentage for grant and IPR.
  4. Add the indexing, quartile, SJR and NAAS bonuses.
  5. Add the first impact-factor tier with Min <= IF < Max.
  6. Add the international bonus for international projects.
  7. Add the consortium bonus once per consortium organisation.
  8. Add the best-paper bonus when awarded.
  9. Floor amount to whole currency units and points to whole points.

  Every bonus in 4-8 is scaled by the same share as the base. The share is
  applied once to the summed award, multiplying before dividing, and the
  result is floored. A bonus never gets split a second time on its own.

FALLBACK OVER FAILURE:
  A tier value that matches nothing contributes zero. The miss is noted in
  the breakdown as a CalculationError message; Calculate never fails.
*/
package incentive

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// DefaultRoleMultiplier applies to roles neither the policy nor the
	// domain knows.
	DefaultRoleMultiplier = decimal.RequireFromString("0.3")

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Entry is one line of a calculation breakdown, before flooring.
type Entry struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Points decimal.Decimal `json:"points"`
	Note   string          `json:"note,omitempty"`
}

// Result is a floored amount/points pair plus how it was reached.
type Result struct {
	Amount    decimal.Decimal `json:"amount"`
	Points    int             `json:"points"`
	Share     decimal.Decimal `json:"share"`
	Breakdown []Entry         `json:"breakdown,omitempty"`
}

// Calculator turns a policy and a contribution into amounts. It holds no
// state besides the domain registry and is safe for concurrent use.
type Calculator struct {
	Domains DomainRegistry
}

// NewCalculator creates a calculator using the given domain registry.
func NewCalculator(domains DomainRegistry) *Calculator {
	return &Calculator{Domains: domains}
}

// Calculate returns the award for one contributor with the given role and
// category.
func (c *Calculator) Calculate(p Policy, con Contribution, role Role, category Category) Result {
	if category != CategoryInternal {
		return Result{
			Amount:    decimal.Zero,
			Share:     decimal.Zero,
			Breakdown: []Entry{{Label: "external", Amount: decimal.Zero, Points: decimal.Zero, Note: "external contributors receive no incentive"}},
		}
	}
	return c.accumulate(p, con, c.shareRatio(p, con, role))
}

// Total returns the whole award for the contribution (share 1), the pool
// that split strategies divide.
func (c *Calculator) Total(p Policy, con Contribution) Result {
	return c.accumulate(p, con, whole)
}

// Share returns the fraction of the award a contributor in role receives
// under the policy's domain share mode. It is for display only; amounts are
// computed from the exact ratio.
func (c *Calculator) Share(p Policy, con Contribution, role Role) decimal.Decimal {
	return c.shareRatio(p, con, role).value()
}

func (c *Calculator) shareRatio(p Policy, con Contribution, role Role) ratio {
	if c.shareMode(p.Key.Domain) == ShareRolePercentage {
		return c.percentageShare(p, con, role)
	}
	return ratio{num: c.RoleMultiplier(p, role), den: one}
}

// RoleMultiplier resolves a role's factor: policy override, then domain
// default, then DefaultRoleMultiplier. The result is clamped to [0,1].
func (c *Calculator) RoleMultiplier(p Policy, role Role) decimal.Decimal {
	if m, ok := p.RoleMultipliers[role]; ok {
		return clampUnit(m)
	}
	if c.Domains != nil {
		if d, err := c.Domains.For(p.Key.Domain); err == nil {
			if m, ok := d.RoleMultiplier(role); ok {
				return clampUnit(m)
			}
		}
	}
	return DefaultRoleMultiplier
}

// percentageShare is role% / 100 / internal count in role, or 1 / internal
// count without a table.
func (c *Calculator) percentageShare(p Policy, con Contribution, role Role) ratio {
	if len(p.RolePercentages) == 0 {
		n := con.InternalCount()
		if n == 0 {
			return whole
		}
		return ratio{num: one, den: decimal.NewFromInt(int64(n))}
	}

	count := con.InternalCountInRole(role)
	if count == 0 {
		count = 1
	}
	divisor := decimal.NewFromInt(int64(count))

	for _, rp := range p.RolePercentages {
		if rp.Role == role {
			return ratio{num: rp.Percentage, den: hundred.Mul(divisor)}
		}
	}
	return ratio{num: DefaultRoleMultiplier, den: divisor}
}

func (c *Calculator) shareMode(d Domain) ShareMode {
	if c.Domains != nil {
		if pd, err := c.Domains.For(d); err == nil {
			return pd.ShareMode()
		}
	}
	switch d {
	case DomainGrant, DomainIPR:
		return ShareRolePercentage
	default:
		return ShareRoleMultiplier
	}
}

// =============================================================================
// ACCUMULATION
// =============================================================================

// ratio is a share held as num/den. Applying it multiplies first and divides
// once, so 1/3 of 30000 is exactly 10000.
type ratio struct {
	num, den decimal.Decimal
}

var whole = ratio{num: one, den: one}

func (r ratio) of(x decimal.Decimal) decimal.Decimal {
	return x.Mul(r.num).Div(r.den)
}

func (r ratio) value() decimal.Decimal {
	return r.num.Div(r.den)
}

// accumulator sums the unscaled award; the share is applied to the sum.
type accumulator struct {
	share     ratio
	amount    decimal.Decimal
	points    decimal.Decimal
	breakdown []Entry
}

func (a *accumulator) add(label string, b Bonus, times int64) {
	amt := b.Amount.Mul(decimal.NewFromInt(times))
	pts := decimal.NewFromInt(int64(b.Points) * times)
	a.amount = a.amount.Add(amt)
	a.points = a.points.Add(pts)
	a.breakdown = append(a.breakdown, Entry{Label: label, Amount: a.share.of(amt), Points: a.share.of(pts)})
}

func (a *accumulator) miss(err *CalculationError) {
	a.breakdown = append(a.breakdown, Entry{Label: err.Table, Amount: decimal.Zero, Points: decimal.Zero, Note: err.Error()})
}

func (c *Calculator) accumulate(p Policy, con Contribution, share ratio) Result {
	acc := &accumulator{share: share, amount: decimal.Zero, points: decimal.Zero}

	acc.add("base", Bonus{Amount: p.BaseAmount, Points: p.BasePoints}, 1)

	if label, b, ok := bestIndexingBonus(p.IndexingBonuses, con.IndexingCategories); ok {
		acc.add("indexing:"+label, b, 1)
	} else if len(p.IndexingBonuses) > 0 && len(con.IndexingCategories) > 0 {
		acc.miss(&CalculationError{Table: "indexing", Value: strings.Join(con.IndexingCategories, ",")})
	}

	if con.Quartile != "" && len(p.QuartileBonuses) > 0 {
		q := Quartile(strings.ToUpper(string(con.Quartile)))
		if b, ok := p.QuartileBonuses[q]; ok {
			acc.add("quartile:"+string(q), b, 1)
		} else {
			acc.miss(&CalculationError{Table: "quartile", Value: string(con.Quartile)})
		}
	}

	c.addTier(acc, "sjr", p.SJRTiers, con.SJR)
	c.addTier(acc, "naas", p.NAASTiers, con.NAASRating)
	c.addTier(acc, "impact_factor", p.ImpactFactorTiers, con.ImpactFactor)

	if con.ProjectType == ProjectInternational && !p.InternationalBonus.IsZero() {
		acc.add("international", p.InternationalBonus, 1)
	}
	if con.ConsortiumOrgs > 0 && !p.ConsortiumBonus.IsZero() {
		acc.add("consortium", p.ConsortiumBonus, int64(con.ConsortiumOrgs))
	}
	if con.BestPaperAward && !p.BestPaperBonus.IsZero() {
		acc.add("best_paper", p.BestPaperBonus, 1)
	}

	return Result{
		Amount:    floorAmount(share.of(acc.amount)),
		Points:    floorPoints(share.of(acc.points)),
		Share:     share.value(),
		Breakdown: acc.breakdown,
	}
}

func (c *Calculator) addTier(acc *accumulator, table string, tiers []RangeTier, value *decimal.Decimal) {
	if value == nil || len(tiers) == 0 {
		return
	}
	if t, ok := MatchTier(tiers, *value); ok {
		acc.add(table, t.Bonus, 1)
		return
	}
	acc.miss(&CalculationError{Table: table, Value: value.String()})
}

// MatchTier scans tiers in ascending Min order and returns the first with
// Min <= v < Max (Max nil = unbounded).
func MatchTier(tiers []RangeTier, v decimal.Decimal) (RangeTier, bool) {
	sorted := append([]RangeTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min.LessThan(sorted[j].Min) })
	for _, t := range sorted {
		if t.Matches(v) {
			return t, true
		}
	}
	return RangeTier{}, false
}

// bestIndexingBonus picks the highest-amount bonus among the contribution's
// indexing categories. Ties go to more points, then the earlier category.
func bestIndexingBonus(table map[string]Bonus, categories []string) (string, Bonus, bool) {
	if len(table) == 0 {
		return "", Bonus{}, false
	}
	lookup := make(map[string]string, len(table))
	for k := range table {
		lookup[strings.ToLower(k)] = k
	}

	var (
		bestLabel string
		best      Bonus
		found     bool
	)
	for _, cat := range categories {
		k, ok := lookup[strings.ToLower(strings.TrimSpace(cat))]
		if !ok {
			continue
		}
		b := table[k]
		if !found || b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.Points > best.Points) {
			bestLabel, best, found = k, b, true
		}
	}
	return bestLabel, best, found
}

func clampUnit(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(one) {
		return one
	}
	return d
}

func floorAmount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Floor()
}

func floorPoints(d decimal.Decimal) int {
	if d.IsNegative() {
		return 0
	}
	return int(d.Floor().IntPart())
}
