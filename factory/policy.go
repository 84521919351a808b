/*
Package factory converts between wire documents and incentive.Policy.

PURPOSE:
  Policies arrive as JSON from the admin API, live as JSON in the sqlite
  config column, and ship as YAML in the built-in defaults table. All three
  use the same document shape so a policy can move between them unchanged.

DOCUMENT SHAPE:
  {
    "domain": "research_paper",
    "sub_key": "journal",
    "policy_name": "Journal incentives 2024",
    "effective_from": "2024-01-01",
    "effective_to": "2024-12-31",
    "base_incentive_amount": 10000,
    "base_points": 10,
    "split_policy": "author_role_based",
    "distribution_method": "author_role_based",
    "role_multipliers": {"first_author": 1, "co_author": 0.5},
    "quartile_bonuses": {"Q1": {"amount": 5000, "points": 5}},
    "impact_factor_tiers": [
      {"min": 0, "max": 2, "bonus": {"amount": 1000, "points": 1}},
      {"min": 2, "bonus": {"amount": 3000, "points": 3}}
    ]
  }

  The rule fields (everything but identity, window and bookkeeping) form
  RulesJSON, which is what the sqlite store keeps in config_json.

USAGE:
  f := factory.NewPolicyFactory()
  p, err := f.ParsePolicy(body)   // JSON bytes -> incentive.Policy
  doc := f.ToJSON(p, today)      // incentive.Policy -> PolicyJSON

SEE ALSO:
  - incentive/types.go: Policy definition
  - domains/defaults.yaml: built-in policies in this shape
*/
package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/campus-rims/incentive-engine/incentive"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// PolicyJSON is the document form of a policy. Read-only fields (status,
// version, audit stamps) are filled by ToJSON and ignored by FromJSON.
type PolicyJSON struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Domain        string `json:"domain" yaml:"domain"`
	SubKey        string `json:"sub_key,omitempty" yaml:"sub_key,omitempty"`
	Name          string `json:"policy_name" yaml:"policy_name"`
	IsActive      *bool  `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	EffectiveFrom string `json:"effective_from" yaml:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`

	RulesJSON `yaml:",inline"`

	Status    string     `json:"status,omitempty" yaml:"-"`
	IsDefault bool       `json:"is_default,omitempty" yaml:"-"`
	Version   int        `json:"version,omitempty" yaml:"-"`
	CreatedBy string     `json:"created_by,omitempty" yaml:"-"`
	UpdatedBy string     `json:"updated_by,omitempty" yaml:"-"`
	CreatedAt *time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// RulesJSON holds the amounts, split rules and bonus tables of a policy.
type RulesJSON struct {
	BaseAmount         decimal.Decimal  `json:"base_incentive_amount" yaml:"base_incentive_amount"`
	BasePoints         int              `json:"base_points" yaml:"base_points"`
	SplitPolicy        string           `json:"split_policy" yaml:"split_policy"`
	DistributionMethod string           `json:"distribution_method,omitempty" yaml:"distribution_method,omitempty"`
	PrimaryShare       *decimal.Decimal `json:"primary_share,omitempty" yaml:"primary_share,omitempty"`

	RoleMultipliers     map[string]decimal.Decimal `json:"role_multipliers,omitempty" yaml:"role_multipliers,omitempty"`
	RolePercentages     []RolePercentageJSON       `json:"role_percentages,omitempty" yaml:"role_percentages,omitempty"`
	PositionPercentages []PositionPercentageJSON   `json:"position_percentages,omitempty" yaml:"position_percentages,omitempty"`

	IndexingBonuses    map[string]BonusJSON `json:"indexing_bonuses,omitempty" yaml:"indexing_bonuses,omitempty"`
	QuartileBonuses    map[string]BonusJSON `json:"quartile_bonuses,omitempty" yaml:"quartile_bonuses,omitempty"`
	SJRTiers           []TierJSON           `json:"sjr_tiers,omitempty" yaml:"sjr_tiers,omitempty"`
	NAASTiers          []TierJSON           `json:"naas_tiers,omitempty" yaml:"naas_tiers,omitempty"`
	ImpactFactorTiers  []TierJSON           `json:"impact_factor_tiers,omitempty" yaml:"impact_factor_tiers,omitempty"`
	InternationalBonus *BonusJSON           `json:"international_bonus,omitempty" yaml:"international_bonus,omitempty"`
	ConsortiumBonus    *BonusJSON           `json:"consortium_bonus,omitempty" yaml:"consortium_bonus,omitempty"`
	BestPaperBonus     *BonusJSON           `json:"best_paper_award_bonus,omitempty" yaml:"best_paper_award_bonus,omitempty"`
}

type BonusJSON struct {
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
	Points int             `json:"points" yaml:"points"`
}

// TierJSON is a [min, max) range. Max omitted means unbounded.
type TierJSON struct {
	Min   decimal.Decimal  `json:"min" yaml:"min"`
	Max   *decimal.Decimal `json:"max,omitempty" yaml:"max,omitempty"`
	Bonus BonusJSON        `json:"bonus" yaml:"bonus"`
}

type RolePercentageJSON struct {
	Role       string          `json:"role" yaml:"role"`
	Percentage decimal.Decimal `json:"percentage" yaml:"percentage"`
}

type PositionPercentageJSON struct {
	Position   int             `json:"position" yaml:"position"`
	Percentage decimal.Decimal `json:"percentage" yaml:"percentage"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts documents to policies and back.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy decodes a JSON document into a Policy.
func (f *PolicyFactory) ParsePolicy(data []byte) (incentive.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return incentive.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts a document to a Policy. Malformed dates come back as a
// ValidationError; rule checks are left to incentive.Validate. IsActive
// defaults to true when omitted.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (incentive.Policy, error) {
	ve := &incentive.ValidationError{}

	p := incentive.Policy{
		ID:       incentive.PolicyID(pj.ID),
		Key:      incentive.DomainKey{Domain: incentive.Domain(pj.Domain), SubKey: pj.SubKey}.Normalize(),
		Name:     strings.TrimSpace(pj.Name),
		IsActive: pj.IsActive == nil || *pj.IsActive,
	}

	if pj.EffectiveFrom != "" {
		d, err := incentive.ParseDate(pj.EffectiveFrom)
		if err != nil {
			ve.Add("effective_from", "%v", err)
		}
		p.EffectiveFrom = d
	}
	if pj.EffectiveTo != "" {
		d, err := incentive.ParseDate(pj.EffectiveTo)
		if err != nil {
			ve.Add("effective_to", "%v", err)
		} else {
			p.EffectiveTo = &d
		}
	}
	if err := ve.OrNil(); err != nil {
		return incentive.Policy{}, err
	}

	f.applyRules(&p, pj.RulesJSON)
	return p, nil
}

// ToJSON converts a Policy to its document form. today drives the computed
// status field.
func (f *PolicyFactory) ToJSON(p incentive.Policy, today incentive.Date) PolicyJSON {
	active := p.IsActive
	pj := PolicyJSON{
		ID:            string(p.ID),
		Domain:        string(p.Key.Domain),
		SubKey:        p.Key.SubKey,
		Name:          p.Name,
		IsActive:      &active,
		RulesJSON:     f.Rules(p),
		Status:        string(p.Status(today)),
		IsDefault:     p.IsDefault,
		Version:       p.Version,
		CreatedBy:     p.CreatedBy,
		UpdatedBy:     p.UpdatedBy,
	}
	if !p.EffectiveFrom.IsZero() {
		pj.EffectiveFrom = p.EffectiveFrom.String()
	}
	if p.EffectiveTo != nil {
		pj.EffectiveTo = p.EffectiveTo.String()
	}
	if !p.CreatedAt.IsZero() {
		t := p.CreatedAt.UTC()
		pj.CreatedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt.UTC()
		pj.UpdatedAt = &t
	}
	return pj
}

// =============================================================================
// RULES
// =============================================================================

// Rules extracts the rule fields of a policy.
func (f *PolicyFactory) Rules(p incentive.Policy) RulesJSON {
	r := RulesJSON{
		BaseAmount:         p.BaseAmount,
		BasePoints:         p.BasePoints,
		SplitPolicy:        string(p.SplitPolicy),
		DistributionMethod: string(p.DistributionMethod),
		SJRTiers:           tiersToJSON(p.SJRTiers),
		NAASTiers:          tiersToJSON(p.NAASTiers),
		ImpactFactorTiers:  tiersToJSON(p.ImpactFactorTiers),
		InternationalBonus: bonusPtr(p.InternationalBonus),
		ConsortiumBonus:    bonusPtr(p.ConsortiumBonus),
		BestPaperBonus:     bonusPtr(p.BestPaperBonus),
	}
	if !p.PrimaryShare.IsZero() {
		s := p.PrimaryShare
		r.PrimaryShare = &s
	}
	if len(p.RoleMultipliers) > 0 {
		r.RoleMultipliers = make(map[string]decimal.Decimal, len(p.RoleMultipliers))
		for role, m := range p.RoleMultipliers {
			r.RoleMultipliers[string(role)] = m
		}
	}
	for _, rp := range p.RolePercentages {
		r.RolePercentages = append(r.RolePercentages, RolePercentageJSON{Role: string(rp.Role), Percentage: rp.Percentage})
	}
	for _, pp := range p.PositionPercentages {
		r.PositionPercentages = append(r.PositionPercentages, PositionPercentageJSON(pp))
	}
	if len(p.IndexingBonuses) > 0 {
		r.IndexingBonuses = make(map[string]BonusJSON, len(p.IndexingBonuses))
		for cat, b := range p.IndexingBonuses {
			r.IndexingBonuses[cat] = BonusJSON(b)
		}
	}
	if len(p.QuartileBonuses) > 0 {
		r.QuartileBonuses = make(map[string]BonusJSON, len(p.QuartileBonuses))
		for q, b := range p.QuartileBonuses {
			r.QuartileBonuses[string(q)] = BonusJSON(b)
		}
	}
	return r
}

// ApplyRules copies rule fields onto p, replacing what was there.
func (f *PolicyFactory) ApplyRules(p *incentive.Policy, r RulesJSON) {
	f.applyRules(p, r)
}

// MarshalRules encodes the rule fields for storage.
func (f *PolicyFactory) MarshalRules(p incentive.Policy) ([]byte, error) {
	return json.Marshal(f.Rules(p))
}

// UnmarshalRules decodes stored rule fields onto p.
func (f *PolicyFactory) UnmarshalRules(p *incentive.Policy, data []byte) error {
	var r RulesJSON
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("failed to parse policy rules: %w", err)
	}
	f.applyRules(p, r)
	return nil
}

func (f *PolicyFactory) applyRules(p *incentive.Policy, r RulesJSON) {
	p.BaseAmount = r.BaseAmount
	p.BasePoints = r.BasePoints
	p.SplitPolicy = incentive.SplitPolicy(strings.ToLower(strings.TrimSpace(r.SplitPolicy)))
	if p.SplitPolicy == "" {
		p.SplitPolicy = incentive.SplitEqual
	}
	p.DistributionMethod = incentive.DistributionMethod(strings.ToLower(strings.TrimSpace(r.DistributionMethod)))
	p.PrimaryShare = decimal.Zero
	if r.PrimaryShare != nil {
		p.PrimaryShare = *r.PrimaryShare
	}

	p.RoleMultipliers = nil
	if len(r.RoleMultipliers) > 0 {
		p.RoleMultipliers = make(map[incentive.Role]decimal.Decimal, len(r.RoleMultipliers))
		for role, m := range r.RoleMultipliers {
			p.RoleMultipliers[parseRole(role)] = m
		}
	}
	p.RolePercentages = nil
	for _, rp := range r.RolePercentages {
		p.RolePercentages = append(p.RolePercentages, incentive.RolePercentage{Role: parseRole(rp.Role), Percentage: rp.Percentage})
	}
	p.PositionPercentages = nil
	for _, pp := range r.PositionPercentages {
		p.PositionPercentages = append(p.PositionPercentages, incentive.PositionPercentage(pp))
	}

	p.IndexingBonuses = nil
	if len(r.IndexingBonuses) > 0 {
		p.IndexingBonuses = make(map[string]incentive.Bonus, len(r.IndexingBonuses))
		for cat, b := range r.IndexingBonuses {
			p.IndexingBonuses[strings.TrimSpace(cat)] = incentive.Bonus(b)
		}
	}
	p.QuartileBonuses = nil
	if len(r.QuartileBonuses) > 0 {
		p.QuartileBonuses = make(map[incentive.Quartile]incentive.Bonus, len(r.QuartileBonuses))
		for q, b := range r.QuartileBonuses {
			p.QuartileBonuses[incentive.Quartile(strings.ToUpper(strings.TrimSpace(q)))] = incentive.Bonus(b)
		}
	}

	p.SJRTiers = tiersFromJSON(r.SJRTiers)
	p.NAASTiers = tiersFromJSON(r.NAASTiers)
	p.ImpactFactorTiers = tiersFromJSON(r.ImpactFactorTiers)
	p.InternationalBonus = bonusValue(r.InternationalBonus)
	p.ConsortiumBonus = bonusValue(r.ConsortiumBonus)
	p.BestPaperBonus = bonusValue(r.BestPaperBonus)
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRole(s string) incentive.Role {
	return incentive.Role(strings.ToLower(strings.TrimSpace(s)))
}

func tiersFromJSON(in []TierJSON) []incentive.RangeTier {
	if len(in) == 0 {
		return nil
	}
	out := make([]incentive.RangeTier, len(in))
	for i, t := range in {
		out[i] = incentive.RangeTier{Min: t.Min, Bonus: incentive.Bonus(t.Bonus)}
		if t.Max != nil {
			m := *t.Max
			out[i].Max = &m
		}
	}
	return out
}

func tiersToJSON(in []incentive.RangeTier) []TierJSON {
	if len(in) == 0 {
		return nil
	}
	out := make([]TierJSON, len(in))
	for i, t := range in {
		out[i] = TierJSON{Min: t.Min, Bonus: BonusJSON(t.Bonus)}
		if t.Max != nil {
			m := *t.Max
			out[i].Max = &m
		}
	}
	return out
}

func bonusPtr(b incentive.Bonus) *BonusJSON {
	if b.IsZero() {
		return nil
	}
	bj := BonusJSON(b)
	return &bj
}

func bonusValue(b *BonusJSON) incentive.Bonus {
	if b == nil {
		return incentive.Bonus{Amount: decimal.Zero}
	}
	return incentive.Bonus(*b)
}
