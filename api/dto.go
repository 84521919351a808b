package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/campus-rims/incentive-engine/factory"
	"github.com/campus-rims/incentive-engine/incentive"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// PolicyRequest is the body of POST/PUT /api/policies. Structural checks
// live in the tags; rule checks run in incentive.Validate.
type PolicyRequest struct {
	Domain        string `json:"domain" validate:"required"`
	SubKey        string `json:"sub_key"`
	Name          string `json:"policy_name" validate:"required,max=200"`
	IsActive      *bool  `json:"is_active"`
	EffectiveFrom string `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo   string `json:"effective_to" validate:"omitempty,datetime=2006-01-02"`

	BaseAmount         decimal.Decimal  `json:"base_incentive_amount"`
	BasePoints         int              `json:"base_points" validate:"gte=0"`
	SplitPolicy        string           `json:"split_policy" validate:"omitempty,oneof=equal percentage_based author_role_based primary_inventor weighted"`
	DistributionMethod string           `json:"distribution_method" validate:"omitempty,oneof=author_role_based author_position_based"`
	PrimaryShare       *decimal.Decimal `json:"primary_share"`

	RoleMultipliers     map[string]decimal.Decimal       `json:"role_multipliers"`
	RolePercentages     []factory.RolePercentageJSON     `json:"role_percentages" validate:"dive"`
	PositionPercentages []factory.PositionPercentageJSON `json:"position_percentages" validate:"dive"`

	IndexingBonuses    map[string]factory.BonusJSON `json:"indexing_bonuses"`
	QuartileBonuses    map[string]factory.BonusJSON `json:"quartile_bonuses"`
	SJRTiers           []factory.TierJSON           `json:"sjr_tiers"`
	NAASTiers          []factory.TierJSON           `json:"naas_tiers"`
	ImpactFactorTiers  []factory.TierJSON           `json:"impact_factor_tiers"`
	InternationalBonus *factory.BonusJSON           `json:"international_bonus"`
	ConsortiumBonus    *factory.BonusJSON           `json:"consortium_bonus"`
	BestPaperBonus     *factory.BonusJSON           `json:"best_paper_award_bonus"`
}

// Document converts the request to the factory's document form.
func (r PolicyRequest) Document() factory.PolicyJSON {
	return factory.PolicyJSON{
		Domain:        r.Domain,
		SubKey:        r.SubKey,
		Name:          r.Name,
		IsActive:      r.IsActive,
		EffectiveFrom: r.EffectiveFrom,
		EffectiveTo:   r.EffectiveTo,
		RulesJSON: factory.RulesJSON{
			BaseAmount:          r.BaseAmount,
			BasePoints:          r.BasePoints,
			SplitPolicy:         r.SplitPolicy,
			DistributionMethod:  r.DistributionMethod,
			PrimaryShare:        r.PrimaryShare,
			RoleMultipliers:     r.RoleMultipliers,
			RolePercentages:     r.RolePercentages,
			PositionPercentages: r.PositionPercentages,
			IndexingBonuses:     r.IndexingBonuses,
			QuartileBonuses:     r.QuartileBonuses,
			SJRTiers:            r.SJRTiers,
			NAASTiers:           r.NAASTiers,
			ImpactFactorTiers:   r.ImpactFactorTiers,
			InternationalBonus:  r.InternationalBonus,
			ConsortiumBonus:     r.ConsortiumBonus,
			BestPaperBonus:      r.BestPaperBonus,
		},
	}
}

// ContributorDTO is one contributor in a calculation request.
type ContributorDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role" validate:"required"`
	Category  string `json:"category" validate:"required,oneof=internal external"`
	Position  int    `json:"position" validate:"gte=0"`
	IsPrimary bool   `json:"is_primary"`
}

// CalculateRequest is the body of POST /api/incentives/calculate.
type CalculateRequest struct {
	Domain string `json:"domain" validate:"required"`
	SubKey string `json:"sub_key"`
	AsOf   string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`

	ProjectType        string           `json:"project_type" validate:"omitempty,oneof=national international"`
	Quartile           string           `json:"quartile" validate:"omitempty,oneof=Q1 Q2 Q3 Q4 q1 q2 q3 q4"`
	ImpactFactor       *decimal.Decimal `json:"impact_factor"`
	SJR                *decimal.Decimal `json:"sjr"`
	NAASRating         *decimal.Decimal `json:"naas_rating"`
	IndexingCategories []string         `json:"indexing_categories"`
	ConsortiumOrgs     int              `json:"number_of_consortium_orgs" validate:"gte=0"`
	BestPaperAward     bool             `json:"best_paper_award"`
	Contributors       []ContributorDTO `json:"contributors" validate:"dive"`
}

// PreviewRequest asks what one contributor with Role and Category would get.
type PreviewRequest struct {
	CalculateRequest
	Role     string `json:"role" validate:"required"`
	Category string `json:"category" validate:"required,oneof=internal external"`
}

// Key returns the normalized DomainKey of the request.
func (r CalculateRequest) Key() incentive.DomainKey {
	return incentive.DomainKey{Domain: incentive.Domain(r.Domain), SubKey: r.SubKey}.Normalize()
}

// Contribution converts the request to calculation input.
func (r CalculateRequest) Contribution() incentive.Contribution {
	con := incentive.Contribution{
		Key:                r.Key(),
		ProjectType:        incentive.ProjectType(r.ProjectType),
		Quartile:           incentive.Quartile(r.Quartile),
		ImpactFactor:       r.ImpactFactor,
		SJR:                r.SJR,
		NAASRating:         r.NAASRating,
		IndexingCategories: r.IndexingCategories,
		ConsortiumOrgs:     r.ConsortiumOrgs,
		BestPaperAward:     r.BestPaperAward,
		Contributors:       make([]incentive.Contributor, len(r.Contributors)),
	}
	for i, c := range r.Contributors {
		con.Contributors[i] = incentive.Contributor{
			ID:        c.ID,
			Name:      c.Name,
			Role:      incentive.Role(c.Role),
			Category:  incentive.Category(c.Category),
			Position:  c.Position,
			IsPrimary: c.IsPrimary,
		}
	}
	return con
}

// =============================================================================
// RESPONSE DTOs
// =============================================================================

type AdjustmentDTO struct {
	PolicyID string             `json:"policy_id"`
	Action   string             `json:"action"`
	Before   factory.PolicyJSON `json:"before"`
	After    factory.PolicyJSON `json:"after"`
}

// WriteResponse is returned by policy create and update.
type WriteResponse struct {
	Policy      factory.PolicyJSON `json:"policy"`
	Adjustments []AdjustmentDTO    `json:"adjustments"`
}

type ShareDTO struct {
	ContributorID string          `json:"contributor_id,omitempty"`
	Name          string          `json:"name,omitempty"`
	Role          string          `json:"role"`
	Category      string          `json:"category"`
	Position      int             `json:"position,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Points        int             `json:"points"`
	Basis         string          `json:"basis"`
}

type CalculateResponse struct {
	Policy    incentive.PolicyRef `json:"policy"`
	AsOf      string              `json:"as_of"`
	Strategy  string              `json:"strategy"`
	Total     incentive.Award     `json:"total"`
	Breakdown []incentive.Entry   `json:"breakdown"`
	Shares    []ShareDTO          `json:"shares"`
}

type PreviewResponse struct {
	Policy incentive.PolicyRef `json:"policy"`
	Result incentive.Result    `json:"result"`
}

type DomainDTO struct {
	Domain    string               `json:"domain"`
	SubKeys   []string             `json:"sub_keys"`
	ShareMode string               `json:"share_mode"`
	Defaults  []factory.PolicyJSON `json:"defaults"`
}

type AuditEventDTO struct {
	ID       string              `json:"id"`
	Action   string              `json:"action"`
	Domain   string              `json:"domain"`
	SubKey   string              `json:"sub_key,omitempty"`
	PolicyID string              `json:"policy_id"`
	ActorID  string              `json:"actor_id"`
	At       time.Time           `json:"at"`
	Before   *factory.PolicyJSON `json:"before,omitempty"`
	After    *factory.PolicyJSON `json:"after,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details string                 `json:"details,omitempty"`
	Fields  []incentive.FieldError `json:"fields,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
}

// ScenarioLoadResponse lists each write in the order it was applied.
type ScenarioLoadResponse struct {
	Scenario string          `json:"scenario"`
	Writes   []WriteResponse `json:"writes"`
}
