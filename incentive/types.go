/*
Package incentive provides the research incentive policy engine.

PURPOSE:
  Faculty and students file IPR applications and research contributions
  (papers, books, chapters, conference papers, grants). Each contribution
  earns a monetary incentive and points, paid per contributor according to a
  date-versioned policy. This package owns the parts with real logic:
  choosing the policy in force on a date, keeping policy versions from
  overlapping, and turning a contribution into per-contributor shares.

KEY CONCEPTS IN THIS FILE (types.go):
  - Domain / DomainKey: which family of policies a record belongs to
  - Policy: one dated version of the incentive rules for a DomainKey
  - Bonus / RangeTier: graded additions (quartile, SJR, NAAS, impact factor)
  - Contribution / Contributor: the read-only input to a calculation

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, points are whole numbers
  2. Under-allocate: every division floors, remainders are never paid out
  3. Newest write wins: overlapping versions are healed, never rejected
  4. Calculation is pure: no store access, safe to run concurrently

SEE ALSO:
  - overlap.go: version overlap resolution
  - selector.go: as-of policy selection with built-in defaults
  - calculator.go: amount/points computation
  - split.go: contributor split strategies
*/
package incentive

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DOMAINS
// =============================================================================

// Domain identifies an incentive family. Dispatch on Domain is always an
// explicit switch; there is no string-keyed model lookup.
type Domain string

const (
	DomainIPR           Domain = "ipr"
	DomainResearchPaper Domain = "research_paper"
	DomainBook          Domain = "book"
	DomainBookChapter   Domain = "book_chapter"
	DomainConference    Domain = "conference"
	DomainGrant         Domain = "grant"
)

// AllDomains lists every supported domain in display order.
var AllDomains = []Domain{
	DomainIPR, DomainResearchPaper, DomainBook, DomainBookChapter, DomainConference, DomainGrant,
}

// ShareMode is how a contributor's role turns into a share of the award.
type ShareMode string

const (
	// ShareRoleMultiplier scales the award by a per-role factor in [0,1].
	ShareRoleMultiplier ShareMode = "role_multiplier"
	// ShareRolePercentage gives a role a percentage of the award, divided
	// among everyone holding that role.
	ShareRolePercentage ShareMode = "role_percentage"
)

// DomainKey is the (domain, sub-type) pair a policy applies to.
// Examples: {ipr, patent}, {grant, government:research}, {book_chapter, ""}.
type DomainKey struct {
	Domain Domain `json:"domain"`
	SubKey string `json:"sub_key,omitempty"`
}

func (k DomainKey) String() string {
	if k.SubKey == "" {
		return string(k.Domain)
	}
	return string(k.Domain) + "/" + k.SubKey
}

// Normalize lower-cases and trims both parts.
func (k DomainKey) Normalize() DomainKey {
	return DomainKey{
		Domain: Domain(strings.ToLower(strings.TrimSpace(string(k.Domain)))),
		SubKey: strings.ToLower(strings.TrimSpace(k.SubKey)),
	}
}

// PolicyDomain is implemented once per Domain (see package domains).
type PolicyDomain interface {
	Domain() Domain

	// SubKeys lists the accepted sub-keys. Empty means the domain takes none.
	SubKeys() []string

	// ValidateSubKey rejects sub-keys the domain does not know.
	ValidateSubKey(subKey string) error

	// ShareMode decides how roles map to shares in the calculator.
	ShareMode() ShareMode

	// RoleMultiplier is the domain's default factor for a role, used when the
	// policy does not override it. ok=false means the role is unknown.
	RoleMultiplier(role Role) (m decimal.Decimal, ok bool)
}

// DomainRegistry resolves a Domain to its implementation.
type DomainRegistry interface {
	For(d Domain) (PolicyDomain, error)
}

// DefaultProvider supplies the built-in policy used when nothing is
// configured for a key. It is injected, never a package global.
type DefaultProvider interface {
	Default(key DomainKey) (Policy, bool)
}

// =============================================================================
// POLICY
// =============================================================================

type PolicyID string

// SplitPolicy selects how a total is divided among contributors.
type SplitPolicy string

const (
	SplitEqual           SplitPolicy = "equal"
	SplitPercentageBased SplitPolicy = "percentage_based"
	SplitAuthorRoleBased SplitPolicy = "author_role_based"
	SplitPrimaryInventor SplitPolicy = "primary_inventor"
	SplitWeighted        SplitPolicy = "weighted"
)

// Valid reports whether s is a known split policy.
func (s SplitPolicy) Valid() bool {
	switch s {
	case SplitEqual, SplitPercentageBased, SplitAuthorRoleBased, SplitPrimaryInventor, SplitWeighted:
		return true
	}
	return false
}

// DistributionMethod refines author_role_based splits for research policies.
type DistributionMethod string

const (
	DistributionAuthorRole     DistributionMethod = "author_role_based"
	DistributionAuthorPosition DistributionMethod = "author_position_based"
)

func (m DistributionMethod) Valid() bool {
	return m == "" || m == DistributionAuthorRole || m == DistributionAuthorPosition
}

// Bonus is an amount/points pair added on top of the base award.
type Bonus struct {
	Amount decimal.Decimal `json:"amount"`
	Points int             `json:"points"`
}

func (b Bonus) IsZero() bool { return b.Amount.IsZero() && b.Points == 0 }

// RangeTier awards Bonus when Min <= value < Max. Max nil is unbounded.
type RangeTier struct {
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max,omitempty"`
	Bonus Bonus            `json:"bonus"`
}

// Matches reports whether v falls in the tier.
func (t RangeTier) Matches(v decimal.Decimal) bool {
	if v.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || v.LessThan(*t.Max)
}

// RolePercentage assigns a percentage of the total to a role.
type RolePercentage struct {
	Role       Role            `json:"role"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PositionPercentage assigns a percentage of the total to an author position.
type PositionPercentage struct {
	Position   int             `json:"position"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Policy is one dated version of the incentive rules for a DomainKey.
type Policy struct {
	ID       PolicyID
	Key      DomainKey
	Name     string
	IsActive bool

	EffectiveFrom Date
	EffectiveTo   *Date // nil = open-ended

	BaseAmount decimal.Decimal
	BasePoints int

	SplitPolicy        SplitPolicy
	DistributionMethod DistributionMethod
	PrimaryShare       decimal.Decimal // percent of total for the primary contributor

	RoleMultipliers     map[Role]decimal.Decimal
	RolePercentages     []RolePercentage
	PositionPercentages []PositionPercentage

	IndexingBonuses    map[string]Bonus
	QuartileBonuses    map[Quartile]Bonus
	SJRTiers           []RangeTier
	NAASTiers          []RangeTier
	ImpactFactorTiers  []RangeTier
	InternationalBonus Bonus
	ConsortiumBonus    Bonus // per consortium organisation
	BestPaperBonus     Bonus

	// IsDefault marks a built-in policy returned when nothing is configured.
	IsDefault bool
	Version   int

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window returns the policy's effective range.
func (p Policy) Window() Window { return Window{From: p.EffectiveFrom, To: p.EffectiveTo} }

// Clone returns a deep copy so adjustments never alias the caller's maps.
func (p Policy) Clone() Policy {
	c := p
	if p.EffectiveTo != nil {
		to := *p.EffectiveTo
		c.EffectiveTo = &to
	}
	if p.RoleMultipliers != nil {
		c.RoleMultipliers = make(map[Role]decimal.Decimal, len(p.RoleMultipliers))
		for k, v := range p.RoleMultipliers {
			c.RoleMultipliers[k] = v
		}
	}
	if p.IndexingBonuses != nil {
		c.IndexingBonuses = make(map[string]Bonus, len(p.IndexingBonuses))
		for k, v := range p.IndexingBonuses {
			c.IndexingBonuses[k] = v
		}
	}
	if p.QuartileBonuses != nil {
		c.QuartileBonuses = make(map[Quartile]Bonus, len(p.QuartileBonuses))
		for k, v := range p.QuartileBonuses {
			c.QuartileBonuses[k] = v
		}
	}
	c.RolePercentages = append([]RolePercentage(nil), p.RolePercentages...)
	c.PositionPercentages = append([]PositionPercentage(nil), p.PositionPercentages...)
	c.SJRTiers = append([]RangeTier(nil), p.SJRTiers...)
	c.NAASTiers = append([]RangeTier(nil), p.NAASTiers...)
	c.ImpactFactorTiers = append([]RangeTier(nil), p.ImpactFactorTiers...)
	return c
}

// PolicyStatus is the computed lifecycle state of a policy on a given day.
type PolicyStatus string

const (
	StatusScheduled PolicyStatus = "scheduled"
	StatusCurrent   PolicyStatus = "current"
	StatusExpired   PolicyStatus = "expired"
	StatusInactive  PolicyStatus = "inactive"
)

// Status derives the lifecycle state from IsActive and the window.
// "current" is effectiveFrom <= today and (effectiveTo nil or >= today).
// IsActive stays a stored flag that only writes clear; whether a policy is
// in force today is this computed status, so expired versions remain
// selectable for earlier as-of dates.
func (p Policy) Status(today Date) PolicyStatus {
	switch {
	case !p.IsActive:
		return StatusInactive
	case today.Before(p.EffectiveFrom):
		return StatusScheduled
	case p.EffectiveTo != nil && today.After(*p.EffectiveTo):
		return StatusExpired
	default:
		return StatusCurrent
	}
}

// PolicyRef identifies the policy a calculation used.
type PolicyRef struct {
	ID        PolicyID `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

func (p Policy) Ref() PolicyRef { return PolicyRef{ID: p.ID, Name: p.Name, IsDefault: p.IsDefault} }

// =============================================================================
// CONTRIBUTION - Read-only calculation input
// =============================================================================

// Role is a contributor's role on a contribution.
type Role string

const (
	RoleFirstAuthor           Role = "first_author"
	RoleCorrespondingAuthor   Role = "corresponding_author"
	RoleCoAuthor              Role = "co_author"
	RoleSeniorAuthor          Role = "senior_author"
	RoleEditor                Role = "editor"
	RolePresenter             Role = "presenter"
	RoleInventor              Role = "inventor"
	RolePrimaryInventor       Role = "primary_inventor"
	RolePrincipalInvestigator Role = "principal_investigator"
	RoleCoInvestigator        Role = "co_investigator"
)

// Category separates university-affiliated contributors from outsiders.
type Category string

const (
	CategoryInternal Category = "internal"
	CategoryExternal Category = "external"
)

type ProjectType string

const (
	ProjectNational      ProjectType = "national"
	ProjectInternational ProjectType = "international"
)

type Quartile string

const (
	Q1 Quartile = "Q1"
	Q2 Quartile = "Q2"
	Q3 Quartile = "Q3"
	Q4 Quartile = "Q4"
)

// Contributor is one person attached to a contribution.
type Contributor struct {
	ID        string
	Name      string
	Role      Role
	Category  Category
	Position  int // 1-based author order; 0 = unranked
	IsPrimary bool
}

// IsInternal reports whether the contributor may receive an incentive.
func (c Contributor) IsInternal() bool { return c.Category == CategoryInternal }

// Contribution is the filing being rewarded. The engine never mutates it.
type Contribution struct {
	Key                DomainKey
	ProjectType        ProjectType
	Quartile           Quartile
	ImpactFactor       *decimal.Decimal
	SJR                *decimal.Decimal
	NAASRating         *decimal.Decimal
	IndexingCategories []string
	ConsortiumOrgs     int
	BestPaperAward     bool
	Contributors       []Contributor
}

// InternalCount is the number of contributors eligible for a share.
func (c Contribution) InternalCount() int {
	n := 0
	for _, ct := range c.Contributors {
		if ct.IsInternal() {
			n++
		}
	}
	return n
}

// InternalCountInRole counts internal contributors holding role.
func (c Contribution) InternalCountInRole(role Role) int {
	n := 0
	for _, ct := range c.Contributors {
		if ct.IsInternal() && ct.Role == role {
			n++
		}
	}
	return n
}
