/*
Package domains implements incentive.PolicyDomain for each incentive family.

PURPOSE:
  A domain decides which sub-keys are legal, how a contributor's role turns
  into a share (multiplier or percentage), and the role multipliers used when
  a policy leaves them out.

  Domain               Sub-keys                                   Share mode
  ipr                  patent copyright trademark design          percentage
  research_paper       journal review letter editorial            multiplier
  book                 authored edited                            multiplier
  book_chapter         (none)                                     multiplier
  conference           paper poster keynote proceedings           multiplier
  grant                <category>:<type>                          percentage
                       category = government industry international internal
                       type     = research consultancy infrastructure travel

SEE ALSO:
  - defaults.go: built-in policies per key
  - incentive/calculator.go: consumer of ShareMode and RoleMultiplier
*/
package domains

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/campus-rims/incentive-engine/incentive"
)

// Registry resolves domains with an explicit switch.
type Registry struct{}

// NewRegistry returns the registry of built-in domains.
func NewRegistry() Registry { return Registry{} }

// For returns the implementation for d or a validation error wrapping
// incentive.ErrUnknownDomain.
func (Registry) For(d incentive.Domain) (incentive.PolicyDomain, error) {
	switch d {
	case incentive.DomainIPR:
		return ipr, nil
	case incentive.DomainResearchPaper:
		return researchPaper, nil
	case incentive.DomainBook:
		return book, nil
	case incentive.DomainBookChapter:
		return bookChapter, nil
	case incentive.DomainConference:
		return conference, nil
	case incentive.DomainGrant:
		return grant{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", incentive.ErrUnknownDomain, d)
	}
}

// All returns every domain implementation in display order.
func (r Registry) All() []incentive.PolicyDomain {
	out := make([]incentive.PolicyDomain, 0, len(incentive.AllDomains))
	for _, d := range incentive.AllDomains {
		pd, _ := r.For(d)
		out = append(out, pd)
	}
	return out
}

// =============================================================================
// FIXED SUB-KEY DOMAINS
// =============================================================================

type fixed struct {
	domain      incentive.Domain
	subKeys     []string
	mode        incentive.ShareMode
	multipliers map[incentive.Role]decimal.Decimal
}

func (f fixed) Domain() incentive.Domain       { return f.domain }
func (f fixed) ShareMode() incentive.ShareMode { return f.mode }

func (f fixed) SubKeys() []string {
	return append([]string(nil), f.subKeys...)
}

func (f fixed) ValidateSubKey(subKey string) error {
	if len(f.subKeys) == 0 {
		if subKey != "" {
			return fmt.Errorf("%s takes no sub_key", f.domain)
		}
		return nil
	}
	for _, k := range f.subKeys {
		if k == subKey {
			return nil
		}
	}
	if subKey == "" {
		return fmt.Errorf("is required for %s (one of %s)", f.domain, strings.Join(f.subKeys, ", "))
	}
	return fmt.Errorf("%q is not a %s sub_key (one of %s)", subKey, f.domain, strings.Join(f.subKeys, ", "))
}

func (f fixed) RoleMultiplier(role incentive.Role) (decimal.Decimal, bool) {
	m, ok := f.multipliers[role]
	return m, ok
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	ipr = fixed{
		domain:  incentive.DomainIPR,
		subKeys: []string{"patent", "copyright", "trademark", "design"},
		mode:    incentive.ShareRolePercentage,
		multipliers: map[incentive.Role]decimal.Decimal{
			incentive.RolePrimaryInventor: dec("1"),
			incentive.RoleInventor:        dec("0.5"),
		},
	}

	researchPaper = fixed{
		domain:  incentive.DomainResearchPaper,
		subKeys: []string{"journal", "review", "letter", "editorial"},
		mode:    incentive.ShareRoleMultiplier,
		multipliers: map[incentive.Role]decimal.Decimal{
			incentive.RoleFirstAuthor:         dec("1"),
			incentive.RoleCorrespondingAuthor: dec("1"),
			incentive.RoleSeniorAuthor:        dec("0.8"),
			incentive.RoleCoAuthor:            dec("0.5"),
		},
	}

	book = fixed{
		domain:  incentive.DomainBook,
		subKeys: []string{"authored", "edited"},
		mode:    incentive.ShareRoleMultiplier,
		multipliers: map[incentive.Role]decimal.Decimal{
			incentive.RoleFirstAuthor: dec("1"),
			incentive.RoleEditor:      dec("0.7"),
			incentive.RoleCoAuthor:    dec("0.5"),
		},
	}

	bookChapter = fixed{
		domain: incentive.DomainBookChapter,
		mode:   incentive.ShareRoleMultiplier,
		multipliers: map[incentive.Role]decimal.Decimal{
			incentive.RoleFirstAuthor: dec("1"),
			incentive.RoleCoAuthor:    dec("0.5"),
			incentive.RoleEditor:      dec("0.5"),
		},
	}

	conference = fixed{
		domain:  incentive.DomainConference,
		subKeys: []string{"paper", "poster", "keynote", "proceedings"},
		mode:    incentive.ShareRoleMultiplier,
		multipliers: map[incentive.Role]decimal.Decimal{
			incentive.RoleFirstAuthor:         dec("1"),
			incentive.RoleCorrespondingAuthor: dec("1"),
			incentive.RolePresenter:           dec("0.8"),
			incentive.RoleCoAuthor:            dec("0.5"),
		},
	}
)

// =============================================================================
// GRANT - composite "<category>:<type>" sub-keys
// =============================================================================

var (
	grantCategories = []string{"government", "industry", "international", "internal"}
	grantTypes      = []string{"research", "consultancy", "infrastructure", "travel"}

	grantMultipliers = map[incentive.Role]decimal.Decimal{
		incentive.RolePrincipalInvestigator: dec("1"),
		incentive.RoleCoInvestigator:        dec("0.5"),
	}
)

type grant struct{}

func (grant) Domain() incentive.Domain       { return incentive.DomainGrant }
func (grant) ShareMode() incentive.ShareMode { return incentive.ShareRolePercentage }

func (grant) SubKeys() []string {
	keys := make([]string, 0, len(grantCategories)*len(grantTypes))
	for _, c := range grantCategories {
		for _, t := range grantTypes {
			keys = append(keys, c+":"+t)
		}
	}
	sort.Strings(keys)
	return keys
}

func (grant) ValidateSubKey(subKey string) error {
	category, typ, ok := strings.Cut(subKey, ":")
	if !ok {
		return fmt.Errorf("%q must be <category>:<type>", subKey)
	}
	if !contains(grantCategories, category) {
		return fmt.Errorf("unknown grant category %q (one of %s)", category, strings.Join(grantCategories, ", "))
	}
	if !contains(grantTypes, typ) {
		return fmt.Errorf("unknown grant type %q (one of %s)", typ, strings.Join(grantTypes, ", "))
	}
	return nil
}

func (grant) RoleMultiplier(role incentive.Role) (decimal.Decimal, bool) {
	m, ok := grantMultipliers[role]
	return m, ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
