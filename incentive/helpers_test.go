package incentive_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/campus-rims/incentive-engine/incentive"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	journal = incentive.DomainKey{Domain: incentive.DomainResearchPaper, SubKey: "journal"}
	patent  = incentive.DomainKey{Domain: incentive.DomainIPR, SubKey: "patent"}
	grantGR = incentive.DomainKey{Domain: incentive.DomainGrant, SubKey: "government:research"}
)

func d(s string) incentive.Date { return incentive.MustParseDate(s) }

func dp(s string) *incentive.Date {
	x := d(s)
	return &x
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	x := dec(s)
	return &x
}

// window builds an active journal policy; to "" means open-ended.
func window(id, from, to string) incentive.Policy {
	p := incentive.Policy{
		ID:            incentive.PolicyID(id),
		Key:           journal,
		Name:          "policy " + id,
		IsActive:      true,
		EffectiveFrom: d(from),
		BaseAmount:    decimal.Zero,
		SplitPolicy:   incentive.SplitEqual,
	}
	if to != "" {
		p.EffectiveTo = dp(to)
	}
	return p
}

func internal(id string, role incentive.Role) incentive.Contributor {
	return incentive.Contributor{ID: id, Role: role, Category: incentive.CategoryInternal}
}

func external(id string, role incentive.Role) incentive.Contributor {
	return incentive.Contributor{ID: id, Role: role, Category: incentive.CategoryExternal}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

// fieldNames lists the fields of a ValidationError, or nil for other errors.
func fieldNames(err error) []string {
	var ve *incentive.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	names := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		names[i] = f.Field
	}
	return names
}
