package incentive

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY SELECTOR - Which version is in force on a date
// =============================================================================

// PolicyReader is the read half of the store the selector needs.
type PolicyReader interface {
	FindActiveAsOf(ctx context.Context, key DomainKey, asOf Date) (*Policy, error)
}

// Selector picks the policy applicable to a DomainKey on a date, falling back
// to the injected DefaultProvider when nothing stored matches.
type Selector struct {
	Store    PolicyReader
	Defaults DefaultProvider
	Domains  DomainRegistry

	// Today is the clock used when no as-of date is given.
	Today func() Date
}

// Select returns the stored policy with IsActive, From <= asOf and
// (To nil or To >= asOf); the latest From wins. With no match it returns the
// built-in default with IsDefault set. A nil asOf means today.
func (s *Selector) Select(ctx context.Context, key DomainKey, asOf *Date) (Policy, error) {
	key = key.Normalize()
	if err := ValidateKey(s.Domains, key); err != nil {
		return Policy{}, err
	}

	day := s.today()
	if asOf != nil && !asOf.IsZero() {
		day = *asOf
	}

	if s.Store != nil {
		p, err := s.Store.FindActiveAsOf(ctx, key, day)
		if err != nil {
			return Policy{}, fmt.Errorf("select policy %s as of %s: %w", key, day, err)
		}
		if p != nil {
			return *p, nil
		}
	}
	return s.fallback(key), nil
}

func (s *Selector) fallback(key DomainKey) Policy {
	if s.Defaults != nil {
		if p, ok := s.Defaults.Default(key); ok {
			p.Key = key
			p.IsDefault = true
			p.IsActive = true
			return p
		}
	}
	// Last resort so selection never fails for a valid key.
	return Policy{
		ID:          PolicyID("default:" + key.String()),
		Key:         key,
		Name:        "Built-in default (" + key.String() + ")",
		IsActive:    true,
		BaseAmount:  decimal.Zero,
		SplitPolicy: SplitEqual,
		IsDefault:   true,
	}
}

func (s *Selector) today() Date {
	if s.Today != nil {
		return s.Today()
	}
	return Today()
}

// ValidateKey checks the domain is known and the sub-key is accepted by it.
func ValidateKey(domains DomainRegistry, key DomainKey) error {
	if key.Domain == "" {
		return NewValidationError("domain", "is required")
	}
	if domains == nil {
		return nil
	}
	d, err := domains.For(key.Domain)
	if err != nil {
		return NewValidationError("domain", "%v", err)
	}
	if err := d.ValidateSubKey(key.SubKey); err != nil {
		return NewValidationError("sub_key", "%v", err)
	}
	return nil
}
