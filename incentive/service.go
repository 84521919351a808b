/*
service.go - Policy write path and incentive calculation entry points

PURPOSE:
  Orchestrates the pieces the HTTP layer calls into:
  - CreatePolicy / UpdatePolicy: validate, lock the DomainKey, heal
    overlaps, persist, then audit. Returns the stored policy together with
    every side-effected sibling so callers can show or log them.
  - DeletePolicy: soft (deactivate) or hard delete.
  - SelectPolicy: the version in force on a date, or the built-in default.
  - CalculateIncentive: select, compute the total, split per contributor.

WRITE FLOW:
  1. Validate (ValidationError, nothing written)
  2. WithTx(key): load siblings -> Resolve -> save adjustments -> save policy
  3. After commit: audit every change; audit failures are logged and dropped

Re-running a write with the same input converges to the same stored state,
so no retry logic lives here.
*/
package incentive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campus-rims/incentive-engine/internal/logger"
)

// Service is the engine's public entry point.
type Service struct {
	Store      TxStore
	Audit      AuditSink
	Domains    DomainRegistry
	Selector   *Selector
	Calculator *Calculator
	Resolver   OverlapResolver
	Log        *logger.Logger

	// Clock is the time source for audit stamps and "today".
	Clock func() time.Time
}

// NewService wires a service from its collaborators. audit may be nil.
func NewService(store TxStore, domains DomainRegistry, defaults DefaultProvider, audit AuditSink, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		Store:      store,
		Audit:      audit,
		Domains:    domains,
		Calculator: NewCalculator(domains),
		Log:        log,
		Clock:      time.Now,
	}
	s.Selector = &Selector{
		Store:    store,
		Defaults: defaults,
		Domains:  domains,
		Today:    s.today,
	}
	return s
}

// WriteResult is the stored policy plus the siblings the write adjusted.
type WriteResult struct {
	Policy      Policy
	Adjustments []Adjustment
}

// =============================================================================
// WRITES
// =============================================================================

// CreatePolicy validates and stores a new policy version.
func (s *Service) CreatePolicy(ctx context.Context, p Policy, actorID string) (*WriteResult, error) {
	p.ID = ""
	p.Key = p.Key.Normalize()
	p.IsDefault = false
	if err := Validate(p, s.Domains); err != nil {
		return nil, err
	}

	now := s.now()
	p.Version = 1
	p.CreatedBy, p.UpdatedBy = actorID, actorID
	p.CreatedAt, p.UpdatedAt = now, now

	result, err := s.write(ctx, p, actorID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, AuditEvent{Action: AuditPolicyCreated, Key: p.Key, PolicyID: result.Policy.ID, After: &result.Policy, ActorID: actorID})
	s.recordAdjustments(ctx, result.Adjustments, actorID)
	s.Log.Info("policy created",
		"policy_id", result.Policy.ID,
		"key", p.Key.String(),
		"window", p.Window().String(),
		"adjustments", len(result.Adjustments),
	)
	return result, nil
}

// UpdatePolicy replaces a stored policy. The DomainKey of a policy cannot
// change; create a new policy for a different key instead.
func (s *Service) UpdatePolicy(ctx context.Context, id PolicyID, p Policy, actorID string) (*WriteResult, error) {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	p.ID = id
	p.IsDefault = false
	if p.Key.Domain == "" {
		p.Key = current.Key
	}
	p.Key = p.Key.Normalize()
	if p.Key != current.Key {
		return nil, NewValidationError("domain", "cannot change from %s to %s", current.Key, p.Key)
	}
	if err := Validate(p, s.Domains); err != nil {
		return nil, err
	}

	p.Version = current.Version + 1
	p.CreatedBy, p.CreatedAt = current.CreatedBy, current.CreatedAt
	p.UpdatedBy, p.UpdatedAt = actorID, s.now()

	result, err := s.write(ctx, p, actorID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, AuditEvent{Action: AuditPolicyUpdated, Key: p.Key, PolicyID: id, Before: &current, After: &result.Policy, ActorID: actorID})
	s.recordAdjustments(ctx, result.Adjustments, actorID)
	s.Log.Info("policy updated",
		"policy_id", id,
		"key", p.Key.String(),
		"version", p.Version,
		"adjustments", len(result.Adjustments),
	)
	return result, nil
}

// write runs overlap resolution and persistence under the key lock.
func (s *Service) write(ctx context.Context, p Policy, actorID string) (*WriteResult, error) {
	result := &WriteResult{}
	err := s.Store.WithTx(ctx, p.Key, func(tx PolicyStore) error {
		if p.ID != "" {
			if _, err := tx.Get(ctx, p.ID); err != nil {
				return err
			}
		}

		existing, err := tx.FindAllByDomain(ctx, p.Key)
		if err != nil {
			return fmt.Errorf("load policies for %s: %w", p.Key, err)
		}

		adjustments := s.Resolver.Resolve(p, existing)
		for i := range adjustments {
			after := adjustments[i].After
			after.Version++
			after.UpdatedBy = actorID
			after.UpdatedAt = p.UpdatedAt
			saved, err := tx.Save(ctx, after)
			if err != nil {
				return fmt.Errorf("apply %s to %s: %w", adjustments[i].Action, adjustments[i].PolicyID, err)
			}
			adjustments[i].After = saved
		}

		saved, err := tx.Save(ctx, p)
		if err != nil {
			return err
		}
		result.Policy = saved
		result.Adjustments = adjustments
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePolicy deactivates the policy, or removes it when hard is set.
func (s *Service) DeletePolicy(ctx context.Context, id PolicyID, hard bool, actorID string) error {
	current, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}

	var after *Policy
	err = s.Store.WithTx(ctx, current.Key, func(tx PolicyStore) error {
		if hard {
			return tx.Delete(ctx, id)
		}
		p, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		p.IsActive = false
		p.Version++
		p.UpdatedBy, p.UpdatedAt = actorID, s.now()
		saved, err := tx.Save(ctx, p)
		if err != nil {
			return err
		}
		after = &saved
		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, AuditEvent{Action: AuditPolicyDeleted, Key: current.Key, PolicyID: id, Before: &current, After: after, ActorID: actorID})
	s.Log.Info("policy deleted", "policy_id", id, "key", current.Key.String(), "hard", hard)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// GetPolicy returns a stored policy.
func (s *Service) GetPolicy(ctx context.Context, id PolicyID) (Policy, error) {
	return s.Store.Get(ctx, id)
}

// ListPolicies returns stored policies, optionally for one domain.
func (s *Service) ListPolicies(ctx context.Context, domain Domain) ([]Policy, error) {
	return s.Store.List(ctx, domain)
}

// History returns every version for a key ordered by EffectiveFrom.
func (s *Service) History(ctx context.Context, key DomainKey) ([]Policy, error) {
	key = key.Normalize()
	if err := ValidateKey(s.Domains, key); err != nil {
		return nil, err
	}
	return s.Store.FindAllByDomain(ctx, key)
}

// SelectPolicy returns the policy in force for key on asOf (nil = today).
func (s *Service) SelectPolicy(ctx context.Context, key DomainKey, asOf *Date) (Policy, error) {
	return s.Selector.Select(ctx, key, asOf)
}

// Today is the service's current date.
func (s *Service) Today() Date { return s.today() }

// =============================================================================
// CALCULATION
// =============================================================================

// CalculationResult is the per-contributor outcome of a calculation.
type CalculationResult struct {
	Policy    PolicyRef
	AsOf      Date
	Strategy  string
	Total     Award
	Breakdown []Entry
	Shares    []Share
}

// CalculateIncentive selects the policy for key as of asOf (nil = today),
// computes the contribution's total and splits it per contributor.
func (s *Service) CalculateIncentive(ctx context.Context, key DomainKey, asOf *Date, con Contribution) (*CalculationResult, error) {
	key = key.Normalize()
	day := s.today()
	if asOf != nil && !asOf.IsZero() {
		day = *asOf
	}
	if err := ValidateContribution(con); err != nil {
		return nil, err
	}

	policy, err := s.Selector.Select(ctx, key, &day)
	if err != nil {
		return nil, err
	}
	con.Key = key

	total, shares := s.Calculator.Distribute(policy, con)
	out := &CalculationResult{
		Policy:    policy.Ref(),
		AsOf:      day,
		Strategy:  s.Calculator.StrategyFor(policy).Name(),
		Total:     Award{Amount: total.Amount, Points: total.Points},
		Breakdown: total.Breakdown,
		Shares:    shares,
	}

	s.Log.Debug("incentive calculated",
		"key", key.String(),
		"as_of", day.String(),
		"policy_id", policy.ID,
		"default_policy", policy.IsDefault,
		"total_amount", total.Amount.String(),
		"total_points", total.Points,
	)
	return out, nil
}

// CalculateForContributor returns the award one contributor with role and
// category would receive, without splitting against the others.
func (s *Service) CalculateForContributor(ctx context.Context, key DomainKey, asOf *Date, con Contribution, role Role, category Category) (PolicyRef, Result, error) {
	key = key.Normalize()
	if err := ValidateContribution(con); err != nil {
		return PolicyRef{}, Result{}, err
	}
	policy, err := s.Selector.Select(ctx, key, asOf)
	if err != nil {
		return PolicyRef{}, Result{}, err
	}
	con.Key = key
	return policy.Ref(), s.Calculator.Calculate(policy, con, role, category), nil
}

// ValidateContribution rejects structurally invalid calculation input.
func ValidateContribution(con Contribution) error {
	ve := &ValidationError{}
	if con.ConsortiumOrgs < 0 {
		ve.Add("number_of_consortium_orgs", "must be >= 0")
	}
	switch con.ProjectType {
	case "", ProjectNational, ProjectInternational:
	default:
		ve.Add("project_type", "must be national or international")
	}
	for i, c := range con.Contributors {
		if c.Category != CategoryInternal && c.Category != CategoryExternal {
			ve.Add(fmt.Sprintf("contributors[%d].category", i), "must be internal or external")
		}
		if c.Position < 0 {
			ve.Add(fmt.Sprintf("contributors[%d].position", i), "must be >= 0")
		}
	}
	return ve.OrNil()
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Service) recordAdjustments(ctx context.Context, adjustments []Adjustment, actorID string) {
	for i := range adjustments {
		adj := adjustments[i]
		s.record(ctx, AuditEvent{
			Action:   auditActionFor(adj.Action),
			Key:      adj.After.Key,
			PolicyID: adj.PolicyID,
			Before:   &adj.Before,
			After:    &adj.After,
			ActorID:  actorID,
		})
	}
}

// record sends an event to the audit sink. Failures are logged and dropped.
func (s *Service) record(ctx context.Context, ev AuditEvent) {
	if s.Audit == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = s.now()
	if err := s.Audit.Record(ctx, ev); err != nil {
		s.Log.Warn("audit record failed",
			"action", ev.Action,
			"policy_id", ev.PolicyID,
			"error", err,
		)
	}
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) today() Date { return DateOf(s.now()) }
