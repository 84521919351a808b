/*
overlap.go - Automatic healing of overlapping policy versions

PURPOSE:
  An admin editing policies is never blocked by an overlap. When a policy is
  created or updated, every older active version of the same DomainKey that
  collides with it is adjusted so that no two active windows intersect. The
  newest write always wins.

RULES (candidate P, existing active e, both windows closed day ranges):
  1. P.From > e.From                      -> truncate: e.To = P.From - 1 day
  2. P.From <= e.From and P covers e,
     or e is open-ended                   -> deactivate e, dates untouched
  3. P.From <= e.From, P ends inside e    -> defer: e.From = P.To + 1 day

  Rule 3 is the symmetric counterpart of rule 1 for a candidate that starts
  first but ends inside a finite successor.

  A finite P strictly inside e falls under rule 1: e is truncated and is not
  resumed after P.To, so dates past P.To select the built-in default.

OUTPUT:
  Resolve is pure. It returns the list of Adjustments; the caller persists
  them in the same transaction as P and hands them back for auditing.
*/
package incentive

import "sort"

// AdjustmentAction is what the resolver did to an existing policy.
type AdjustmentAction string

const (
	ActionTruncated   AdjustmentAction = "truncated"
	ActionDeactivated AdjustmentAction = "deactivated"
	ActionDeferred    AdjustmentAction = "deferred"
)

// Adjustment records one side effect of a policy write.
type Adjustment struct {
	PolicyID PolicyID
	Action   AdjustmentAction
	Before   Policy
	After    Policy
}

// OverlapResolver computes the adjustments a candidate policy forces on its
// siblings. The zero value is ready to use.
type OverlapResolver struct{}

// Resolve returns adjustments for every active sibling whose window
// intersects the candidate. Existing policies with the candidate's ID (the
// update target itself) and inactive ones are ignored. Output is ordered by
// the sibling's EffectiveFrom so results are deterministic.
func (OverlapResolver) Resolve(candidate Policy, existing []Policy) []Adjustment {
	if !candidate.IsActive {
		return nil
	}

	siblings := make([]Policy, 0, len(existing))
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		if !e.IsActive || e.Key != candidate.Key {
			continue
		}
		siblings = append(siblings, e)
	}
	sort.SliceStable(siblings, func(i, j int) bool {
		return siblings[i].EffectiveFrom.Before(siblings[j].EffectiveFrom)
	})

	pw := candidate.Window()
	var adjustments []Adjustment
	for _, e := range siblings {
		ew := e.Window()
		if !pw.Overlaps(ew) {
			continue
		}

		after := e.Clone()
		var action AdjustmentAction
		switch {
		case candidate.EffectiveFrom.After(e.EffectiveFrom):
			to := candidate.EffectiveFrom.AddDays(-1)
			after.EffectiveTo = &to
			action = ActionTruncated

		case pw.Covers(ew) || e.EffectiveTo == nil:
			after.IsActive = false
			action = ActionDeactivated

		default:
			// candidate starts first and ends inside a finite e
			after.EffectiveFrom = candidate.EffectiveTo.AddDays(1)
			action = ActionDeferred
		}

		adjustments = append(adjustments, Adjustment{
			PolicyID: e.ID,
			Action:   action,
			Before:   e,
			After:    after,
		})
	}
	return adjustments
}

// NoActiveOverlap reports whether the active policies in ps are pairwise
// disjoint per DomainKey. It returns the first offending pair otherwise.
func NoActiveOverlap(ps []Policy) (ok bool, a, b PolicyID) {
	for i := range ps {
		if !ps[i].IsActive {
			continue
		}
		for j := i + 1; j < len(ps); j++ {
			if !ps[j].IsActive || ps[i].Key != ps[j].Key {
				continue
			}
			if ps[i].Window().Overlaps(ps[j].Window()) {
				return false, ps[i].ID, ps[j].ID
			}
		}
	}
	return true, "", ""
}
