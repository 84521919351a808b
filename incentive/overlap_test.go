package incentive_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rims/incentive-engine/incentive"
)

var resolver incentive.OverlapResolver

// =============================================================================
// RESOLUTION RULES
// =============================================================================

func TestResolve_LaterStart_TruncatesPredecessor(t *testing.T) {
	// GIVEN: A runs from 2024-01-01 with no end
	// WHEN: B starting 2024-06-01 is written
	// THEN: A ends 2024-05-31 and stays active

	a := window("A", "2024-01-01", "")
	b := window("B", "2024-06-01", "")

	adjs := resolver.Resolve(b, []incentive.Policy{a})

	require.Len(t, adjs, 1)
	assert.Equal(t, incentive.PolicyID("A"), adjs[0].PolicyID)
	assert.Equal(t, incentive.ActionTruncated, adjs[0].Action)
	require.NotNil(t, adjs[0].After.EffectiveTo)
	assert.Equal(t, "2024-05-31", adjs[0].After.EffectiveTo.String())
	assert.True(t, adjs[0].After.IsActive)
	assert.Nil(t, adjs[0].Before.EffectiveTo, "Before must keep the original window")
}

func TestResolve_CandidateCoversExisting_Deactivates(t *testing.T) {
	// GIVEN: A covers March 2024
	// WHEN: B starting 2024-01-01 with no end is written
	// THEN: A is deactivated with its dates untouched

	a := window("A", "2024-03-01", "2024-03-31")
	b := window("B", "2024-01-01", "")

	adjs := resolver.Resolve(b, []incentive.Policy{a})

	require.Len(t, adjs, 1)
	assert.Equal(t, incentive.ActionDeactivated, adjs[0].Action)
	assert.False(t, adjs[0].After.IsActive)
	assert.Equal(t, "2024-03-01", adjs[0].After.EffectiveFrom.String())
	assert.Equal(t, "2024-03-31", adjs[0].After.EffectiveTo.String())
}

func TestResolve_OpenEndedSuccessor_Deactivates(t *testing.T) {
	// GIVEN: A starts mid-year with no end
	// WHEN: B covering the whole year is written
	// THEN: A is deactivated even though B ends first

	a := window("A", "2024-06-01", "")
	b := window("B", "2024-01-01", "2024-12-31")

	adjs := resolver.Resolve(b, []incentive.Policy{a})

	require.Len(t, adjs, 1)
	assert.Equal(t, incentive.ActionDeactivated, adjs[0].Action)
}

func TestResolve_CandidateEndsInsideSuccessor_Defers(t *testing.T) {
	// GIVEN: A runs March to December
	// WHEN: B running January to June is written
	// THEN: A now starts on July 1st, end unchanged

	a := window("A", "2024-03-01", "2024-12-31")
	b := window("B", "2024-01-01", "2024-06-30")

	adjs := resolver.Resolve(b, []incentive.Policy{a})

	require.Len(t, adjs, 1)
	assert.Equal(t, incentive.ActionDeferred, adjs[0].Action)
	assert.Equal(t, "2024-07-01", adjs[0].After.EffectiveFrom.String())
	assert.Equal(t, "2024-12-31", adjs[0].After.EffectiveTo.String())
	assert.True(t, adjs[0].After.IsActive)
}

func TestResolve_SameStart_Deactivates(t *testing.T) {
	a := window("A", "2024-01-01", "")
	b := window("B", "2024-01-01", "")

	adjs := resolver.Resolve(b, []incentive.Policy{a})

	require.Len(t, adjs, 1)
	assert.Equal(t, incentive.ActionDeactivated, adjs[0].Action)
}

func TestResolve_AdjacentWindows_NoAction(t *testing.T) {
	// Closed windows: ending 2023-12-31 and starting 2024-01-01 do not touch.
	a := window("A", "2023-01-01", "2023-12-31")
	b := window("B", "2024-01-01", "")

	assert.Empty(t, resolver.Resolve(b, []incentive.Policy{a}))
}

func TestResolve_IgnoresSelfInactiveAndOtherKeys(t *testing.T) {
	self := window("B", "2023-01-01", "")
	inactive := window("C", "2024-01-01", "")
	inactive.IsActive = false
	other := window("D", "2024-01-01", "")
	other.Key = patent

	b := window("B", "2024-01-01", "")
	assert.Empty(t, resolver.Resolve(b, []incentive.Policy{self, inactive, other}))
}

func TestResolve_InactiveCandidate_NoAction(t *testing.T) {
	a := window("A", "2024-01-01", "")
	b := window("B", "2024-06-01", "")
	b.IsActive = false

	assert.Empty(t, resolver.Resolve(b, []incentive.Policy{a}))
}

func TestResolve_DoesNotMutateInput(t *testing.T) {
	a := window("A", "2024-01-01", "")
	existing := []incentive.Policy{a}

	resolver.Resolve(window("B", "2024-06-01", ""), existing)

	assert.Nil(t, existing[0].EffectiveTo)
	assert.True(t, existing[0].IsActive)
}

func TestResolve_MultipleSiblings_OrderedByStart(t *testing.T) {
	a := window("A", "2022-01-01", "2022-12-31")
	b := window("B", "2023-01-01", "2023-12-31")
	c := window("C", "2024-01-01", "")

	adjs := resolver.Resolve(window("P", "2022-07-01", ""), []incentive.Policy{c, a, b})

	require.Len(t, adjs, 3)
	assert.Equal(t, incentive.PolicyID("A"), adjs[0].PolicyID)
	assert.Equal(t, incentive.ActionTruncated, adjs[0].Action)
	assert.Equal(t, "2022-06-30", adjs[0].After.EffectiveTo.String())
	assert.Equal(t, incentive.ActionDeactivated, adjs[1].Action)
	assert.Equal(t, incentive.ActionDeactivated, adjs[2].Action)
}

// =============================================================================
// INVARIANT: no two active windows of a key intersect
// =============================================================================

func TestResolve_RandomWrites_NeverLeaveActiveOverlap(t *testing.T) {
	// GIVEN: 500 random creates and updates on one key
	// WHEN: each write applies the resolver's adjustments
	// THEN: after every write the active windows are pairwise disjoint

	rng := rand.New(rand.NewSource(42))
	base := d("2024-01-01")
	var stored []incentive.Policy

	for i := 0; i < 500; i++ {
		from := base.AddDays(rng.Intn(365))
		p := window(fmt.Sprintf("p%03d", i), from.String(), "")
		if rng.Intn(3) > 0 {
			p.EffectiveTo = from.AddDays(rng.Intn(120)).Ptr()
		}
		if len(stored) > 0 && rng.Intn(4) == 0 {
			p.ID = stored[rng.Intn(len(stored))].ID
		}

		adjs := resolver.Resolve(p, stored)
		stored = apply(stored, p, adjs)

		ok, a, b := incentive.NoActiveOverlap(stored)
		require.True(t, ok, "write %d left %s overlapping %s", i, a, b)
		for _, s := range stored {
			require.True(t, s.Window().Valid(), "write %d produced invalid window %s for %s", i, s.Window(), s.ID)
		}
	}
}

func apply(stored []incentive.Policy, p incentive.Policy, adjs []incentive.Adjustment) []incentive.Policy {
	byID := make(map[incentive.PolicyID]int, len(stored))
	for i, s := range stored {
		byID[s.ID] = i
	}
	for _, adj := range adjs {
		stored[byID[adj.PolicyID]] = adj.After
	}
	if i, ok := byID[p.ID]; ok {
		stored[i] = p
		return stored
	}
	return append(stored, p)
}
