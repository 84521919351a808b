package incentive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rims/incentive-engine/domains"
	"github.com/campus-rims/incentive-engine/incentive"
	"github.com/campus-rims/incentive-engine/incentive/store"
)

type failingAudit struct{ calls int }

func (f *failingAudit) Record(context.Context, incentive.AuditEvent) error {
	f.calls++
	return errors.New("audit backend down")
}

func newService(t *testing.T) (*incentive.Service, *store.TxMemory, *store.MemoryAudit) {
	t.Helper()
	mem := store.NewTxMemory()
	audit := store.NewMemoryAudit()
	svc := incentive.NewService(mem, domains.NewRegistry(), domains.MustLoadDefaults(), audit, nil)
	svc.Clock = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }
	return svc, mem, audit
}

func mustCreate(t *testing.T, svc *incentive.Service, p incentive.Policy) *incentive.WriteResult {
	t.Helper()
	res, err := svc.CreatePolicy(context.Background(), p, "admin-1")
	require.NoError(t, err)
	return res
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreatePolicy_TruncatesPredecessorAndAudits(t *testing.T) {
	// GIVEN: A open-ended from 2024-01-01
	// WHEN: B is created from 2024-06-01
	// THEN: A ends 2024-05-31, both are stored, and the audit log has
	//       one creation per policy plus one truncation

	svc, _, audit := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, window("", "2024-01-01", "")).Policy
	res := mustCreate(t, svc, window("", "2024-06-01", ""))

	require.Len(t, res.Adjustments, 1)
	adj := res.Adjustments[0]
	assert.Equal(t, a.ID, adj.PolicyID)
	assert.Equal(t, incentive.ActionTruncated, adj.Action)
	assert.Equal(t, 2, adj.After.Version)
	assert.Equal(t, "admin-1", adj.After.UpdatedBy)

	stored, err := svc.GetPolicy(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-31", stored.EffectiveTo.String())
	assert.True(t, stored.IsActive)

	events, err := audit.QueryAudit(ctx, incentive.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, incentive.AuditPolicyTruncated, events[0].Action)
	assert.Equal(t, a.ID, events[0].PolicyID)
	assert.Nil(t, events[0].Before.EffectiveTo)
	assert.Equal(t, incentive.AuditPolicyCreated, events[1].Action)
	assert.Equal(t, res.Policy.ID, events[1].PolicyID)
	assert.NotEmpty(t, events[1].ID)
	assert.Equal(t, "admin-1", events[1].ActorID)
}

func TestCreatePolicy_InsideOpenEndedPolicy_TailFallsBackToDefault(t *testing.T) {
	// GIVEN: A open-ended from 2024-01-01
	// WHEN: a one-month policy B is created for 2024-03
	// THEN: A ends 2024-02-29, B governs March, and from 2024-04-01 the
	//       built-in default applies because A is not resumed

	svc, _, _ := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, window("", "2024-01-01", "")).Policy
	res := mustCreate(t, svc, window("", "2024-03-01", "2024-03-31"))

	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, incentive.ActionTruncated, res.Adjustments[0].Action)
	assert.Equal(t, "2024-02-29", res.Adjustments[0].After.EffectiveTo.String())

	feb, err := svc.SelectPolicy(ctx, journal, dp("2024-02-15"))
	require.NoError(t, err)
	assert.Equal(t, a.ID, feb.ID)

	march, err := svc.SelectPolicy(ctx, journal, dp("2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, res.Policy.ID, march.ID)

	april, err := svc.SelectPolicy(ctx, journal, dp("2024-04-01"))
	require.NoError(t, err)
	assert.True(t, april.IsDefault)
	assert.Equal(t, incentive.PolicyID("default:research_paper/journal"), april.ID)
}

func TestCreatePolicy_ContainedSibling_Deactivated(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	march := mustCreate(t, svc, window("", "2024-03-01", "2024-03-31")).Policy
	res := mustCreate(t, svc, window("", "2024-01-01", ""))

	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, incentive.ActionDeactivated, res.Adjustments[0].Action)

	stored, err := svc.GetPolicy(ctx, march.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, incentive.StatusInactive, stored.Status(svc.Today()))
}

func TestCreatePolicy_StampsVersionAndActor(t *testing.T) {
	svc, _, _ := newService(t)

	p := window("ignored", "2024-01-01", "")
	p.Key = incentive.DomainKey{Domain: "Research_Paper", SubKey: " Journal"}
	res := mustCreate(t, svc, p)

	assert.NotEqual(t, incentive.PolicyID("ignored"), res.Policy.ID)
	assert.NotEmpty(t, res.Policy.ID)
	assert.Equal(t, journal, res.Policy.Key)
	assert.Equal(t, 1, res.Policy.Version)
	assert.Equal(t, "admin-1", res.Policy.CreatedBy)
	assert.Equal(t, 2024, res.Policy.CreatedAt.Year())
	assert.False(t, res.Policy.IsDefault)
}

func TestCreatePolicy_Invalid_NothingWritten(t *testing.T) {
	// GIVEN: an existing open-ended policy
	// WHEN: creating an overlapping policy that fails validation
	// THEN: a validation error is returned and the existing policy is untouched

	svc, mem, audit := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, window("", "2024-01-01", "")).Policy

	bad := validGrant("60", "39")
	bad.Key = journal
	bad.EffectiveFrom = d("2024-06-01")

	_, err := svc.CreatePolicy(ctx, bad, "admin-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, incentive.ErrValidation))
	stored, err := mem.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EffectiveTo)
	all, _ := mem.List(ctx, "")
	assert.Len(t, all, 1)
	events, _ := audit.QueryAudit(ctx, incentive.AuditFilter{})
	assert.Len(t, events, 1)
}

func TestCreatePolicy_AuditFailure_DoesNotFailWrite(t *testing.T) {
	mem := store.NewTxMemory()
	sink := &failingAudit{}
	svc := incentive.NewService(mem, domains.NewRegistry(), domains.MustLoadDefaults(), sink, nil)

	_, err := svc.CreatePolicy(context.Background(), window("", "2024-01-01", ""), "admin-1")
	require.NoError(t, err)
	res, err := svc.CreatePolicy(context.Background(), window("", "2024-06-01", ""), "admin-1")
	require.NoError(t, err)

	assert.Len(t, res.Adjustments, 1)
	assert.Equal(t, 3, sink.calls)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdatePolicy_MissingID_NotFound(t *testing.T) {
	svc, mem, _ := newService(t)

	_, err := svc.UpdatePolicy(context.Background(), "nope", window("", "2024-01-01", ""), "admin-1")

	require.Error(t, err)
	assert.True(t, incentive.IsNotFound(err))
	all, _ := mem.List(context.Background(), "")
	assert.Empty(t, all, "update of a missing id must not create a policy")
}

func TestUpdatePolicy_BumpsVersionKeepsCreator(t *testing.T) {
	svc, _, audit := newService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, window("", "2024-01-01", "")).Policy

	next := window("", "2024-01-01", "2024-12-31")
	next.Key = incentive.DomainKey{}
	next.BaseAmount = dec("7000")
	res, err := svc.UpdatePolicy(ctx, created.ID, next, "admin-2")

	require.NoError(t, err)
	assert.Equal(t, created.ID, res.Policy.ID)
	assert.Equal(t, journal, res.Policy.Key)
	assert.Equal(t, 2, res.Policy.Version)
	assert.Equal(t, "admin-1", res.Policy.CreatedBy)
	assert.Equal(t, "admin-2", res.Policy.UpdatedBy)
	assert.Empty(t, res.Adjustments, "a policy never conflicts with itself")

	events, _ := audit.QueryAudit(ctx, incentive.AuditFilter{PolicyID: created.ID, Limit: 1})
	require.Len(t, events, 1)
	assert.Equal(t, incentive.AuditPolicyUpdated, events[0].Action)
	assertDec(t, "0", events[0].Before.BaseAmount)
	assertDec(t, "7000", events[0].After.BaseAmount)
}

func TestUpdatePolicy_KeyChange_Rejected(t *testing.T) {
	svc, _, _ := newService(t)
	created := mustCreate(t, svc, window("", "2024-01-01", "")).Policy

	moved := window("", "2024-01-01", "")
	moved.Key = patent
	_, err := svc.UpdatePolicy(context.Background(), created.ID, moved, "admin-1")

	require.Error(t, err)
	assert.Equal(t, []string{"domain"}, fieldNames(err))
}

func TestUpdatePolicy_ExtendsOverSibling(t *testing.T) {
	// GIVEN: A 2024-01..2024-03 and B from 2024-04-01
	// WHEN: A is extended to open-ended
	// THEN: B, which starts later, is deactivated

	svc, _, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, window("", "2024-01-01", "2024-03-31")).Policy
	b := mustCreate(t, svc, window("", "2024-04-01", "")).Policy

	res, err := svc.UpdatePolicy(ctx, a.ID, window("", "2024-01-01", ""), "admin-1")

	require.NoError(t, err)
	require.Len(t, res.Adjustments, 1)
	assert.Equal(t, b.ID, res.Adjustments[0].PolicyID)
	assert.Equal(t, incentive.ActionDeactivated, res.Adjustments[0].Action)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeletePolicy_SoftDeactivates(t *testing.T) {
	svc, _, audit := newService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, window("", "2024-01-01", "")).Policy

	require.NoError(t, svc.DeletePolicy(ctx, p.ID, false, "admin-1"))

	stored, err := svc.GetPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 2, stored.Version)

	sel, err := svc.SelectPolicy(ctx, journal, nil)
	require.NoError(t, err)
	assert.True(t, sel.IsDefault)

	events, _ := audit.QueryAudit(ctx, incentive.AuditFilter{Limit: 1})
	assert.Equal(t, incentive.AuditPolicyDeleted, events[0].Action)
	assert.False(t, events[0].After.IsActive)
}

func TestDeletePolicy_Hard_Removes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, window("", "2024-01-01", "")).Policy

	require.NoError(t, svc.DeletePolicy(ctx, p.ID, true, "admin-1"))

	_, err := svc.GetPolicy(ctx, p.ID)
	assert.True(t, incentive.IsNotFound(err))
	assert.True(t, incentive.IsNotFound(svc.DeletePolicy(ctx, p.ID, true, "admin-1")))
}

// =============================================================================
// READS
// =============================================================================

func TestHistory_OrderedByStart(t *testing.T) {
	svc, _, _ := newService(t)
	mustCreate(t, svc, window("", "2024-06-01", ""))
	mustCreate(t, svc, window("", "2023-01-01", "2023-12-31"))

	history, err := svc.History(context.Background(), journal)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2023-01-01", history[0].EffectiveFrom.String())
	assert.Equal(t, "2024-06-01", history[1].EffectiveFrom.String())

	_, err = svc.History(context.Background(), incentive.DomainKey{Domain: "music"})
	assert.True(t, incentive.IsClientError(err))
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestCalculateIncentive_StoredPolicy(t *testing.T) {
	// GIVEN: a journal policy with base 10000/10, equal split
	// WHEN: calculating for two internal authors and one external
	// THEN: 5000/5 each for internals, zero for the external

	svc, _, _ := newService(t)
	p := window("", "2024-01-01", "")
	p.BaseAmount = dec("10000")
	p.BasePoints = 10
	created := mustCreate(t, svc, p).Policy

	con := incentive.Contribution{Contributors: []incentive.Contributor{
		internal("a", incentive.RoleFirstAuthor),
		external("x", incentive.RoleCoAuthor),
		internal("b", incentive.RoleCoAuthor),
	}}
	res, err := svc.CalculateIncentive(context.Background(), journal, dp("2024-03-01"), con)

	require.NoError(t, err)
	assert.Equal(t, created.ID, res.Policy.ID)
	assert.False(t, res.Policy.IsDefault)
	assert.Equal(t, "equal", res.Strategy)
	assertDec(t, "10000", res.Total.Amount)
	require.Len(t, res.Shares, 3)
	assertDec(t, "5000", res.Shares[0].Amount)
	assert.True(t, res.Shares[1].Amount.IsZero())
	assertDec(t, "5000", res.Shares[2].Amount)
	assert.Equal(t, 5, res.Shares[2].Points)
}

func TestCalculateIncentive_DefaultPolicy(t *testing.T) {
	// GIVEN: nothing stored for patents
	// WHEN: calculating a patent with a primary inventor and an inventor
	// THEN: the built-in 50000/20 default is split 50/50

	svc, _, _ := newService(t)
	con := incentive.Contribution{Contributors: []incentive.Contributor{
		internal("p", incentive.RolePrimaryInventor),
		internal("i", incentive.RoleInventor),
	}}

	res, err := svc.CalculateIncentive(context.Background(), patent, nil, con)

	require.NoError(t, err)
	assert.True(t, res.Policy.IsDefault)
	assert.Equal(t, "2024-02-01", res.AsOf.String())
	assertDec(t, "50000", res.Total.Amount)
	assertDec(t, "25000", res.Shares[0].Amount)
	assertDec(t, "25000", res.Shares[1].Amount)
}

func TestCalculateIncentive_InvalidContribution(t *testing.T) {
	svc, _, _ := newService(t)
	con := incentive.Contribution{
		ConsortiumOrgs: -1,
		ProjectType:    "galactic",
		Contributors:   []incentive.Contributor{{ID: "a", Role: incentive.RoleCoAuthor, Category: "friend"}},
	}

	_, err := svc.CalculateIncentive(context.Background(), journal, nil, con)

	assert.ElementsMatch(t,
		[]string{"number_of_consortium_orgs", "project_type", "contributors[0].category"},
		fieldNames(err))
}

func TestCalculateForContributor_External(t *testing.T) {
	svc, _, _ := newService(t)

	ref, res, err := svc.CalculateForContributor(context.Background(), journal, nil,
		incentive.Contribution{Quartile: incentive.Q1}, incentive.RoleFirstAuthor, incentive.CategoryExternal)

	require.NoError(t, err)
	assert.True(t, ref.IsDefault)
	assert.True(t, res.Amount.IsZero())
}

func TestCalculateForContributor_DefaultJournal(t *testing.T) {
	// Built-in journal: base 10000/10, Q1 10000/10; co-author share 0.5.
	svc, _, _ := newService(t)

	_, res, err := svc.CalculateForContributor(context.Background(), journal, nil,
		incentive.Contribution{Quartile: incentive.Q1}, incentive.RoleCoAuthor, incentive.CategoryInternal)

	require.NoError(t, err)
	assertDec(t, "10000", res.Amount)
	assert.Equal(t, 10, res.Points)
}
