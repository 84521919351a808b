package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-rims/incentive-engine/incentive"
	"github.com/campus-rims/incentive-engine/store/sqlite"
)

var journal = incentive.DomainKey{Domain: incentive.DomainResearchPaper, SubKey: "journal"}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func policy(from, to string) incentive.Policy {
	p := incentive.Policy{
		Key:           journal,
		Name:          "journal " + from,
		IsActive:      true,
		EffectiveFrom: incentive.MustParseDate(from),
		BaseAmount:    dec("10000"),
		BasePoints:    10,
		SplitPolicy:   incentive.SplitEqual,
	}
	if to != "" {
		p.EffectiveTo = incentive.MustParseDate(to).Ptr()
	}
	return p
}

// =============================================================================
// POLICIES
// =============================================================================

func TestStore_SaveAndGet_RoundTripsRules(t *testing.T) {
	// GIVEN: a policy using every rule table
	// WHEN: saved and read back
	// THEN: the rules come back unchanged

	s := newStore(t)
	ctx := context.Background()

	p := policy("2024-01-01", "2024-12-31")
	p.SplitPolicy = incentive.SplitAuthorRoleBased
	p.DistributionMethod = incentive.DistributionAuthorPosition
	p.RoleMultipliers = map[incentive.Role]decimal.Decimal{incentive.RoleCoAuthor: dec("0.4")}
	p.PositionPercentages = []incentive.PositionPercentage{{Position: 1, Percentage: dec("60")}, {Position: 2, Percentage: dec("40")}}
	p.IndexingBonuses = map[string]incentive.Bonus{"scopus": {Amount: dec("3000"), Points: 3}}
	p.QuartileBonuses = map[incentive.Quartile]incentive.Bonus{incentive.Q1: {Amount: dec("5000"), Points: 5}}
	upper := dec("5")
	p.ImpactFactorTiers = []incentive.RangeTier{
		{Min: dec("0"), Max: &upper, Bonus: incentive.Bonus{Amount: dec("1000"), Points: 1}},
		{Min: dec("5"), Bonus: incentive.Bonus{Amount: dec("4000"), Points: 4}},
	}
	p.InternationalBonus = incentive.Bonus{Amount: dec("2000"), Points: 2}
	p.CreatedBy = "admin-1"

	saved, err := s.Save(ctx, p)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, journal, got.Key)
	assert.Equal(t, "2024-01-01", got.EffectiveFrom.String())
	assert.Equal(t, "2024-12-31", got.EffectiveTo.String())
	assert.True(t, got.BaseAmount.Equal(dec("10000")))
	assert.Equal(t, 10, got.BasePoints)
	assert.Equal(t, incentive.DistributionAuthorPosition, got.DistributionMethod)
	assert.Equal(t, "0.4", got.RoleMultipliers[incentive.RoleCoAuthor].String())
	require.Len(t, got.PositionPercentages, 2)
	assert.Equal(t, 3, got.IndexingBonuses["scopus"].Points)
	assert.True(t, got.QuartileBonuses[incentive.Q1].Amount.Equal(dec("5000")))
	require.Len(t, got.ImpactFactorTiers, 2)
	require.NotNil(t, got.ImpactFactorTiers[0].Max)
	assert.Nil(t, got.ImpactFactorTiers[1].Max)
	assert.Equal(t, 2, got.InternationalBonus.Points)
	assert.Equal(t, "admin-1", got.CreatedBy)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStore_SaveUnknownID_NotFound(t *testing.T) {
	s := newStore(t)
	p := policy("2024-01-01", "")
	p.ID = "ghost"

	_, err := s.Save(context.Background(), p)

	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_GetMissing_NotFound(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), "ghost")
	assert.True(t, incentive.IsNotFound(err))
}

func TestStore_FindActiveAsOf(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	old, _ := s.Save(ctx, policy("2023-01-01", "2023-12-31"))
	cur, _ := s.Save(ctx, policy("2024-01-01", ""))
	off := policy("2024-06-01", "")
	off.IsActive = false
	_, _ = s.Save(ctx, off)

	got, err := s.FindActiveAsOf(ctx, journal, incentive.MustParseDate("2023-12-31"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, old.ID, got.ID)

	got, err = s.FindActiveAsOf(ctx, journal, incentive.MustParseDate("2024-07-01"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cur.ID, got.ID, "inactive rows are skipped")

	got, err = s.FindActiveAsOf(ctx, journal, incentive.MustParseDate("2022-01-01"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_FindAllByDomainAndList_Ordered(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, _ = s.Save(ctx, policy("2024-06-01", ""))
	_, _ = s.Save(ctx, policy("2023-01-01", "2023-12-31"))
	chapter := policy("2024-01-01", "")
	chapter.Key = incentive.DomainKey{Domain: incentive.DomainBookChapter}
	_, _ = s.Save(ctx, chapter)

	all, err := s.FindAllByDomain(ctx, journal)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2023-01-01", all[0].EffectiveFrom.String())

	listed, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, incentive.DomainBookChapter, listed[0].Key.Domain)

	papers, err := s.List(ctx, incentive.DomainResearchPaper)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}

func TestStore_Delete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	p, _ := s.Save(ctx, policy("2024-01-01", ""))

	require.NoError(t, s.Delete(ctx, p.ID))
	assert.True(t, incentive.IsNotFound(s.Delete(ctx, p.ID)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a, _ := s.Save(ctx, policy("2024-01-01", ""))
	boom := errors.New("boom")

	err := s.WithTx(ctx, journal, func(tx incentive.PolicyStore) error {
		a.EffectiveTo = incentive.MustParseDate("2024-05-31").Ptr()
		if _, err := tx.Save(ctx, a); err != nil {
			return err
		}
		if _, err := tx.Save(ctx, policy("2024-06-01", "")); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	all, _ := s.FindAllByDomain(ctx, journal)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].EffectiveTo)
}

func TestStore_WithTx_Commits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, journal, func(tx incentive.PolicyStore) error {
		saved, err := tx.Save(ctx, policy("2024-01-01", ""))
		if err != nil {
			return err
		}
		found, err := tx.FindActiveAsOf(ctx, journal, incentive.MustParseDate("2024-02-01"))
		if err != nil {
			return err
		}
		assert.Equal(t, saved.ID, found.ID)
		return nil
	})

	require.NoError(t, err)
	all, _ := s.List(ctx, "")
	assert.Len(t, all, 1)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestStore_Audit_RecordAndQuery(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	before := policy("2024-01-01", "")
	before.ID = "p1"
	after := before
	after.EffectiveTo = incentive.MustParseDate("2024-05-31").Ptr()
	after.Version = 2
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, incentive.AuditEvent{
		Action: incentive.AuditPolicyCreated, Key: journal, PolicyID: "p1", After: &before, ActorID: "admin-1", At: base,
	}))
	require.NoError(t, s.Record(ctx, incentive.AuditEvent{
		Action: incentive.AuditPolicyTruncated, Key: journal, PolicyID: "p1", Before: &before, After: &after, ActorID: "admin-1", At: base.Add(time.Minute),
	}))
	require.NoError(t, s.Record(ctx, incentive.AuditEvent{
		Action: incentive.AuditPolicyCreated, Key: incentive.DomainKey{Domain: incentive.DomainBook, SubKey: "edited"}, PolicyID: "p2", At: base.Add(2 * time.Minute),
	}))

	events, err := s.QueryAudit(ctx, incentive.AuditFilter{PolicyID: "p1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, incentive.AuditPolicyTruncated, events[0].Action)
	assert.NotEmpty(t, events[0].ID)
	require.NotNil(t, events[0].Before)
	require.NotNil(t, events[0].After)
	assert.Nil(t, events[0].Before.EffectiveTo)
	assert.Equal(t, "2024-05-31", events[0].After.EffectiveTo.String())
	assert.Equal(t, 2, events[0].After.Version)
	assert.Nil(t, events[1].Before)

	books, err := s.QueryAudit(ctx, incentive.AuditFilter{Domain: incentive.DomainBook})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, incentive.PolicyID("p2"), books[0].PolicyID)

	limited, err := s.QueryAudit(ctx, incentive.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, incentive.PolicyID("p2"), limited[0].PolicyID)
}

func TestStore_Ping(t *testing.T) {
	assert.NoError(t, newStore(t).Ping(context.Background()))
}
