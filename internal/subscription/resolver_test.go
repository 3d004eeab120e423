package subscription

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
)

func TestDefaultTableIsComplete(t *testing.T) {
	table := DefaultFeatureLimitTable()
	features := table.Features()
	require.NotEmpty(t, features)

	for _, tier := range Tiers() {
		for _, f := range features {
			_, ok := table.Lookup(tier, f)
			assert.True(t, ok, "%s/%s", tier, f)
		}
	}
	for _, f := range features {
		l, _ := table.Lookup(models.TierWhiteLabel, f)
		assert.True(t, l.Unlimited, f)
	}
}

func TestNewFeatureLimitTable_RejectsIncompleteTier(t *testing.T) {
	limits := defaultLimits()
	delete(limits[models.TierBusiness], FeatureSMSSends)

	_, err := NewFeatureLimitTable(limits)
	require.Error(t, err)
	assert.Contains(t, err.Error(), FeatureSMSSends)

	limits = defaultLimits()
	delete(limits, models.TierEnterprise)
	_, err = NewFeatureLimitTable(limits)
	assert.Error(t, err)

	limits = defaultLimits()
	limits[models.TierWhiteLabel][FeatureContacts] = count(10)
	_, err = NewFeatureLimitTable(limits)
	assert.Error(t, err)
}

func TestResolve_UnknownTierFallsBackToStarter(t *testing.T) {
	r := NewResolver(nil)

	for _, f := range r.Features() {
		assert.Equal(t, r.Resolve(models.TierStarter, f), r.Resolve("platinum", f), f)
		assert.Equal(t, r.Resolve(models.TierStarter, f), r.Resolve("", f), f)
	}
}

func TestResolve_Values(t *testing.T) {
	r := NewResolver(nil)

	assert.Equal(t, int64(1000), r.Resolve(models.TierStarter, FeatureContacts).Value)
	assert.Equal(t, int64(10000), r.Resolve(models.TierProfessional, FeatureContacts).Value)

	off := r.Resolve(models.TierStarter, FeatureCustomDomain)
	assert.False(t, off.Enabled())
	assert.False(t, off.Allows(0))

	on := r.Resolve(models.TierProfessional, FeatureCustomDomain)
	assert.True(t, on.Unlimited)

	missing := r.Resolve(models.TierEnterprise, "teleportation")
	assert.False(t, missing.Allows(0))
	assert.False(t, r.IsKnownFeature("teleportation"))
}

func TestResolveFor_MasterIsUnlimited(t *testing.T) {
	r := NewResolver(nil)
	master := &models.User{Role: models.UserRoleMaster, SubscriptionTier: models.TierStarter}

	for _, f := range append(r.Features(), "anything") {
		assert.True(t, r.ResolveFor(master, f).Unlimited, f)
	}
	assert.False(t, r.ResolveFor(nil, FeatureContacts).Allows(0))
}

func TestUpgradeToProfessional(t *testing.T) {
	r := NewResolver(nil)
	u := &models.User{Role: models.UserRoleUser}
	NewTrial(u, now, 30)

	u.SubscriptionTier = models.TierProfessional
	u.SubscriptionStatus = models.SubscriptionStatusActive
	exp := PeriodEnd(now, models.BillingMonthly)
	u.SubscriptionExpiresAt = &exp

	assert.True(t, IsSubscriptionActive(u, now.Add(29*day)))
	assert.Equal(t, int64(10000), r.ResolveFor(u, FeatureContacts).Value)
}

func TestParseFeatureLimitTable(t *testing.T) {
	limits := defaultLimits()
	doc := map[string]map[string]interface{}{}
	for tier, features := range limits {
		m := map[string]interface{}{}
		for f, l := range features {
			switch {
			case l.Boolean:
				m[f] = l.Unlimited
			case l.Unlimited:
				m[f] = "unlimited"
			default:
				m[f] = l.Value
			}
		}
		doc[string(tier)] = m
	}
	doc["starter"][FeatureContacts] = 250

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	// JSON is valid YAML
	table, err := ParseFeatureLimitTable(raw)
	require.NoError(t, err)

	l, ok := table.Lookup(models.TierStarter, FeatureContacts)
	require.True(t, ok)
	assert.Equal(t, int64(250), l.Value)

	_, err = ParseFeatureLimitTable([]byte("gold:\n  contacts: 5\n"))
	assert.Error(t, err)
}

func TestLimitJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]Limit{"a": count(5), "b": flag(false), "c": unlimited()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":5,"b":false,"c":"unlimited"}`, string(raw))
}

func TestPlans(t *testing.T) {
	r := NewResolver(nil)
	plans := r.Plans()
	require.Len(t, plans, 5)

	assert.Equal(t, models.TierStarter, plans[0].Tier)
	assert.Equal(t, "58", plans[0].AnnualSavings.String())
	assert.Equal(t, int64(17), plans[0].AnnualSavingsPercent)
	assert.True(t, plans[1].IsPopular)
	assert.Equal(t, 5, plans[4].SortOrder)

	price, ok := r.Price(models.TierBusiness, models.BillingYearly)
	require.True(t, ok)
	assert.Equal(t, "2990", price.String())
}

func TestTiersAbove(t *testing.T) {
	assert.Equal(t, []models.SubscriptionTier{models.TierEnterprise, models.TierWhiteLabel}, TiersAbove(models.TierBusiness))
	assert.Empty(t, TiersAbove(models.TierWhiteLabel))
	assert.Len(t, TiersAbove("unknown"), 4)
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2024-03", MonthKey(now))
	loc := time.FixedZone("UTC+5", 5*3600)
	assert.Equal(t, "2024-02", MonthKey(time.Date(2024, 3, 1, 2, 0, 0, 0, loc)))
}
