package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm_backend/internal/models"
	"crm_backend/pkg/apperrors"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func trialUser(expires time.Time) *models.User {
	return &models.User{
		Role:               models.UserRoleUser,
		SubscriptionStatus: models.SubscriptionStatusTrial,
		SubscriptionTier:   models.TierStarter,
		TrialExpiresAt:     expires,
	}
}

func TestMasterAlwaysActive(t *testing.T) {
	past := now.Add(-1000 * day)
	cases := []*models.User{
		{Role: models.UserRoleMaster},
		{Role: models.UserRoleMaster, SubscriptionStatus: models.SubscriptionStatusExpired, TrialExpiresAt: past},
		{Role: models.UserRoleMaster, SubscriptionStatus: "garbage", SubscriptionExpiresAt: &past},
		{Role: models.UserRoleMaster, SubscriptionStatus: models.SubscriptionStatusActive},
	}

	for _, u := range cases {
		assert.True(t, IsSubscriptionActive(u, now))
		assert.Equal(t, UnlimitedDays, DaysRemaining(u, now))
		assert.True(t, EvaluateAccess(u, now).Allowed)
	}
}

func TestTrialBoundaryIsStrict(t *testing.T) {
	u := trialUser(now)

	assert.False(t, IsTrialExpired(u, now), "exactly at expiry the trial is still valid")
	assert.True(t, IsSubscriptionActive(u, now))

	later := now.Add(time.Microsecond)
	assert.True(t, IsTrialExpired(u, later))
	assert.False(t, IsSubscriptionActive(u, later))
}

func TestMissingTrialExpiryFailsClosed(t *testing.T) {
	u := trialUser(time.Time{})

	assert.True(t, IsTrialExpired(u, now))
	assert.False(t, IsSubscriptionActive(u, now))
	assert.Equal(t, 0, DaysRemaining(u, now))
	assert.False(t, IsSubscriptionActive(nil, now))
	assert.Equal(t, 0, DaysRemaining(nil, now))
}

func TestActiveSubscription(t *testing.T) {
	expires := now.Add(10*day + time.Hour)
	u := &models.User{
		Role:                  models.UserRoleUser,
		SubscriptionStatus:    models.SubscriptionStatusActive,
		SubscriptionTier:      models.TierProfessional,
		SubscriptionExpiresAt: &expires,
	}

	assert.True(t, IsSubscriptionActive(u, now))
	assert.Equal(t, 10, DaysRemaining(u, now))

	assert.False(t, IsSubscriptionActive(u, expires), "active ends at expiry")

	u.SubscriptionExpiresAt = nil
	assert.False(t, IsSubscriptionActive(u, now))
	assert.Equal(t, 0, DaysRemaining(u, now))
}

func TestDaysRemainingNeverNegative(t *testing.T) {
	offsets := []time.Duration{-400 * day, -day, -time.Second, 0, time.Second, 23 * time.Hour, day, 45 * day}
	statuses := []models.SubscriptionStatus{
		models.SubscriptionStatusTrial, models.SubscriptionStatusActive, models.SubscriptionStatusExpired, "",
	}

	for _, off := range offsets {
		for _, st := range statuses {
			exp := now.Add(off)
			u := &models.User{Role: models.UserRoleUser, SubscriptionStatus: st, TrialExpiresAt: exp, SubscriptionExpiresAt: &exp}
			assert.GreaterOrEqual(t, DaysRemaining(u, now), 0)
		}
	}
}

func TestNewAccountTrialLifecycle(t *testing.T) {
	u := &models.User{Role: models.UserRoleUser}
	NewTrial(u, now, 30)

	assert.Equal(t, models.SubscriptionStatusTrial, u.SubscriptionStatus)
	assert.Equal(t, models.TierStarter, u.SubscriptionTier)
	assert.True(t, IsSubscriptionActive(u, now))
	assert.Equal(t, 30, DaysRemaining(u, now))

	at31 := now.Add(31 * day)
	assert.False(t, IsSubscriptionActive(u, at31))
	assert.Equal(t, 0, DaysRemaining(u, at31))

	d := EvaluateAccess(u, at31)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperrors.ReasonTrialExpired, d.Reason)

	err := d.Err()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTrialExpired))
}

func TestEvaluateAccess_SubscriptionRequired(t *testing.T) {
	u := &models.User{Role: models.UserRoleUser, SubscriptionStatus: models.SubscriptionStatusExpired}

	d := EvaluateAccess(u, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperrors.ReasonSubscriptionRequired, d.Reason)
	assert.True(t, apperrors.HasCode(d.Err(), apperrors.CodeSubscriptionRequired))
	assert.Nil(t, EvaluateAccess(trialUser(now.Add(day)), now).Err())
}

func TestPeriodEnd(t *testing.T) {
	assert.Equal(t, now.Add(30*day), PeriodEnd(now, models.BillingMonthly))
	assert.Equal(t, now.Add(365*day), PeriodEnd(now, models.BillingYearly))
}
