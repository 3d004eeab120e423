// Package subscription holds the account access rules, the per-tier
// feature limit table and the resolver that combines them.
package subscription

import (
	"time"

	"crm_backend/internal/models"
	"crm_backend/pkg/apperrors"
)

// UnlimitedDays is reported as days remaining for exempt accounts.
const UnlimitedDays = 9999

const day = 24 * time.Hour

// IsExempt reports whether the role bypasses subscription gating and quotas.
// Shared by the access gate and the resolver so both apply the same override.
func IsExempt(role models.UserRole) bool {
	return role == models.UserRoleMaster
}

// IsTrialExpired is true strictly after trial_expires_at.
// A missing expiry counts as expired.
func IsTrialExpired(u *models.User, now time.Time) bool {
	if u == nil || u.TrialExpiresAt.IsZero() {
		return true
	}
	return now.After(u.TrialExpiresAt)
}

// IsSubscriptionActive decides whether the account may use the product at now.
func IsSubscriptionActive(u *models.User, now time.Time) bool {
	if u == nil {
		return false
	}
	if IsExempt(u.Role) {
		return true
	}

	switch u.SubscriptionStatus {
	case models.SubscriptionStatusTrial:
		return !IsTrialExpired(u, now)
	case models.SubscriptionStatusActive:
		return u.SubscriptionExpiresAt != nil && now.Before(*u.SubscriptionExpiresAt)
	default:
		return false
	}
}

// DaysRemaining returns whole days left in the current trial or paid period. Never negative.
func DaysRemaining(u *models.User, now time.Time) int {
	if u == nil {
		return 0
	}
	if IsExempt(u.Role) {
		return UnlimitedDays
	}

	switch u.SubscriptionStatus {
	case models.SubscriptionStatusTrial:
		if u.TrialExpiresAt.IsZero() {
			return 0
		}
		return wholeDays(u.TrialExpiresAt.Sub(now))
	case models.SubscriptionStatusActive:
		if u.SubscriptionExpiresAt == nil {
			return 0
		}
		return wholeDays(u.SubscriptionExpiresAt.Sub(now))
	default:
		return 0
	}
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// AccessDecision is the gate result attached to every authenticated request.
type AccessDecision struct {
	Allowed       bool                      `json:"allowed"`
	Reason        string                    `json:"reason,omitempty"`
	Status        models.SubscriptionStatus `json:"subscription_status"`
	Tier          models.SubscriptionTier   `json:"subscription_tier"`
	DaysRemaining int                       `json:"days_remaining"`
	Unlimited     bool                      `json:"unlimited"`
}

// EvaluateAccess computes the gate decision for u at now.
func EvaluateAccess(u *models.User, now time.Time) AccessDecision {
	if u == nil {
		return AccessDecision{Reason: apperrors.ReasonSubscriptionRequired}
	}

	d := AccessDecision{
		Allowed:       IsSubscriptionActive(u, now),
		Status:        u.SubscriptionStatus,
		Tier:          u.SubscriptionTier,
		DaysRemaining: DaysRemaining(u, now),
		Unlimited:     IsExempt(u.Role),
	}
	if d.Allowed {
		return d
	}

	if u.SubscriptionStatus == models.SubscriptionStatusTrial && IsTrialExpired(u, now) {
		d.Reason = apperrors.ReasonTrialExpired
	} else {
		d.Reason = apperrors.ReasonSubscriptionRequired
	}
	return d
}

// Err converts a denied decision to the matching AppError, nil when allowed.
func (d AccessDecision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == apperrors.ReasonTrialExpired {
		return apperrors.ErrTrialExpired()
	}
	return apperrors.ErrSubscriptionRequired(d.DaysRemaining)
}

// NewTrial initializes subscription fields of a freshly registered account.
func NewTrial(u *models.User, now time.Time, trialDays int) {
	u.SubscriptionStatus = models.SubscriptionStatusTrial
	u.SubscriptionTier = models.TierStarter
	u.TrialExpiresAt = now.Add(time.Duration(trialDays) * day)
	u.SubscriptionExpiresAt = nil
}

// PeriodEnd returns the end of a paid period started at start.
func PeriodEnd(start time.Time, cycle models.BillingCycle) time.Time {
	if cycle == models.BillingYearly {
		return start.Add(365 * day)
	}
	return start.Add(30 * day)
}
