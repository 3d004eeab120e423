package dto

import (
	"time"

	"crm_backend/internal/models"
	"crm_backend/internal/subscription"
)

type UpgradeRequest struct {
	Tier         string `json:"tier" validate:"required,is-tier"`
	BillingCycle string `json:"billing_cycle" validate:"required,is-billing-cycle"`
}

const (
	UpgradeModeCheckout = "checkout"
	UpgradeModeDirect   = "direct"
)

// UpgradeResponse - checkout ссылка, либо сразу примененный тариф
type UpgradeResponse struct {
	Mode         string               `json:"mode"`
	CheckoutURL  string               `json:"checkout_url,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	User         *UserDTO             `json:"user,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

type CurrentSubscriptionResponse struct {
	Tier                  models.SubscriptionTier       `json:"tier"`
	Status                models.SubscriptionStatus     `json:"status"`
	TrialExpiresAt        time.Time                     `json:"trial_expires_at"`
	SubscriptionExpiresAt *time.Time                    `json:"subscription_expires_at,omitempty"`
	DaysRemaining         int                           `json:"days_remaining"`
	Access                subscription.AccessDecision   `json:"access"`
	Plan                  *subscription.Plan            `json:"plan,omitempty"`
	Limits                map[string]subscription.Limit `json:"limits"`
	LatestSubscription    *models.Subscription          `json:"latest_subscription,omitempty"`
}

type UsageAmountRequest struct {
	Amount int64 `json:"amount" validate:"omitempty,min=1,max=100000"`
}

// AdminSubscriptionRequest - ручной апгрейд/даунгрейд аккаунта
type AdminSubscriptionRequest struct {
	Tier      string     `json:"tier" validate:"required,is-tier"`
	Status    string     `json:"status" validate:"required,oneof=trial active expired"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate"`
}
