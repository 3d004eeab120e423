package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Subscription - факт оформления тарифа (через checkout или вручную)
type Subscription struct {
	BaseModel
	UserID               string             `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Tier                 SubscriptionTier   `gorm:"type:varchar(32);not null" json:"tier"`
	BillingCycle         BillingCycle       `gorm:"type:varchar(16);not null" json:"billing_cycle"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Amount               decimal.Decimal    `gorm:"type:numeric(12,2)" json:"amount"`
	Currency             string             `gorm:"size:8;default:'usd'" json:"currency"`
	StripeSessionID      *string            `gorm:"size:255;uniqueIndex" json:"-"`
	StripeSubscriptionID string             `gorm:"size:255;index" json:"-"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
}

// PaymentTransaction - платеж у провайдера
type PaymentTransaction struct {
	BaseModel
	UserID         string           `gorm:"type:varchar(36);not null;index" json:"user_id"`
	SubscriptionID *string          `gorm:"type:varchar(36);index" json:"subscription_id,omitempty"`
	Provider       string           `gorm:"size:32;not null" json:"provider"`
	ExternalID     string           `gorm:"size:255;uniqueIndex" json:"external_id"`
	Tier           SubscriptionTier `gorm:"type:varchar(32)" json:"tier"`
	BillingCycle   BillingCycle     `gorm:"type:varchar(16)" json:"billing_cycle"`
	Amount         decimal.Decimal  `gorm:"type:numeric(12,2)" json:"amount"`
	Currency       string           `gorm:"size:8" json:"currency"`
	Status         PaymentStatus    `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Metadata       datatypes.JSON   `json:"metadata,omitempty"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
}

// UsageRecord - счетчик использования фичи аккаунтом за месяц (YYYY-MM)
type UsageRecord struct {
	BaseModel
	AccountID   string `gorm:"type:varchar(36);not null;uniqueIndex:idx_usage_account_feature_month" json:"account_id"`
	FeatureName string `gorm:"size:64;not null;uniqueIndex:idx_usage_account_feature_month" json:"feature_name"`
	Month       string `gorm:"type:varchar(7);not null;uniqueIndex:idx_usage_account_feature_month" json:"month"`
	UsageCount  int64  `gorm:"not null;default:0" json:"usage_count"`
	// Снимок лимита на момент создания записи, только для отчетов
	UsageLimit *int64 `json:"usage_limit,omitempty"`
}
