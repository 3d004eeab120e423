package models

import "time"

// User - аккаунт CRM. Поля подписки определяют доступ к продукту.
type User struct {
	BaseModel
	Email        string   `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string   `gorm:"not null" json:"-"`
	FirstName    string   `gorm:"size:100" json:"first_name"`
	LastName     string   `gorm:"size:100" json:"last_name"`
	Phone        string   `gorm:"size:32" json:"phone,omitempty"`
	Role         UserRole `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	IsActive     bool     `gorm:"default:true" json:"is_active"`

	SubscriptionStatus    SubscriptionStatus `gorm:"type:varchar(20);not null;default:'trial';index" json:"subscription_status"`
	SubscriptionTier      SubscriptionTier   `gorm:"type:varchar(32);not null;default:'starter'" json:"subscription_tier"`
	TrialExpiresAt        time.Time          `gorm:"not null;index" json:"trial_expires_at"`
	SubscriptionExpiresAt *time.Time         `json:"subscription_expires_at,omitempty"`
	StripeCustomerID      string             `gorm:"size:64" json:"-"`
	LastLoginAt           *time.Time         `json:"last_login_at,omitempty"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
