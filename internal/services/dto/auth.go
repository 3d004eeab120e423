package dto

import (
	"time"

	"crm_backend/internal/models"
	"crm_backend/internal/subscription"
)

// RegisterRequest - запрос регистрации
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	// Название агентства, по умолчанию "<имя>'s Agency"
	CompanyName string `json:"company_name" validate:"omitempty,max=255"`
}

// LoginRequest - запрос входа
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse - токен + аккаунт + состояние доступа
type AuthResponse struct {
	AccessToken string                      `json:"access_token"`
	TokenType   string                      `json:"token_type"`
	ExpiresIn   int64                       `json:"expires_in"`
	User        UserDTO                     `json:"user"`
	Access      subscription.AccessDecision `json:"access"`
}

// MeResponse - текущий аккаунт, доступен и при истекшем триале
type MeResponse struct {
	User        UserDTO                     `json:"user"`
	Access      subscription.AccessDecision `json:"access"`
	SubAccounts []models.SubAccount         `json:"sub_accounts"`
}

// UserDTO - аккаунт без секретов
type UserDTO struct {
	ID                    string                    `json:"id"`
	Email                 string                    `json:"email"`
	FirstName             string                    `json:"first_name"`
	LastName              string                    `json:"last_name"`
	Phone                 string                    `json:"phone,omitempty"`
	Role                  models.UserRole           `json:"role"`
	SubscriptionStatus    models.SubscriptionStatus `json:"subscription_status"`
	SubscriptionTier      models.SubscriptionTier   `json:"subscription_tier"`
	TrialExpiresAt        time.Time                 `json:"trial_expires_at"`
	SubscriptionExpiresAt *time.Time                `json:"subscription_expires_at,omitempty"`
	LastLoginAt           *time.Time                `json:"last_login_at,omitempty"`
	CreatedAt             time.Time                 `json:"created_at"`
}

func NewUserDTO(u *models.User) UserDTO {
	return UserDTO{
		ID:                    u.ID,
		Email:                 u.Email,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		Phone:                 u.Phone,
		Role:                  u.Role,
		SubscriptionStatus:    u.SubscriptionStatus,
		SubscriptionTier:      u.SubscriptionTier,
		TrialExpiresAt:        u.TrialExpiresAt,
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
		LastLoginAt:           u.LastLoginAt,
		CreatedAt:             u.CreatedAt,
	}
}
