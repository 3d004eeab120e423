package repositories

import (
	"errors"
	"strings"
	"time"

	"crm_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	FindByID(db *gorm.DB, id string) (*models.User, error)
	FindByEmail(db *gorm.DB, email string) (*models.User, error)
	Update(db *gorm.DB, user *models.User) error
	UpdateSubscription(db *gorm.DB, userID string, update SubscriptionUpdate) error
	UpdateLastLogin(db *gorm.DB, userID string, at time.Time) error
	CountByRole(db *gorm.DB, role models.UserRole) (int64, error)

	// Trial lifecycle
	FindTrialsExpiringBetween(db *gorm.DB, from, to time.Time) ([]models.User, error)
	MarkExpired(db *gorm.DB, userID string) error
	ExpireLapsedSubscriptions(db *gorm.DB, now time.Time) (int64, error)
}

// SubscriptionUpdate - поля подписки, которые меняются при апгрейде/вебхуке/админке
type SubscriptionUpdate struct {
	Status    models.SubscriptionStatus
	Tier      models.SubscriptionTier
	ExpiresAt *time.Time
	// опциональные поля, пустые не трогаем
	TrialExpiresAt   *time.Time
	StripeCustomerID string
}

type UserRepositoryImpl struct{}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

func (r *UserRepositoryImpl) Create(db *gorm.DB, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	var existing models.User
	if err := db.Where("email = ?", user.Email).First(&existing).Error; err == nil {
		return ErrUserAlreadyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return db.Create(user).Error
}

func (r *UserRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) Update(db *gorm.DB, user *models.User) error {
	result := db.Model(user).Updates(map[string]interface{}{
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"phone":      user.Phone,
		"is_active":  user.IsActive,
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepositoryImpl) UpdateSubscription(db *gorm.DB, userID string, update SubscriptionUpdate) error {
	fields := map[string]interface{}{
		"subscription_status":     update.Status,
		"subscription_tier":       update.Tier,
		"subscription_expires_at": update.ExpiresAt,
		"updated_at":              time.Now(),
	}
	if update.TrialExpiresAt != nil {
		fields["trial_expires_at"] = *update.TrialExpiresAt
	}
	if update.StripeCustomerID != "" {
		fields["stripe_customer_id"] = update.StripeCustomerID
	}

	result := db.Model(&models.User{}).Where("id = ?", userID).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepositoryImpl) UpdateLastLogin(db *gorm.DB, userID string, at time.Time) error {
	return db.Model(&models.User{}).Where("id = ?", userID).Update("last_login_at", at).Error
}

func (r *UserRepositoryImpl) CountByRole(db *gorm.DB, role models.UserRole) (int64, error) {
	var count int64
	err := db.Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

// FindTrialsExpiringBetween - пользователи на триале (кроме master), у которых
// trial_expires_at попадает в [from, to]
func (r *UserRepositoryImpl) FindTrialsExpiringBetween(db *gorm.DB, from, to time.Time) ([]models.User, error) {
	var users []models.User
	err := db.Where("subscription_status = ? AND role <> ? AND trial_expires_at BETWEEN ? AND ?",
		models.SubscriptionStatusTrial, models.UserRoleMaster, from, to).
		Order("trial_expires_at ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepositoryImpl) MarkExpired(db *gorm.DB, userID string) error {
	result := db.Model(&models.User{}).
		Where("id = ? AND subscription_status = ?", userID, models.SubscriptionStatusTrial).
		Updates(map[string]interface{}{
			"subscription_status": models.SubscriptionStatusExpired,
			"updated_at":          time.Now(),
		})
	return result.Error
}

// ExpireLapsedSubscriptions - active с прошедшим subscription_expires_at
func (r *UserRepositoryImpl) ExpireLapsedSubscriptions(db *gorm.DB, now time.Time) (int64, error) {
	result := db.Model(&models.User{}).
		Where("subscription_status = ? AND role <> ? AND subscription_expires_at IS NOT NULL AND subscription_expires_at < ?",
			models.SubscriptionStatusActive, models.UserRoleMaster, now).
		Updates(map[string]interface{}{
			"subscription_status": models.SubscriptionStatusExpired,
			"updated_at":          now,
		})
	return result.RowsAffected, result.Error
}
