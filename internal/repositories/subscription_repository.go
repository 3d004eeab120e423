package repositories

import (
	"errors"
	"time"

	"crm_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPaymentNotFound      = errors.New("payment transaction not found")
)

type SubscriptionRepository interface {
	// Subscription operations
	CreateSubscription(db *gorm.DB, sub *models.Subscription) error
	FindSubscriptionBySession(db *gorm.DB, sessionID string) (*models.Subscription, error)
	FindLatestSubscription(db *gorm.DB, userID string) (*models.Subscription, error)
	FindByStripeSubscription(db *gorm.DB, stripeSubscriptionID string) (*models.Subscription, error)
	UpdateSubscription(db *gorm.DB, sub *models.Subscription) error
	ListUserSubscriptions(db *gorm.DB, userID string) ([]models.Subscription, error)

	// PaymentTransaction operations
	CreatePayment(db *gorm.DB, payment *models.PaymentTransaction) error
	FindPaymentByExternalID(db *gorm.DB, externalID string) (*models.PaymentTransaction, error)
	UpdatePaymentStatus(db *gorm.DB, externalID string, status models.PaymentStatus, paidAt *time.Time) error
	ListUserPayments(db *gorm.DB, userID string) ([]models.PaymentTransaction, error)
}

type SubscriptionRepositoryImpl struct{}

func NewSubscriptionRepository() SubscriptionRepository {
	return &SubscriptionRepositoryImpl{}
}

func (r *SubscriptionRepositoryImpl) CreateSubscription(db *gorm.DB, sub *models.Subscription) error {
	return db.Create(sub).Error
}

func (r *SubscriptionRepositoryImpl) FindSubscriptionBySession(db *gorm.DB, sessionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.First(&sub, "stripe_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepositoryImpl) FindLatestSubscription(db *gorm.DB, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Where("user_id = ?", userID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepositoryImpl) FindByStripeSubscription(db *gorm.DB, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Where("stripe_subscription_id = ?", stripeSubscriptionID).Order("created_at DESC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepositoryImpl) UpdateSubscription(db *gorm.DB, sub *models.Subscription) error {
	result := db.Save(sub)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *SubscriptionRepositoryImpl) ListUserSubscriptions(db *gorm.DB, userID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepositoryImpl) CreatePayment(db *gorm.DB, payment *models.PaymentTransaction) error {
	return db.Create(payment).Error
}

func (r *SubscriptionRepositoryImpl) FindPaymentByExternalID(db *gorm.DB, externalID string) (*models.PaymentTransaction, error) {
	var payment models.PaymentTransaction
	if err := db.First(&payment, "external_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *SubscriptionRepositoryImpl) UpdatePaymentStatus(db *gorm.DB, externalID string, status models.PaymentStatus, paidAt *time.Time) error {
	result := db.Model(&models.PaymentTransaction{}).
		Where("external_id = ?", externalID).
		Updates(map[string]interface{}{
			"status":     status,
			"paid_at":    paidAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *SubscriptionRepositoryImpl) ListUserPayments(db *gorm.DB, userID string) ([]models.PaymentTransaction, error) {
	var payments []models.PaymentTransaction
	err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}
