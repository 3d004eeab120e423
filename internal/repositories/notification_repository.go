package repositories

import (
	"encoding/json"
	"errors"
	"time"

	"crm_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrInvalidNotificationData = errors.New("invalid notification data")
)

type NotificationRepository interface {
	CreateNotification(db *gorm.DB, notification *models.Notification) error
	CreateTypedNotification(db *gorm.DB, userID, notificationType, title, message string, data map[string]interface{}) (*models.Notification, error)
	FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error)
	MarkAsRead(db *gorm.DB, userID, notificationID string) error
	MarkAllAsRead(db *gorm.DB, userID string) error
	GetUnreadCount(db *gorm.DB, userID string) (int64, error)
	// ExistsSince нужен, чтобы повторный прогон рассылки не дублировал предупреждения
	ExistsSince(db *gorm.DB, userID, notificationType string, since time.Time) (bool, error)
}

type NotificationCriteria struct {
	UnreadOnly bool   `form:"unread_only"`
	Type       string `form:"type"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

type NotificationRepositoryImpl struct{}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

func (r *NotificationRepositoryImpl) CreateNotification(db *gorm.DB, notification *models.Notification) error {
	if notification.UserID == "" || notification.Type == "" || notification.Title == "" {
		return ErrInvalidNotificationData
	}
	return db.Create(notification).Error
}

func (r *NotificationRepositoryImpl) CreateTypedNotification(db *gorm.DB, userID, notificationType, title, message string, data map[string]interface{}) (*models.Notification, error) {
	notification := &models.Notification{
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
	}
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, ErrInvalidNotificationData
		}
		notification.Data = datatypes.JSON(raw)
	}
	if err := r.CreateNotification(db, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

func (r *NotificationRepositoryImpl) FindUserNotifications(db *gorm.DB, userID string, criteria NotificationCriteria) ([]models.Notification, int64, error) {
	var notifications []models.Notification
	query := db.Model(&models.Notification{}).Where("user_id = ?", userID)

	if criteria.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if criteria.Type != "" {
		query = query.Where("type = ?", criteria.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (criteria.Page - 1) * criteria.PageSize
	err := query.Order("created_at DESC").Limit(criteria.PageSize).Offset(offset).Find(&notifications).Error
	return notifications, total, err
}

func (r *NotificationRepositoryImpl) MarkAsRead(db *gorm.DB, userID, notificationID string) error {
	result := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) MarkAllAsRead(db *gorm.DB, userID string) error {
	return db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error
}

func (r *NotificationRepositoryImpl) GetUnreadCount(db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) ExistsSince(db *gorm.DB, userID, notificationType string, since time.Time) (bool, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, notificationType, since).
		Count(&count).Error
	return count > 0, err
}
