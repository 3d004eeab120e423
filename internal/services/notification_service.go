package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/pkg/apperrors"
)

type NotificationService interface {
	// Notification operations
	Notify(ctx context.Context, db *gorm.DB, userID, notificationType, title, message string, data map[string]interface{}) (*models.Notification, error)
	GetUserNotifications(ctx context.Context, db *gorm.DB, userID string, query dto.NotificationListQuery) (*dto.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, db *gorm.DB, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, db *gorm.DB, userID string) error
	GetUnreadCount(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	WasNotifiedSince(ctx context.Context, db *gorm.DB, userID, notificationType string, since time.Time) (bool, error)

	// Factory methods for common notification types
	NotifyWelcome(ctx context.Context, db *gorm.DB, user *models.User, trialDays int) error
	NotifyTrialWarning(ctx context.Context, db *gorm.DB, user *models.User, daysRemaining int) error
	NotifyTrialExpired(ctx context.Context, db *gorm.DB, user *models.User) error
	NotifySubscriptionActivated(ctx context.Context, db *gorm.DB, userID string, tier models.SubscriptionTier, expiresAt time.Time) error
	NotifyPaymentFailed(ctx context.Context, db *gorm.DB, userID string, tier models.SubscriptionTier) error
	NotifyInboundMessage(ctx context.Context, db *gorm.DB, userID string, conv *models.Conversation, preview string) error
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	publisher        EventPublisher
}

func NewNotificationService(notificationRepo repositories.NotificationRepository, publisher EventPublisher) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		publisher:        publisherOrNoop(publisher),
	}
}

func (s *notificationService) Notify(ctx context.Context, db *gorm.DB, userID, notificationType, title, message string, data map[string]interface{}) (*models.Notification, error) {
	n, err := s.notificationRepo.CreateTypedNotification(db, userID, notificationType, title, message, data)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidNotificationData) {
			return nil, apperrors.ErrInvalidOperation("notification", err.Error())
		}
		return nil, apperrors.InternalError(err)
	}
	s.publisher.PublishToUser(userID, EventNotificationCreated, n)
	return n, nil
}

func (s *notificationService) GetUserNotifications(ctx context.Context, db *gorm.DB, userID string, query dto.NotificationListQuery) (*dto.NotificationListResponse, error) {
	page, pageSize := normalizePage(query.Page, query.PageSize)

	items, total, err := s.notificationRepo.FindUserNotifications(db, userID, repositories.NotificationCriteria{
		UnreadOnly: query.UnreadOnly,
		Type:       query.Type,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	unread, err := s.notificationRepo.GetUnreadCount(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	return &dto.NotificationListResponse{
		ListResponse: dto.NewListResponse(items, total, page, pageSize),
		UnreadCount:  unread,
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, db *gorm.DB, userID, notificationID string) error {
	if err := s.notificationRepo.MarkAsRead(db, userID, notificationID); err != nil {
		return handleNotificationError(err)
	}
	return nil
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, db *gorm.DB, userID string) error {
	if err := s.notificationRepo.MarkAllAsRead(db, userID); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

func (s *notificationService) GetUnreadCount(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	n, err := s.notificationRepo.GetUnreadCount(db, userID)
	if err != nil {
		return 0, apperrors.InternalError(err)
	}
	return n, nil
}

func (s *notificationService) WasNotifiedSince(ctx context.Context, db *gorm.DB, userID, notificationType string, since time.Time) (bool, error) {
	ok, err := s.notificationRepo.ExistsSince(db, userID, notificationType, since)
	if err != nil {
		return false, apperrors.InternalError(err)
	}
	return ok, nil
}

// Factory methods

func (s *notificationService) NotifyWelcome(ctx context.Context, db *gorm.DB, user *models.User, trialDays int) error {
	_, err := s.Notify(ctx, db, user.ID, models.NotificationWelcome,
		"Welcome aboard!",
		fmt.Sprintf("Your %d-day free trial has started. Explore contacts, pipelines and campaigns.", trialDays),
		map[string]interface{}{"trial_expires_at": user.TrialExpiresAt})
	return err
}

func (s *notificationService) NotifyTrialWarning(ctx context.Context, db *gorm.DB, user *models.User, daysRemaining int) error {
	title := fmt.Sprintf("Your trial expires in %d days", daysRemaining)
	if daysRemaining == 1 {
		title = "Your trial expires tomorrow"
	}
	_, err := s.Notify(ctx, db, user.ID, models.NotificationTrialWarning, title,
		"Upgrade now to keep access to your contacts, pipelines and campaigns.",
		map[string]interface{}{"days_remaining": daysRemaining, "trial_expires_at": user.TrialExpiresAt})
	return err
}

func (s *notificationService) NotifyTrialExpired(ctx context.Context, db *gorm.DB, user *models.User) error {
	_, err := s.Notify(ctx, db, user.ID, models.NotificationTrialExpired,
		"Your free trial has ended",
		"Your data is safe. Choose a plan to continue where you left off.",
		map[string]interface{}{"trial_expires_at": user.TrialExpiresAt})
	return err
}

func (s *notificationService) NotifySubscriptionActivated(ctx context.Context, db *gorm.DB, userID string, tier models.SubscriptionTier, expiresAt time.Time) error {
	_, err := s.Notify(ctx, db, userID, models.NotificationSubscription,
		"Subscription activated",
		fmt.Sprintf("Your %s plan is active until %s.", tier, expiresAt.Format("2006-01-02")),
		map[string]interface{}{"tier": tier, "expires_at": expiresAt})
	if err == nil {
		s.publisher.PublishToUser(userID, EventSubscriptionChanged, map[string]interface{}{"tier": tier, "expires_at": expiresAt})
	}
	return err
}

func (s *notificationService) NotifyPaymentFailed(ctx context.Context, db *gorm.DB, userID string, tier models.SubscriptionTier) error {
	_, err := s.Notify(ctx, db, userID, models.NotificationPaymentFailed,
		"Payment failed",
		"We could not process your latest payment. Please update your billing details.",
		map[string]interface{}{"tier": tier})
	return err
}

func (s *notificationService) NotifyInboundMessage(ctx context.Context, db *gorm.DB, userID string, conv *models.Conversation, preview string) error {
	if r := []rune(preview); len(r) > 140 {
		preview = string(r[:140]) + "..."
	}
	_, err := s.Notify(ctx, db, userID, models.NotificationInboundMessage,
		"New message", preview,
		map[string]interface{}{"conversation_id": conv.ID, "channel": conv.Channel, "priority": conv.AIPriority})
	if err != nil {
		logger.CtxWarn(ctx, "inbound message notification failed", "conversation_id", conv.ID, "error", err.Error())
	}
	return err
}

func handleNotificationError(err error) error {
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}

// normalizePage - общие границы пагинации для сервисов
func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
