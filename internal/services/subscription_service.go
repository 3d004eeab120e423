package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm_backend/internal/email"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/payments"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

const paymentProviderStripe = "stripe"

type SubscriptionService interface {
	// Plan operations
	GetPlans(ctx context.Context) []subscription.Plan

	// Account subscription operations
	GetCurrent(ctx context.Context, db *gorm.DB, user *models.User) (*dto.CurrentSubscriptionResponse, error)
	Upgrade(ctx context.Context, db *gorm.DB, user *models.User, req *dto.UpgradeRequest) (*dto.UpgradeResponse, error)
	HandleWebhook(ctx context.Context, db *gorm.DB, payload []byte, signature string) (*dto.WebhookResult, error)
	ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]models.PaymentTransaction, error)

	// Admin operations
	AdminSetSubscription(ctx context.Context, db *gorm.DB, adminID, userID string, req *dto.AdminSubscriptionRequest) (*dto.UserDTO, error)
}

type subscriptionService struct {
	userRepo            repositories.UserRepository
	subscriptionRepo    repositories.SubscriptionRepository
	resolver            *subscription.Resolver
	gateway             payments.Gateway
	notificationService NotificationService
	mailer              *email.Mailer
	currency            string
	now                 func() time.Time
}

func NewSubscriptionService(
	userRepo repositories.UserRepository,
	subscriptionRepo repositories.SubscriptionRepository,
	resolver *subscription.Resolver,
	gateway payments.Gateway,
	notificationService NotificationService,
	mailer *email.Mailer,
) SubscriptionService {
	return &subscriptionService{
		userRepo:            userRepo,
		subscriptionRepo:    subscriptionRepo,
		resolver:            resolver,
		gateway:             gateway,
		notificationService: notificationService,
		mailer:              mailer,
		currency:            "usd",
		now:                 time.Now,
	}
}

// Plan operations

func (s *subscriptionService) GetPlans(ctx context.Context) []subscription.Plan {
	return s.resolver.Plans()
}

// Account subscription operations

func (s *subscriptionService) GetCurrent(ctx context.Context, db *gorm.DB, user *models.User) (*dto.CurrentSubscriptionResponse, error) {
	now := s.now()
	tier := s.resolver.EffectiveTier(user.SubscriptionTier)

	resp := &dto.CurrentSubscriptionResponse{
		Tier:                  tier,
		Status:                user.SubscriptionStatus,
		TrialExpiresAt:        user.TrialExpiresAt,
		SubscriptionExpiresAt: user.SubscriptionExpiresAt,
		DaysRemaining:         subscription.DaysRemaining(user, now),
		Access:                subscription.EvaluateAccess(user, now),
		Limits:                s.resolver.LimitsFor(user),
	}
	if plan, ok := s.resolver.Plan(tier); ok {
		resp.Plan = &plan
	}

	latest, err := s.subscriptionRepo.FindLatestSubscription(db, user.ID)
	if err != nil && !errors.Is(err, repositories.ErrSubscriptionNotFound) {
		return nil, apperrors.InternalError(err)
	}
	resp.LatestSubscription = latest
	return resp, nil
}

// Upgrade - checkout через платежный шлюз, без шлюза тариф применяется сразу
func (s *subscriptionService) Upgrade(ctx context.Context, db *gorm.DB, user *models.User, req *dto.UpgradeRequest) (*dto.UpgradeResponse, error) {
	tier, ok := subscription.ParseTier(req.Tier)
	if !ok {
		return nil, apperrors.ErrUnknownTier
	}
	cycle := models.BillingCycle(req.BillingCycle)
	price, ok := s.resolver.Price(tier, cycle)
	if !ok {
		return nil, apperrors.ErrUnknownTier
	}

	// тот же тариф можно продлить, но не понизить
	if user.SubscriptionStatus == models.SubscriptionStatusActive &&
		subscription.TierRank(tier) < subscription.TierRank(user.SubscriptionTier) {
		return nil, apperrors.ErrNotAnUpgrade
	}

	if s.gateway == nil || !s.gateway.Enabled() {
		return s.applyDirect(ctx, db, user, tier, cycle, price)
	}

	plan, _ := s.resolver.Plan(tier)
	session, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		UserID:       user.ID,
		Email:        user.Email,
		Tier:         string(tier),
		BillingCycle: string(cycle),
		PlanName:     plan.Name,
		Amount:       price,
		Currency:     s.currency,
	})
	if err != nil {
		return nil, apperrors.ErrProviderUnavailable(paymentProviderStripe, err)
	}

	payment := &models.PaymentTransaction{
		UserID:       user.ID,
		Provider:     paymentProviderStripe,
		ExternalID:   session.ID,
		Tier:         tier,
		BillingCycle: cycle,
		Amount:       price,
		Currency:     s.currency,
		Status:       models.PaymentStatusPending,
	}
	if err := s.subscriptionRepo.CreatePayment(db, payment); err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "checkout session created", "user_id", user.ID, "tier", tier, "session_id", session.ID)
	return &dto.UpgradeResponse{
		Mode:        dto.UpgradeModeCheckout,
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	}, nil
}

func (s *subscriptionService) applyDirect(ctx context.Context, db *gorm.DB, user *models.User, tier models.SubscriptionTier, cycle models.BillingCycle, price decimal.Decimal) (*dto.UpgradeResponse, error) {
	now := s.now()
	expiresAt := subscription.PeriodEnd(now, cycle)

	sub := &models.Subscription{
		UserID:             user.ID,
		Tier:               tier,
		BillingCycle:       cycle,
		Status:             models.SubscriptionStatusActive,
		Amount:             price,
		Currency:           s.currency,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   expiresAt,
	}

	err := inTx(db, func(tx *gorm.DB) error {
		if err := s.subscriptionRepo.CreateSubscription(tx, sub); err != nil {
			return apperrors.InternalError(err)
		}
		return s.activate(tx, user.ID, tier, expiresAt, "")
	})
	if err != nil {
		return nil, err
	}

	user.SubscriptionStatus = models.SubscriptionStatusActive
	user.SubscriptionTier = tier
	user.SubscriptionExpiresAt = &expiresAt

	logger.CtxInfo(ctx, "subscription upgraded without payment provider", "user_id", user.ID, "tier", tier, "amount", price.String())
	if err := s.notificationService.NotifySubscriptionActivated(ctx, db, user.ID, tier, expiresAt); err != nil {
		logger.CtxWarn(ctx, "activation notification failed", "user_id", user.ID, "error", err.Error())
	}

	userDTO := dto.NewUserDTO(user)
	return &dto.UpgradeResponse{
		Mode:         dto.UpgradeModeDirect,
		User:         &userDTO,
		Subscription: sub,
	}, nil
}

func (s *subscriptionService) activate(tx *gorm.DB, userID string, tier models.SubscriptionTier, expiresAt time.Time, customerID string) error {
	err := s.userRepo.UpdateSubscription(tx, userID, repositories.SubscriptionUpdate{
		Status:           models.SubscriptionStatusActive,
		Tier:             tier,
		ExpiresAt:        &expiresAt,
		StripeCustomerID: customerID,
	})
	if err != nil {
		return handleUserError(err)
	}
	return nil
}

// HandleWebhook - повторная доставка события не меняет состояние
func (s *subscriptionService) HandleWebhook(ctx context.Context, db *gorm.DB, payload []byte, signature string) (*dto.WebhookResult, error) {
	if s.gateway == nil {
		return nil, apperrors.ErrInvalidWebhook
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		logger.CtxWarn(ctx, "webhook rejected", "error", err.Error())
		return nil, apperrors.ErrInvalidWebhook.WithError(err)
	}

	result := &dto.WebhookResult{EventID: event.ID, EventType: event.Type}
	ctx = logger.WithJob(ctx, "webhook:"+event.Type)

	switch event.Type {
	case payments.EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, db, event, result)
	case payments.EventInvoicePaid:
		err = s.handleInvoicePaid(ctx, db, event, result)
	case payments.EventInvoiceFailed:
		err = s.handleInvoiceFailed(ctx, db, event, result)
	default:
		logger.CtxDebug(ctx, "webhook event ignored", "event_id", event.ID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *subscriptionService) handleCheckoutCompleted(ctx context.Context, db *gorm.DB, event *payments.WebhookEvent, result *dto.WebhookResult) error {
	payment, err := s.subscriptionRepo.FindPaymentByExternalID(db, event.SessionID)
	if err != nil && !errors.Is(err, repositories.ErrPaymentNotFound) {
		return apperrors.InternalError(err)
	}
	if payment != nil && payment.Status == models.PaymentStatusPaid {
		result.Duplicate = true
		return nil
	}

	userID := event.Metadata["user_id"]
	tier, ok := subscription.ParseTier(event.Metadata["tier"])
	if userID == "" || !ok {
		logger.CtxWarn(ctx, "checkout event without usable metadata", "event_id", event.ID)
		return apperrors.ErrInvalidWebhook
	}
	cycle := models.BillingCycle(event.Metadata["billing_cycle"])
	if cycle != models.BillingYearly {
		cycle = models.BillingMonthly
	}

	now := s.now()
	expiresAt := subscription.PeriodEnd(now, cycle)
	amount := payments.FromCents(event.AmountCents)
	sessionID := event.SessionID

	sub := &models.Subscription{
		UserID:               userID,
		Tier:                 tier,
		BillingCycle:         cycle,
		Status:               models.SubscriptionStatusActive,
		Amount:               amount,
		Currency:             orCurrency(event.Currency, s.currency),
		StripeSessionID:      &sessionID,
		StripeSubscriptionID: event.SubscriptionID,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     expiresAt,
	}

	err = inTx(db, func(tx *gorm.DB) error {
		if err := s.subscriptionRepo.CreateSubscription(tx, sub); err != nil {
			return apperrors.InternalError(err)
		}
		if err := s.activate(tx, userID, tier, expiresAt, event.CustomerID); err != nil {
			return err
		}
		if payment == nil {
			return s.recordPayment(tx, event, userID, &sub.ID, tier, cycle, models.PaymentStatusPaid, &now)
		}
		if err := s.subscriptionRepo.UpdatePaymentStatus(tx, event.SessionID, models.PaymentStatusPaid, &now); err != nil {
			return apperrors.InternalError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	result.Handled = true
	logger.CtxInfo(ctx, "subscription activated", "user_id", userID, "tier", tier, "expires_at", expiresAt)
	if err := s.notificationService.NotifySubscriptionActivated(ctx, db, userID, tier, expiresAt); err != nil {
		logger.CtxWarn(ctx, "activation notification failed", "user_id", userID, "error", err.Error())
	}
	return nil
}

func (s *subscriptionService) handleInvoicePaid(ctx context.Context, db *gorm.DB, event *payments.WebhookEvent, result *dto.WebhookResult) error {
	duplicate, err := s.seen(db, event.ID)
	if err != nil || duplicate {
		result.Duplicate = duplicate
		return err
	}

	sub, err := s.subscriptionRepo.FindByStripeSubscription(db, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			logger.CtxWarn(ctx, "invoice for unknown subscription", "stripe_subscription_id", event.SubscriptionID)
			return nil
		}
		return apperrors.InternalError(err)
	}

	now := s.now()
	expiresAt := subscription.PeriodEnd(now, sub.BillingCycle)
	if event.PeriodEnd != nil && event.PeriodEnd.After(now) {
		expiresAt = *event.PeriodEnd
	}

	err = inTx(db, func(tx *gorm.DB) error {
		sub.Status = models.SubscriptionStatusActive
		sub.CurrentPeriodEnd = expiresAt
		if err := s.subscriptionRepo.UpdateSubscription(tx, sub); err != nil {
			return apperrors.InternalError(err)
		}
		if err := s.activate(tx, sub.UserID, sub.Tier, expiresAt, event.CustomerID); err != nil {
			return err
		}
		return s.recordPayment(tx, event, sub.UserID, &sub.ID, sub.Tier, sub.BillingCycle, models.PaymentStatusPaid, &now)
	})
	if err != nil {
		return err
	}

	result.Handled = true
	logger.CtxInfo(ctx, "subscription renewed", "user_id", sub.UserID, "expires_at", expiresAt)
	return nil
}

func (s *subscriptionService) handleInvoiceFailed(ctx context.Context, db *gorm.DB, event *payments.WebhookEvent, result *dto.WebhookResult) error {
	duplicate, err := s.seen(db, event.ID)
	if err != nil || duplicate {
		result.Duplicate = duplicate
		return err
	}

	sub, err := s.subscriptionRepo.FindByStripeSubscription(db, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubscriptionNotFound) {
			logger.CtxWarn(ctx, "failed invoice for unknown subscription", "stripe_subscription_id", event.SubscriptionID)
			return nil
		}
		return apperrors.InternalError(err)
	}

	if err := s.recordPayment(db, event, sub.UserID, &sub.ID, sub.Tier, sub.BillingCycle, models.PaymentStatusFailed, nil); err != nil {
		return err
	}
	result.Handled = true
	logger.CtxWarn(ctx, "subscription payment failed", "user_id", sub.UserID, "tier", sub.Tier)

	if err := s.notificationService.NotifyPaymentFailed(ctx, db, sub.UserID, sub.Tier); err != nil {
		logger.CtxWarn(ctx, "payment failed notification not stored", "user_id", sub.UserID, "error", err.Error())
	}
	if s.mailer != nil && s.mailer.Enabled() {
		if user, err := s.userRepo.FindByID(db, sub.UserID); err == nil {
			if res := s.mailer.SendPaymentFailed(ctx, user.Email, user.FullName(), string(sub.Tier)); !res.Success {
				logger.CtxWarn(ctx, "payment failed email not sent", "user_id", sub.UserID, "error", res.Error)
			}
		}
	}
	return nil
}

// seen - событие уже записано как платеж
func (s *subscriptionService) seen(db *gorm.DB, eventID string) (bool, error) {
	_, err := s.subscriptionRepo.FindPaymentByExternalID(db, eventID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, repositories.ErrPaymentNotFound) {
		return false, nil
	}
	return false, apperrors.InternalError(err)
}

func (s *subscriptionService) recordPayment(db *gorm.DB, event *payments.WebhookEvent, userID string, subscriptionID *string,
	tier models.SubscriptionTier, cycle models.BillingCycle, status models.PaymentStatus, paidAt *time.Time) error {

	externalID := event.ID
	if event.Type == payments.EventCheckoutCompleted {
		externalID = event.SessionID
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"event_id":        event.ID,
		"event_type":      event.Type,
		"customer_id":     event.CustomerID,
		"subscription_id": event.SubscriptionID,
	})

	payment := &models.PaymentTransaction{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Provider:       paymentProviderStripe,
		ExternalID:     externalID,
		Tier:           tier,
		BillingCycle:   cycle,
		Amount:         payments.FromCents(event.AmountCents),
		Currency:       orCurrency(event.Currency, s.currency),
		Status:         status,
		Metadata:       datatypes.JSON(meta),
		PaidAt:         paidAt,
	}
	if err := s.subscriptionRepo.CreatePayment(db, payment); err != nil {
		return apperrors.InternalError(err)
	}
	return nil
}

func (s *subscriptionService) ListPayments(ctx context.Context, db *gorm.DB, userID string) ([]models.PaymentTransaction, error) {
	list, err := s.subscriptionRepo.ListUserPayments(db, userID)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return list, nil
}

// Admin operations

func (s *subscriptionService) AdminSetSubscription(ctx context.Context, db *gorm.DB, adminID, userID string, req *dto.AdminSubscriptionRequest) (*dto.UserDTO, error) {
	tier, ok := subscription.ParseTier(req.Tier)
	if !ok {
		return nil, apperrors.ErrUnknownTier
	}
	status := models.SubscriptionStatus(req.Status)

	update := repositories.SubscriptionUpdate{Status: status, Tier: tier}
	switch status {
	case models.SubscriptionStatusActive:
		expiresAt := subscription.PeriodEnd(s.now(), models.BillingMonthly)
		if req.ExpiresAt != nil {
			expiresAt = *req.ExpiresAt
		}
		update.ExpiresAt = &expiresAt
	case models.SubscriptionStatusTrial:
		update.TrialExpiresAt = req.ExpiresAt
	}

	if err := s.userRepo.UpdateSubscription(db, userID, update); err != nil {
		return nil, handleUserError(err)
	}
	user, err := s.userRepo.FindByID(db, userID)
	if err != nil {
		return nil, handleUserError(err)
	}

	logger.CtxInfo(ctx, "subscription changed by admin", "admin_id", adminID, "user_id", userID, "tier", tier, "status", status)
	if status == models.SubscriptionStatusActive && user.SubscriptionExpiresAt != nil {
		if err := s.notificationService.NotifySubscriptionActivated(ctx, db, userID, tier, *user.SubscriptionExpiresAt); err != nil {
			logger.CtxWarn(ctx, "activation notification failed", "user_id", userID, "error", err.Error())
		}
	}

	out := dto.NewUserDTO(user)
	return &out, nil
}

func orCurrency(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
