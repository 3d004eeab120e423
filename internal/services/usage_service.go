package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"crm_backend/internal/lock"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

// Порог, после которого фича попадает в рекомендации апгрейда
const upgradeThresholdPercent = 80.0

// UsageStatus - результат проверки квоты
type UsageStatus struct {
	Feature        string  `json:"feature"`
	Month          string  `json:"month"`
	Allowed        bool    `json:"allowed"`
	Unlimited      bool    `json:"unlimited"`
	UsageCount     int64   `json:"usage_count"`
	Limit          int64   `json:"limit"`
	PercentageUsed float64 `json:"percentage_used"`
	Available      int64   `json:"available"`
}

type UsageSummary struct {
	Month    string                  `json:"month"`
	Tier     models.SubscriptionTier `json:"tier"`
	Features []UsageStatus           `json:"features"`
}

type UpgradeRecommendations struct {
	CurrentTier    models.SubscriptionTier `json:"current_tier"`
	ShouldUpgrade  bool                    `json:"should_upgrade"`
	HighUsage      []UsageStatus           `json:"high_usage_features"`
	SuggestedPlans []subscription.Plan     `json:"suggested_plans"`
}

type UsageService interface {
	// Check - ленивая запись + живой лимит тарифа. Повторный вызов без Increment дает тот же результат.
	Check(ctx context.Context, db *gorm.DB, user *models.User, feature, month string) (*UsageStatus, error)
	// Increment не проверяет лимит: вызывающий делает Check до действия.
	Increment(ctx context.Context, db *gorm.DB, user *models.User, feature string, amount int64, month string) (*UsageStatus, error)
	// TryConsume атомарно проверяет и списывает квоту.
	TryConsume(ctx context.Context, db *gorm.DB, user *models.User, feature string, amount int64, month string) (*UsageStatus, error)
	Summary(ctx context.Context, db *gorm.DB, user *models.User, month string) (*UsageSummary, error)
	Recommendations(ctx context.Context, db *gorm.DB, user *models.User, month string) (*UpgradeRecommendations, error)
}

type usageService struct {
	usageRepo repositories.UsageRepository
	resolver  *subscription.Resolver
	locker    lock.Locker
	now       func() time.Time
}

func NewUsageService(usageRepo repositories.UsageRepository, resolver *subscription.Resolver, locker lock.Locker) UsageService {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &usageService{
		usageRepo: usageRepo,
		resolver:  resolver,
		locker:    locker,
		now:       time.Now,
	}
}

func (s *usageService) month(month string) string {
	if month == "" {
		return subscription.MonthKey(s.now())
	}
	return month
}

func (s *usageService) Check(ctx context.Context, db *gorm.DB, user *models.User, feature, month string) (*UsageStatus, error) {
	if err := s.validate(user, feature); err != nil {
		return nil, err
	}
	month = s.month(month)
	limit := s.resolver.ResolveFor(user, feature)

	record, err := s.usageRepo.FindOrCreate(db, user.ID, feature, month, snapshot(limit))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	status := buildUsageStatus(feature, month, record.UsageCount, limit)
	logger.UsageLog(user.ID, feature, month, status.UsageCount, status.Limit, status.Allowed)
	return status, nil
}

func (s *usageService) Increment(ctx context.Context, db *gorm.DB, user *models.User, feature string, amount int64, month string) (*UsageStatus, error) {
	if err := s.validate(user, feature); err != nil {
		return nil, err
	}
	if amount < 1 {
		return nil, apperrors.ErrInvalidOperation("usage", "amount must be at least 1")
	}
	month = s.month(month)
	limit := s.resolver.ResolveFor(user, feature)

	record, err := s.usageRepo.FindOrCreate(db, user.ID, feature, month, snapshot(limit))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if err := s.usageRepo.Increment(db, record.ID, amount); err != nil {
		return nil, handleUsageError(err)
	}

	// между чтением и UPDATE могли пройти чужие инкременты
	current, err := s.usageRepo.FindByID(db, record.ID)
	if err != nil {
		return nil, handleUsageError(err)
	}
	return buildUsageStatus(feature, month, current.UsageCount, limit), nil
}

func (s *usageService) TryConsume(ctx context.Context, db *gorm.DB, user *models.User, feature string, amount int64, month string) (*UsageStatus, error) {
	if err := s.validate(user, feature); err != nil {
		return nil, err
	}
	if amount < 1 {
		return nil, apperrors.ErrInvalidOperation("usage", "amount must be at least 1")
	}
	month = s.month(month)
	limit := s.resolver.ResolveFor(user, feature)

	if !limit.Unlimited && amount > limit.Value {
		return nil, apperrors.ErrQuotaExceeded(feature, 0, limit.Value)
	}

	key := fmt.Sprintf("usage:%s:%s:%s", user.ID, feature, month)
	unlock, err := s.locker.Obtain(ctx, key)
	if err != nil {
		// условный UPDATE все равно не даст превысить лимит
		logger.CtxWarn(ctx, "usage lock unavailable, relying on conditional update", "key", key, "error", err.Error())
		unlock = func() {}
	}
	defer unlock()

	record, err := s.usageRepo.FindOrCreate(db, user.ID, feature, month, snapshot(limit))
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	if limit.Unlimited {
		if err := s.usageRepo.Increment(db, record.ID, amount); err != nil {
			return nil, handleUsageError(err)
		}
	} else {
		ok, err := s.usageRepo.IncrementWithinLimit(db, record.ID, amount, limit.Value)
		if err != nil {
			return nil, apperrors.InternalError(err)
		}
		if !ok {
			current, err := s.usageRepo.FindByID(db, record.ID)
			if err != nil {
				return nil, handleUsageError(err)
			}
			logger.UsageLog(user.ID, feature, month, current.UsageCount, limit.Value, false)
			return nil, apperrors.ErrQuotaExceeded(feature, current.UsageCount, limit.Value)
		}
	}

	current, err := s.usageRepo.FindByID(db, record.ID)
	if err != nil {
		return nil, handleUsageError(err)
	}
	return buildUsageStatus(feature, month, current.UsageCount, limit), nil
}

func (s *usageService) Summary(ctx context.Context, db *gorm.DB, user *models.User, month string) (*UsageSummary, error) {
	if user == nil {
		return nil, apperrors.ErrNotFound(repositories.ErrUserNotFound)
	}
	month = s.month(month)

	// Summary только читает, записи не создаются
	records, err := s.usageRepo.FindByAccountMonth(db, user.ID, month)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	counts := make(map[string]int64, len(records))
	for _, r := range records {
		counts[r.FeatureName] = r.UsageCount
	}

	summary := &UsageSummary{
		Month: month,
		Tier:  s.resolver.EffectiveTier(user.SubscriptionTier),
	}
	for _, feature := range s.resolver.Features() {
		// тип фичи берем из базового тарифа: у master и white_label все unlimited
		if s.resolver.Resolve(subscription.DefaultTier, feature).Boolean {
			continue
		}
		limit := s.resolver.ResolveFor(user, feature)
		summary.Features = append(summary.Features, *buildUsageStatus(feature, month, counts[feature], limit))
	}
	return summary, nil
}

func (s *usageService) Recommendations(ctx context.Context, db *gorm.DB, user *models.User, month string) (*UpgradeRecommendations, error) {
	summary, err := s.Summary(ctx, db, user, month)
	if err != nil {
		return nil, err
	}

	rec := &UpgradeRecommendations{
		CurrentTier:    summary.Tier,
		HighUsage:      []UsageStatus{},
		SuggestedPlans: []subscription.Plan{},
	}
	if subscription.IsExempt(user.Role) {
		return rec, nil
	}

	for _, st := range summary.Features {
		if !st.Unlimited && st.PercentageUsed >= upgradeThresholdPercent {
			rec.HighUsage = append(rec.HighUsage, st)
		}
	}
	rec.ShouldUpgrade = len(rec.HighUsage) > 0

	for _, tier := range subscription.TiersAbove(summary.Tier) {
		if plan, ok := s.resolver.Plan(tier); ok {
			rec.SuggestedPlans = append(rec.SuggestedPlans, plan)
		}
	}
	return rec, nil
}

func (s *usageService) validate(user *models.User, feature string) error {
	if user == nil {
		return apperrors.ErrNotFound(repositories.ErrUserNotFound)
	}
	if !s.resolver.IsKnownFeature(feature) {
		return apperrors.ErrInvalidOperation("usage", "unknown feature: "+feature)
	}
	return nil
}

func buildUsageStatus(feature, month string, usage int64, limit subscription.Limit) *UsageStatus {
	st := &UsageStatus{
		Feature:    feature,
		Month:      month,
		Allowed:    limit.Allows(usage),
		Unlimited:  limit.Unlimited,
		UsageCount: usage,
		Limit:      limit.Number(),
		Available:  subscription.Unlimited,
	}
	if !limit.Unlimited {
		st.Available = max(limit.Value-usage, 0)
		if limit.Value > 0 {
			st.PercentageUsed = math.Round(float64(usage)/float64(limit.Value)*1000) / 10
		}
	}
	return st
}

func snapshot(limit subscription.Limit) *int64 {
	n := limit.Number()
	return &n
}

func handleUsageError(err error) error {
	if errors.Is(err, repositories.ErrUsageRecordNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}
