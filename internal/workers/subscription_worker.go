package workers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"crm_backend/internal/logger"
	"crm_backend/internal/repositories"
)

// SubscriptionWorker переводит оплаченные подписки с прошедшей датой окончания в expired.
// Гейт доступа и так смотрит на subscription_expires_at, здесь только статус в БД.
type SubscriptionWorker struct {
	db       *gorm.DB
	userRepo repositories.UserRepository
	now      func() time.Time
}

func NewSubscriptionWorker(db *gorm.DB, userRepo repositories.UserRepository) *SubscriptionWorker {
	return &SubscriptionWorker{db: db, userRepo: userRepo, now: time.Now}
}

func (w *SubscriptionWorker) ExpireLapsed(ctx context.Context) (int64, error) {
	n, err := w.userRepo.ExpireLapsedSubscriptions(w.db, w.now())
	if err != nil {
		logger.WorkerLog("subscription_expiry", "expire", err)
		return 0, err
	}
	if n > 0 {
		logger.CtxInfo(ctx, "marked subscriptions as expired", "count", n)
	}
	return n, nil
}
