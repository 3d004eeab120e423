package workers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"crm_backend/internal/email"
	"crm_backend/internal/lock"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services"
)

const trialSweepLockKey = "sweep:trial-notifications"

var ErrSweepInProgress = errors.New("trial sweep already running on another instance")

// SweepResult - итог одного прохода
type SweepResult struct {
	Warnings map[int]int `json:"warnings"` // days_remaining -> отправлено
	Skipped  int         `json:"skipped"`  // уже предупреждали
	Expired  int         `json:"expired"`
	Failures int         `json:"failures"`
}

// TrialWorker шлет предупреждения об окончании триала и переводит истекшие триалы в expired
type TrialWorker struct {
	db                  *gorm.DB
	userRepo            repositories.UserRepository
	notificationService services.NotificationService
	mailer              *email.Mailer
	locker              lock.Locker
	warningDays         []int
	window              time.Duration
	now                 func() time.Time
}

func NewTrialWorker(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	notificationService services.NotificationService,
	mailer *email.Mailer,
	locker lock.Locker,
	warningDays []int,
	windowHours int,
) *TrialWorker {
	if len(warningDays) == 0 {
		warningDays = []int{7, 1}
	}
	if windowHours <= 0 {
		windowHours = 12
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &TrialWorker{
		db:                  db,
		userRepo:            userRepo,
		notificationService: notificationService,
		mailer:              mailer,
		locker:              locker,
		warningDays:         warningDays,
		window:              time.Duration(windowHours) * time.Hour,
		now:                 time.Now,
	}
}

// Sweep - один проход. Повторный запуск в том же окне не дублирует предупреждения.
func (w *TrialWorker) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx = logger.WithJob(ctx, "trial_sweep")

	unlock, err := w.locker.Obtain(ctx, trialSweepLockKey)
	if err != nil {
		logger.WorkerLog("trial_sweep", "lock", err)
		return nil, ErrSweepInProgress
	}
	defer unlock()

	now := w.now()
	result := &SweepResult{Warnings: make(map[int]int, len(w.warningDays))}

	for _, days := range w.warningDays {
		if err := w.warn(ctx, now, days, result); err != nil {
			logger.WorkerLog("trial_sweep", "warn", err)
			return result, err
		}
	}
	if err := w.expire(ctx, now, result); err != nil {
		logger.WorkerLog("trial_sweep", "expire", err)
		return result, err
	}

	logger.CtxInfo(ctx, "trial sweep finished",
		"warnings", result.Warnings,
		"skipped", result.Skipped,
		"expired", result.Expired,
		"failures", result.Failures,
	)
	return result, nil
}

func (w *TrialWorker) warn(ctx context.Context, now time.Time, days int, result *SweepResult) error {
	target := now.Add(time.Duration(days) * 24 * time.Hour)
	users, err := w.userRepo.FindTrialsExpiringBetween(w.db, target.Add(-w.window), target.Add(w.window))
	if err != nil {
		return err
	}

	// окно дедупликации шире окна выборки, но короче разрыва между 7 и 1 днем
	since := now.Add(-3 * w.window)
	for i := range users {
		user := &users[i]
		sent, err := w.notificationService.WasNotifiedSince(ctx, w.db, user.ID, models.NotificationTrialWarning, since)
		if err != nil {
			result.Failures++
			logger.CtxWarn(ctx, "trial warning dedupe check failed", "user_id", user.ID, "error", err.Error())
			continue
		}
		if sent {
			result.Skipped++
			continue
		}

		if err := w.notificationService.NotifyTrialWarning(ctx, w.db, user, days); err != nil {
			result.Failures++
			logger.CtxWarn(ctx, "trial warning notification failed", "user_id", user.ID, "error", err.Error())
			continue
		}
		if w.emailEnabled() {
			// in-app уведомление уже есть, письмо best effort
			if res := w.mailer.SendTrialWarning(ctx, user.Email, user.FirstName, days); !res.Success {
				logger.CtxWarn(ctx, "trial warning email not sent", "user_id", user.ID, "error", res.Error)
			}
		}
		result.Warnings[days]++
	}
	return nil
}

func (w *TrialWorker) expire(ctx context.Context, now time.Time, result *SweepResult) error {
	users, err := w.userRepo.FindTrialsExpiringBetween(w.db, now.Add(-24*time.Hour), now)
	if err != nil {
		return err
	}

	for i := range users {
		user := &users[i]
		if err := w.userRepo.MarkExpired(w.db, user.ID); err != nil {
			result.Failures++
			logger.CtxWarn(ctx, "failed to mark trial expired", "user_id", user.ID, "error", err.Error())
			continue
		}
		result.Expired++

		if err := w.notificationService.NotifyTrialExpired(ctx, w.db, user); err != nil {
			logger.CtxWarn(ctx, "trial expired notification failed", "user_id", user.ID, "error", err.Error())
		}
		if w.emailEnabled() {
			if res := w.mailer.SendTrialExpired(ctx, user.Email, user.FirstName); !res.Success {
				logger.CtxWarn(ctx, "trial expired email not sent", "user_id", user.ID, "error", res.Error)
			}
		}
	}
	return nil
}

func (w *TrialWorker) emailEnabled() bool {
	return w.mailer != nil && w.mailer.Enabled()
}
