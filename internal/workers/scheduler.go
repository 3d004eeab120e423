package workers

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"crm_backend/internal/logger"
)

const (
	// каждый день в 09:00, формат с секундами
	DefaultTrialSpec        = "0 0 9 * * *"
	DefaultSubscriptionSpec = "0 30 * * * *"
	jobTimeout              = 5 * time.Minute
)

// Scheduler запускает периодические задачи внутри процесса
type Scheduler struct {
	cron         *cron.Cron
	trial        *TrialWorker
	subscription *SubscriptionWorker
}

func NewScheduler(trial *TrialWorker, subscription *SubscriptionWorker) *Scheduler {
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		trial:        trial,
		subscription: subscription,
	}
}

// Start регистрирует задачи и возвращается сразу. Остановка - по ctx.
func (s *Scheduler) Start(ctx context.Context, trialSpec string) error {
	if trialSpec == "" {
		trialSpec = DefaultTrialSpec
	}

	if _, err := s.cron.AddFunc(trialSpec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		if _, err := s.trial.Sweep(jobCtx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			logger.WorkerLog("trial_sweep", "run", err)
		}
	}); err != nil {
		return err
	}

	if s.subscription != nil {
		if _, err := s.cron.AddFunc(DefaultSubscriptionSpec, func() {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()
			_, _ = s.subscription.ExpireLapsed(jobCtx)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info("Scheduler started", "trial_spec", trialSpec, "jobs", len(s.cron.Entries()))

	go func() {
		<-ctx.Done()
		stopped := s.cron.Stop()
		<-stopped.Done()
		logger.Info("Scheduler stopped")
	}()
	return nil
}
