package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crm_backend/internal/lock"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

// memUsageRepo повторяет семантику условного UPDATE из UsageRepositoryImpl
type memUsageRepo struct {
	mu      sync.Mutex
	records map[string]*models.UsageRecord
	seq     int
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{records: map[string]*models.UsageRecord{}}
}

func (r *memUsageRepo) key(account, feature, month string) string {
	return account + "|" + feature + "|" + month
}

func (r *memUsageRepo) FindOrCreate(_ *gorm.DB, accountID, feature, month string, limit *int64) (*models.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(accountID, feature, month)
	rec, ok := r.records[k]
	if !ok {
		r.seq++
		rec = &models.UsageRecord{AccountID: accountID, FeatureName: feature, Month: month, UsageLimit: limit}
		rec.ID = k
		r.records[k] = rec
	}
	cp := *rec
	return &cp, nil
}

func (r *memUsageRepo) find(id string) *models.UsageRecord {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (r *memUsageRepo) Increment(_ *gorm.DB, id string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil {
		return repositories.ErrUsageRecordNotFound
	}
	rec.UsageCount += amount
	return nil
}

func (r *memUsageRepo) IncrementWithinLimit(_ *gorm.DB, id string, amount, limit int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil || rec.UsageCount+amount > limit {
		return false, nil
	}
	rec.UsageCount += amount
	return true, nil
}

func (r *memUsageRepo) FindByID(_ *gorm.DB, id string) (*models.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.find(id)
	if rec == nil {
		return nil, repositories.ErrUsageRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memUsageRepo) FindByAccountMonth(_ *gorm.DB, accountID, month string) ([]models.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UsageRecord
	for _, rec := range r.records {
		if rec.AccountID == accountID && rec.Month == month {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// countingLocker считает взятые локи
type countingLocker struct{ obtained int32 }

func (l *countingLocker) Obtain(context.Context, string) (lock.Unlock, error) {
	atomic.AddInt32(&l.obtained, 1)
	return func() {}, nil
}

func newTestUsageService(repo repositories.UsageRepository, locker lock.Locker) *usageService {
	svc := NewUsageService(repo, subscription.NewResolver(nil), locker).(*usageService)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func starterUser() *models.User {
	u := &models.User{Role: models.UserRoleUser}
	u.ID = "user-1"
	subscription.NewTrial(u, time.Now(), 30)
	return u
}

func TestUsageCheck_LazyCreateAndIdempotent(t *testing.T) {
	repo := newMemUsageRepo()
	svc := newTestUsageService(repo, nil)
	ctx := context.Background()
	user := starterUser()

	first, err := svc.Check(ctx, nil, user, subscription.FeatureContacts, "")
	require.NoError(t, err)
	second, err := svc.Check(ctx, nil, user, subscription.FeatureContacts, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "2024-03", first.Month)
	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1000), first.Limit)
	assert.Len(t, repo.records, 1)
}

func TestUsageCheck_QuotaBoundary(t *testing.T) {
	repo := newMemUsageRepo()
	svc := newTestUsageService(repo, nil)
	ctx := context.Background()
	user := starterUser()
	feature := subscription.FeatureContacts

	_, err := svc.Increment(ctx, nil, user, feature, 999, "")
	require.NoError(t, err)

	st, err := svc.Check(ctx, nil, user, feature, "")
	require.NoError(t, err)
	assert.True(t, st.Allowed)
	assert.Equal(t, int64(1), st.Available)

	st, err = svc.Increment(ctx, nil, user, feature, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), st.UsageCount)

	st, err = svc.Check(ctx, nil, user, feature, "")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
	assert.Equal(t, 100.0, st.PercentageUsed)
	assert.Equal(t, int64(0), st.Available)
}

func TestUsageCheck_MonthRollover(t *testing.T) {
	repo := newMemUsageRepo()
	svc := newTestUsageService(repo, nil)
	ctx := context.Background()
	user := starterUser()

	_, err := svc.Increment(ctx, nil, user, subscription.FeatureEmailSends, 2000, "2024-03")
	require.NoError(t, err)

	march, err := svc.Check(ctx, nil, user, subscription.FeatureEmailSends, "2024-03")
	require.NoError(t, err)
	april, err := svc.Check(ctx, nil, user, subscription.FeatureEmailSends, "2024-04")
	require.NoError(t, err)

	assert.False(t, march.Allowed)
	assert.True(t, april.Allowed)
	assert.Equal(t, int64(0), april.UsageCount)
}

func TestUsageCheck_UnknownFeatureAndBadAmount(t *testing.T) {
	svc := newTestUsageService(newMemUsageRepo(), nil)
	ctx := context.Background()
	user := starterUser()

	_, err := svc.Check(ctx, nil, user, "teleportation", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidOperation))

	_, err = svc.Increment(ctx, nil, user, subscription.FeatureContacts, 0, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidOperation))

	_, err = svc.Check(ctx, nil, nil, subscription.FeatureContacts, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestUsageCheck_LiveLimitAfterUpgrade(t *testing.T) {
	repo := newMemUsageRepo()
	svc := newTestUsageService(repo, nil)
	ctx := context.Background()
	user := starterUser()

	_, err := svc.Increment(ctx, nil, user, subscription.FeatureContacts, 1000, "")
	require.NoError(t, err)

	user.SubscriptionTier = models.TierProfessional
	st, err := svc.Check(ctx, nil, user, subscription.FeatureContacts, "")
	require.NoError(t, err)

	assert.True(t, st.Allowed)
	assert.Equal(t, int64(10000), st.Limit)
	// снимок остался от starter
	for _, rec := range repo.records {
		require.NotNil(t, rec.UsageLimit)
		assert.Equal(t, int64(1000), *rec.UsageLimit)
	}
}

// interleavedUsageRepo дописывает чужой инкремент сразу после чтения записи
type interleavedUsageRepo struct {
	*memUsageRepo
	other int64
}

func (r *interleavedUsageRepo) FindOrCreate(db *gorm.DB, accountID, feature, month string, limit *int64) (*models.UsageRecord, error) {
	rec, err := r.memUsageRepo.FindOrCreate(db, accountID, feature, month, limit)
	if err != nil {
		return nil, err
	}
	return rec, r.memUsageRepo.Increment(db, rec.ID, r.other)
}

func TestIncrement_ReportsCountAfterConcurrentWrites(t *testing.T) {
	repo := &interleavedUsageRepo{memUsageRepo: newMemUsageRepo(), other: 5}
	svc := newTestUsageService(repo, nil)
	user := starterUser()

	st, err := svc.Increment(context.Background(), nil, user, subscription.FeatureContacts, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.UsageCount)

	st, err = svc.Increment(context.Background(), nil, user, subscription.FeatureContacts, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(13), st.UsageCount)
}

func TestTryConsume_RejectsOverLimit(t *testing.T) {
	svc := newTestUsageService(newMemUsageRepo(), nil)
	ctx := context.Background()
	user := starterUser()
	feature := subscription.FeatureContentPieces

	st, err := svc.TryConsume(ctx, nil, user, feature, 49, "")
	require.NoError(t, err)
	assert.Equal(t, int64(49), st.UsageCount)

	_, err = svc.TryConsume(ctx, nil, user, feature, 2, "")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeLimitExceeded, appErr.Code)
	details := appErr.Details.(map[string]interface{})
	assert.Equal(t, apperrors.ReasonQuotaExceeded, details["reason"])
	assert.Equal(t, int64(49), details["usage_count"])

	st, err = svc.TryConsume(ctx, nil, user, feature, 1, "")
	require.NoError(t, err)
	assert.False(t, st.Allowed)
}

func TestTryConsume_ConcurrentNeverExceedsLimit(t *testing.T) {
	repo := newMemUsageRepo()
	locker := &countingLocker{}
	svc := newTestUsageService(repo, locker)
	ctx := context.Background()
	user := starterUser()
	feature := subscription.FeatureContentPieces // starter: 50

	const workers = 200
	var wg sync.WaitGroup
	var granted int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.TryConsume(ctx, nil, user, feature, 1, ""); err == nil {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	st, err := svc.Check(ctx, nil, user, feature, "")
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.UsageCount)
	assert.Equal(t, int32(50), granted)
	assert.Equal(t, int32(workers), atomic.LoadInt32(&locker.obtained))
}

func TestTryConsume_MasterCountedButUnlimited(t *testing.T) {
	svc := newTestUsageService(newMemUsageRepo(), nil)
	ctx := context.Background()
	master := &models.User{Role: models.UserRoleMaster, SubscriptionStatus: models.SubscriptionStatusExpired}
	master.ID = "master"

	st, err := svc.TryConsume(ctx, nil, master, subscription.FeatureSMSSends, 5000, "")
	require.NoError(t, err)
	assert.True(t, st.Unlimited)
	assert.True(t, st.Allowed)
	assert.Equal(t, int64(5000), st.UsageCount)
	assert.Equal(t, subscription.Unlimited, st.Limit)
}

func TestUsageSummaryAndRecommendations(t *testing.T) {
	svc := newTestUsageService(newMemUsageRepo(), nil)
	ctx := context.Background()
	user := starterUser()

	_, err := svc.Increment(ctx, nil, user, subscription.FeatureContacts, 900, "")
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, nil, user, "")
	require.NoError(t, err)
	assert.Equal(t, models.TierStarter, summary.Tier)
	for _, f := range summary.Features {
		assert.True(t, subscription.IsCounted(f.Feature), f.Feature)
	}

	rec, err := svc.Recommendations(ctx, nil, user, "")
	require.NoError(t, err)
	assert.True(t, rec.ShouldUpgrade)
	require.Len(t, rec.HighUsage, 1)
	assert.Equal(t, subscription.FeatureContacts, rec.HighUsage[0].Feature)
	require.NotEmpty(t, rec.SuggestedPlans)
	assert.Equal(t, models.TierProfessional, rec.SuggestedPlans[0].Tier)
}
