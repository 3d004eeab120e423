package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/internal/payments"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

type fakeGateway struct {
	enabled    bool
	sessionErr error
	event      *payments.WebhookEvent
	requests   []payments.CheckoutRequest
}

func (g *fakeGateway) Enabled() bool { return g.enabled }

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	g.requests = append(g.requests, req)
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	return &payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*payments.WebhookEvent, error) {
	if g.event == nil {
		return nil, errors.New("signature mismatch")
	}
	return g.event, nil
}

type fakeSubscriptionRepo struct {
	repositories.SubscriptionRepository
	latest   *models.Subscription
	payments []models.PaymentTransaction
}

func (r *fakeSubscriptionRepo) FindLatestSubscription(*gorm.DB, string) (*models.Subscription, error) {
	if r.latest == nil {
		return nil, repositories.ErrSubscriptionNotFound
	}
	return r.latest, nil
}

func (r *fakeSubscriptionRepo) CreatePayment(_ *gorm.DB, p *models.PaymentTransaction) error {
	r.payments = append(r.payments, *p)
	return nil
}

func newTestSubscriptionService(gateway payments.Gateway, repo *fakeSubscriptionRepo) *subscriptionService {
	svc := NewSubscriptionService(nil, repo, subscription.NewResolver(nil), gateway, nil, nil).(*subscriptionService)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestGetCurrent_TrialAccount(t *testing.T) {
	svc := newTestSubscriptionService(nil, &fakeSubscriptionRepo{})
	user := &models.User{Role: models.UserRoleUser}
	subscription.NewTrial(user, svc.now(), 30)

	resp, err := svc.GetCurrent(context.Background(), nil, user)
	require.NoError(t, err)

	assert.Equal(t, models.TierStarter, resp.Tier)
	assert.Equal(t, models.SubscriptionStatusTrial, resp.Status)
	assert.Equal(t, 30, resp.DaysRemaining)
	assert.True(t, resp.Access.Allowed)
	require.NotNil(t, resp.Plan)
	assert.Nil(t, resp.LatestSubscription)
	assert.Equal(t, int64(1000), resp.Limits[subscription.FeatureContacts].Number())
}

func TestUpgrade_CreatesCheckoutAndPendingPayment(t *testing.T) {
	gateway := &fakeGateway{enabled: true}
	repo := &fakeSubscriptionRepo{}
	svc := newTestSubscriptionService(gateway, repo)
	user := starterUser()

	resp, err := svc.Upgrade(context.Background(), nil, user, &dto.UpgradeRequest{Tier: "professional", BillingCycle: "monthly"})
	require.NoError(t, err)

	assert.Equal(t, dto.UpgradeModeCheckout, resp.Mode)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	require.Len(t, gateway.requests, 1)
	assert.Equal(t, "professional", gateway.requests[0].Tier)
	assert.Equal(t, user.ID, gateway.requests[0].UserID)

	require.Len(t, repo.payments, 1)
	assert.Equal(t, models.PaymentStatusPending, repo.payments[0].Status)
	assert.Equal(t, "cs_test_1", repo.payments[0].ExternalID)
	// аккаунт меняется только вебхуком
	assert.Equal(t, models.SubscriptionStatusTrial, user.SubscriptionStatus)
}

func TestUpgrade_GatewayFailureIsProviderError(t *testing.T) {
	gateway := &fakeGateway{enabled: true, sessionErr: errors.New("stripe: timeout")}
	repo := &fakeSubscriptionRepo{}
	svc := newTestSubscriptionService(gateway, repo)

	_, err := svc.Upgrade(context.Background(), nil, starterUser(), &dto.UpgradeRequest{Tier: "business", BillingCycle: "yearly"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalServiceError))
	assert.Empty(t, repo.payments)
}

func TestUpgrade_RejectsDowngradeAndUnknownTier(t *testing.T) {
	svc := newTestSubscriptionService(&fakeGateway{enabled: true}, &fakeSubscriptionRepo{})
	user := starterUser()
	user.SubscriptionStatus = models.SubscriptionStatusActive
	user.SubscriptionTier = models.TierBusiness

	_, err := svc.Upgrade(context.Background(), nil, user, &dto.UpgradeRequest{Tier: "professional", BillingCycle: "monthly"})
	assert.True(t, errors.Is(err, apperrors.ErrNotAnUpgrade))

	_, err = svc.Upgrade(context.Background(), nil, user, &dto.UpgradeRequest{Tier: "platinum", BillingCycle: "monthly"})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownTier))
}

func TestHandleWebhook_BadSignatureAndIgnoredEvents(t *testing.T) {
	svc := newTestSubscriptionService(&fakeGateway{}, &fakeSubscriptionRepo{})
	_, err := svc.HandleWebhook(context.Background(), nil, []byte(`{}`), "bad")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	svc = newTestSubscriptionService(&fakeGateway{event: &payments.WebhookEvent{ID: "evt_1", Type: "customer.created"}}, &fakeSubscriptionRepo{})
	res, err := svc.HandleWebhook(context.Background(), nil, []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", res.EventID)
	assert.False(t, res.Handled)
}
