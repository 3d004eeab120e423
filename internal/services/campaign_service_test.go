package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/sms"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

// fakeSMSSender - sms.Sender без сети, номера из failFor получают ошибку провайдера
type fakeSMSSender struct {
	mu      sync.Mutex
	enabled bool
	failFor map[string]bool
	sent    []string
	// onSend вызывается после каждой успешной отправки
	onSend func()
}

func (f *fakeSMSSender) Enabled() bool { return f.enabled }

func (f *fakeSMSSender) Send(_ context.Context, to, _ string) sms.Result {
	f.mu.Lock()
	if f.failFor[to] {
		f.mu.Unlock()
		return sms.Result{Error: "twilio: 21211 invalid number"}
	}
	f.sent = append(f.sent, to)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return sms.Result{Success: true, SID: "SM" + to}
}

// fakeCampaignRepo хранит одну кампанию; Update сохраняет копию, как БД
type fakeCampaignRepo struct {
	repositories.CampaignRepository
	campaign *models.Campaign
	updated  *models.Campaign
}

func (r *fakeCampaignRepo) FindByID(_ *gorm.DB, id string) (*models.Campaign, error) {
	if r.campaign == nil || r.campaign.ID != id {
		return nil, repositories.ErrCampaignNotFound
	}
	cp := *r.campaign
	return &cp, nil
}

func (r *fakeCampaignRepo) Update(_ *gorm.DB, c *models.Campaign) error {
	cp := *c
	r.updated = &cp
	r.campaign = &cp
	return nil
}

func (r *fakeCampaignRepo) ClaimForSending(_ *gorm.DB, id string, from ...models.CampaignStatus) (bool, error) {
	if r.campaign == nil || r.campaign.ID != id {
		return false, nil
	}
	for _, st := range from {
		if r.campaign.Status == st {
			r.campaign.Status = models.CampaignStatusSending
			return true, nil
		}
	}
	return false, nil
}

type fakeAudienceRepo struct {
	repositories.ContactRepository
	contacts []models.Contact
}

func (r *fakeAudienceRepo) FindAudience(*gorm.DB, string, models.CampaignAudience) ([]models.Contact, error) {
	return r.contacts, nil
}

// allowTenant пускает в любой субаккаунт
type allowTenant struct{ TenantService }

func (allowTenant) CanAccess(context.Context, *gorm.DB, *models.User, string) error { return nil }

func smsCampaign(status models.CampaignStatus) *models.Campaign {
	c := &models.Campaign{
		SubAccountID:   "sub-1",
		Name:           "Spring promo",
		Type:           models.CampaignTypeSMS,
		Content:        "20% off this week",
		Status:         status,
		TargetAudience: datatypes.NewJSONType(models.CampaignAudience{}),
	}
	c.ID = "camp-1"
	return c
}

func contactWith(id, email, phone string) models.Contact {
	c := models.Contact{FirstName: "C" + id, Email: email, Phone: phone}
	c.ID = id
	return c
}

func newTestCampaignService(campaign *models.Campaign, contacts []models.Contact, sender *fakeSMSSender) (*campaignService, *fakeCampaignRepo, *usageService) {
	repo := &fakeCampaignRepo{campaign: campaign}
	usage := newTestUsageService(newMemUsageRepo(), nil)
	outbound := &Outbound{SMS: sms.NewNotifier(sender, "CRM", "", 30)}
	svc := NewCampaignService(repo, &fakeAudienceRepo{contacts: contacts}, allowTenant{}, usage, outbound).(*campaignService)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc, repo, usage
}

func TestCampaignSend_CountsSentFailedSkipped(t *testing.T) {
	sender := &fakeSMSSender{enabled: true, failFor: map[string]bool{"+15550000003": true}}
	contacts := []models.Contact{
		contactWith("1", "", "+15550000001"),
		contactWith("2", "nophone@example.com", ""),
		contactWith("3", "", "+15550000003"),
	}
	svc, repo, usage := newTestCampaignService(smsCampaign(models.CampaignStatusDraft), contacts, sender)
	user := starterUser()

	res, err := svc.Send(context.Background(), nil, user, "camp-1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Recipients)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.QuotaExhausted)

	require.NotNil(t, repo.updated)
	assert.Equal(t, models.CampaignStatusCompleted, repo.updated.Status)
	assert.Equal(t, 1, repo.updated.SentCount)
	assert.Equal(t, 1, repo.updated.FailedCount)
	require.NotNil(t, repo.updated.SentAt)

	// неудачная отправка после списания квоту не возвращает
	st, err := usage.Check(context.Background(), nil, user, subscription.FeatureSMSSends, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.UsageCount)
}

func TestCampaignSend_StopsChannelOnQuota(t *testing.T) {
	sender := &fakeSMSSender{enabled: true}
	contacts := []models.Contact{
		contactWith("1", "", "+15550000001"),
		contactWith("2", "", "+15550000002"),
		contactWith("3", "", "+15550000003"),
	}
	svc, _, usage := newTestCampaignService(smsCampaign(models.CampaignStatusDraft), contacts, sender)
	user := starterUser()
	ctx := context.Background()

	// starter: 100 SMS в месяц
	_, err := usage.Increment(ctx, nil, user, subscription.FeatureSMSSends, 99, "")
	require.NoError(t, err)

	res, err := svc.Send(ctx, nil, user, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, res.QuotaExhausted)
	assert.Len(t, sender.sent, 1)
}

func TestCampaignSend_DisabledProviderConsumesNothing(t *testing.T) {
	sender := &fakeSMSSender{enabled: false}
	contacts := []models.Contact{contactWith("1", "", "+15550000001")}
	svc, _, usage := newTestCampaignService(smsCampaign(models.CampaignStatusDraft), contacts, sender)
	user := starterUser()
	ctx := context.Background()

	res, err := svc.Send(ctx, nil, user, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Sent)

	st, err := usage.Check(ctx, nil, user, subscription.FeatureSMSSends, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.UsageCount)
}

func TestCampaignSend_RejectsCompleted(t *testing.T) {
	svc, _, _ := newTestCampaignService(smsCampaign(models.CampaignStatusCompleted), nil, &fakeSMSSender{enabled: true})

	_, err := svc.Send(context.Background(), nil, starterUser(), "camp-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCampaignNotDraft))
}

func TestCampaignSend_InterruptedSendPausesAndResumes(t *testing.T) {
	sender := &fakeSMSSender{enabled: true}
	contacts := []models.Contact{
		contactWith("1", "", "+15550000001"),
		contactWith("2", "", "+15550000002"),
		contactWith("3", "", "+15550000003"),
	}
	svc, repo, usage := newTestCampaignService(smsCampaign(models.CampaignStatusDraft), contacts, sender)
	user := starterUser()

	// клиент отвалился сразу после первой отправки
	ctx, cancel := context.WithCancel(context.Background())
	sender.onSend = cancel

	res, err := svc.Send(ctx, nil, user, "camp-1")
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, string(models.CampaignStatusPaused), res.Status)

	require.NotNil(t, repo.updated)
	assert.Equal(t, models.CampaignStatusPaused, repo.updated.Status)
	assert.Equal(t, 1, repo.updated.SentCount)
	assert.Equal(t, "1", repo.updated.ResumeAfterID)
	assert.Nil(t, repo.updated.SentAt)

	sender.onSend = nil
	res, err = svc.Send(context.Background(), nil, user, "camp-1")
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, 2, res.Recipients)
	assert.Equal(t, 2, res.Sent)

	// никто не получил сообщение дважды, квота списана по разу
	assert.Equal(t, []string{"+15550000001", "+15550000002", "+15550000003"}, sender.sent)
	assert.Equal(t, models.CampaignStatusCompleted, repo.updated.Status)
	assert.Equal(t, 3, repo.updated.SentCount)

	st, err := usage.Check(context.Background(), nil, user, subscription.FeatureSMSSends, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.UsageCount)
}

func TestCampaignSend_SecondSenderLosesClaim(t *testing.T) {
	sender := &fakeSMSSender{enabled: true}
	svc, repo, _ := newTestCampaignService(smsCampaign(models.CampaignStatusDraft),
		[]models.Contact{contactWith("1", "", "+15550000001")}, sender)

	// первый Send уже забрал кампанию
	claimed, err := repo.ClaimForSending(nil, "camp-1", models.CampaignStatusDraft)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = svc.Send(context.Background(), nil, starterUser(), "camp-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCampaignNotDraft))
	assert.Empty(t, sender.sent)
}

func TestRemainingAudience(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, at time.Time) models.Contact {
		c := contactWith(id, "", "")
		c.CreatedAt = at
		return c
	}
	contacts := []models.Contact{mk("a", base), mk("b", base), mk("c", base.Add(time.Minute))}

	campaign := smsCampaign(models.CampaignStatusPaused)
	assert.Len(t, remainingAudience(contacts, campaign), 3)

	campaign.ResumeAfterID, campaign.ResumeAfterAt = "a", &base
	got := remainingAudience(contacts, campaign)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	// курсорный контакт удален: продолжаем со следующего по времени
	campaign.ResumeAfterID = "b0"
	got = remainingAudience(contacts, campaign)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	last := base.Add(time.Minute)
	campaign.ResumeAfterID, campaign.ResumeAfterAt = "c", &last
	assert.Empty(t, remainingAudience(contacts, campaign))
}

func TestCampaignChannels_Mixed(t *testing.T) {
	both := contactWith("1", "a@example.com", "+15550000001")
	emailOnly := contactWith("2", "b@example.com", "")
	none := contactWith("3", "", "")

	assert.Equal(t, []models.Channel{models.ChannelEmail, models.ChannelSMS}, campaignChannels(models.CampaignTypeMixed, &both))
	assert.Equal(t, []models.Channel{models.ChannelEmail}, campaignChannels(models.CampaignTypeMixed, &emailOnly))
	assert.Equal(t, []models.Channel{models.ChannelEmail}, campaignChannels(models.CampaignTypeMixed, &none))
	assert.Equal(t, []models.Channel{models.ChannelSMS}, campaignChannels(models.CampaignTypeSMS, &both))
}
