package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/repositories"
	"crm_backend/internal/services/dto"
	"crm_backend/pkg/apperrors"
)

type CampaignService interface {
	List(ctx context.Context, db *gorm.DB, user *models.User, query dto.CampaignListQuery) (*dto.ListResponse[models.Campaign], error)
	Create(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateCampaignRequest) (*models.Campaign, error)
	Get(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) (*models.Campaign, error)
	Update(ctx context.Context, db *gorm.DB, user *models.User, campaignID string, req *dto.UpdateCampaignRequest) (*models.Campaign, error)
	Delete(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) error
	// Send рассылает кампанию аудитории, списывая квоту за каждого получателя
	Send(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) (*dto.CampaignSendResult, error)
}

type campaignService struct {
	campaignRepo  repositories.CampaignRepository
	contactRepo   repositories.ContactRepository
	tenantService TenantService
	usageService  UsageService
	outbound      *Outbound
	now           func() time.Time
}

func NewCampaignService(
	campaignRepo repositories.CampaignRepository,
	contactRepo repositories.ContactRepository,
	tenantService TenantService,
	usageService UsageService,
	outbound *Outbound,
) CampaignService {
	return &campaignService{
		campaignRepo:  campaignRepo,
		contactRepo:   contactRepo,
		tenantService: tenantService,
		usageService:  usageService,
		outbound:      outbound,
		now:           time.Now,
	}
}

func (s *campaignService) List(ctx context.Context, db *gorm.DB, user *models.User, query dto.CampaignListQuery) (*dto.ListResponse[models.Campaign], error) {
	scope, err := s.tenantService.Scope(ctx, db, user, query.SubAccountID)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(query.Page, query.PageSize)

	campaigns, total, err := s.campaignRepo.List(db, repositories.CampaignFilter{
		SubAccountIDs: scope,
		Status:        models.CampaignStatus(query.Status),
		Type:          models.CampaignType(query.Type),
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return dto.NewListResponse(campaigns, total, page, pageSize), nil
}

func (s *campaignService) Create(ctx context.Context, db *gorm.DB, user *models.User, req *dto.CreateCampaignRequest) (*models.Campaign, error) {
	subAccountID, err := s.tenantService.TargetSubAccount(ctx, db, user, req.SubAccountID)
	if err != nil {
		return nil, err
	}
	campaignType := models.CampaignType(req.Type)
	if campaignType != models.CampaignTypeSMS && strings.TrimSpace(req.Subject) == "" {
		return nil, apperrors.ValidationError(map[string]string{"subject": "required for email campaigns"})
	}

	campaign := &models.Campaign{
		SubAccountID:   subAccountID,
		UserID:         user.ID,
		Name:           strings.TrimSpace(req.Name),
		Type:           campaignType,
		Status:         models.CampaignStatusDraft,
		Subject:        req.Subject,
		Content:        req.Content,
		TargetAudience: datatypes.NewJSONType(normalizeAudience(req.TargetAudience)),
	}
	if campaign.ScheduleSettings, err = jsonOrNil(req.ScheduleSettings); err != nil {
		return nil, apperrors.ValidationError(map[string]string{"schedule_settings": err.Error()})
	}
	if campaign.TrackingSettings, err = jsonOrNil(req.TrackingSettings); err != nil {
		return nil, apperrors.ValidationError(map[string]string{"tracking_settings": err.Error()})
	}

	if err := s.campaignRepo.Create(db, campaign); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return campaign, nil
}

func (s *campaignService) Get(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.FindByID(db, campaignID)
	if err != nil {
		return nil, handleCampaignError(err)
	}
	if err := s.tenantService.CanAccess(ctx, db, user, campaign.SubAccountID); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *campaignService) Update(ctx context.Context, db *gorm.DB, user *models.User, campaignID string, req *dto.UpdateCampaignRequest) (*models.Campaign, error) {
	campaign, err := s.Get(ctx, db, user, campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case models.CampaignStatusCompleted:
		return nil, apperrors.ErrInvalidStatus("campaign", "completed campaigns cannot be changed")
	case models.CampaignStatusSending:
		return nil, apperrors.ErrInvalidStatus("campaign", "campaign is being sent")
	}

	if req.Name != nil {
		campaign.Name = strings.TrimSpace(*req.Name)
	}
	if req.Subject != nil {
		campaign.Subject = *req.Subject
	}
	if req.Content != nil {
		campaign.Content = *req.Content
	}
	if req.Status != nil {
		next := models.CampaignStatus(*req.Status)
		if next == models.CampaignStatusCompleted || next == models.CampaignStatusSending {
			return nil, apperrors.ErrInvalidStatus("campaign", "status is set by sending the campaign")
		}
		campaign.Status = next
	}
	if req.TargetAudience != nil {
		campaign.TargetAudience = datatypes.NewJSONType(normalizeAudience(*req.TargetAudience))
	}
	if req.ScheduleSettings != nil {
		if campaign.ScheduleSettings, err = jsonOrNil(req.ScheduleSettings); err != nil {
			return nil, apperrors.ValidationError(map[string]string{"schedule_settings": err.Error()})
		}
	}
	if req.TrackingSettings != nil {
		if campaign.TrackingSettings, err = jsonOrNil(req.TrackingSettings); err != nil {
			return nil, apperrors.ValidationError(map[string]string{"tracking_settings": err.Error()})
		}
	}

	if err := s.campaignRepo.Update(db, campaign); err != nil {
		return nil, apperrors.InternalError(err)
	}
	return campaign, nil
}

func (s *campaignService) Delete(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) error {
	campaign, err := s.Get(ctx, db, user, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == models.CampaignStatusSending {
		return apperrors.ErrInvalidStatus("campaign", "campaign is being sent")
	}
	if err := s.campaignRepo.Delete(db, campaignID); err != nil {
		return handleCampaignError(err)
	}
	return nil
}

// campaignCheckpointEvery - как часто сохранять курсор и счетчики во время рассылки
const campaignCheckpointEvery = 100

func (s *campaignService) Send(ctx context.Context, db *gorm.DB, user *models.User, campaignID string) (*dto.CampaignSendResult, error) {
	campaign, err := s.Get(ctx, db, user, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusPaused {
		return nil, apperrors.ErrCampaignNotDraft
	}

	// параллельный Send на ту же кампанию проигрывает здесь
	claimed, err := s.campaignRepo.ClaimForSending(db, campaign.ID, models.CampaignStatusDraft, models.CampaignStatusPaused)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	if !claimed {
		return nil, apperrors.ErrCampaignNotDraft
	}
	campaign.Status = models.CampaignStatusSending

	contacts, err := s.contactRepo.FindAudience(db, campaign.SubAccountID, campaign.TargetAudience.Data())
	if err != nil {
		campaign.Status = models.CampaignStatusPaused
		if uerr := s.campaignRepo.Update(db, campaign); uerr != nil {
			logger.CtxError(ctx, "failed to release campaign", "campaign_id", campaign.ID, "error", uerr.Error())
		}
		return nil, apperrors.InternalError(err)
	}
	contacts = remainingAudience(contacts, campaign)

	ctx = logger.WithJob(ctx, "campaign:"+campaign.ID)
	result := &dto.CampaignSendResult{CampaignID: campaign.ID, Recipients: len(contacts)}
	exhausted := map[models.Channel]bool{}
	baseSent, baseFailed := campaign.SentCount, campaign.FailedCount

	for i := range contacts {
		// начатую рассылку не бросаем: прогресс сохраняется, кампания уходит в paused
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		contact := &contacts[i]
		for _, channel := range campaignChannels(campaign.Type, contact) {
			s.sendOne(ctx, db, user, campaign, contact, channel, exhausted, result)
		}

		at := contact.CreatedAt
		campaign.ResumeAfterID, campaign.ResumeAfterAt = contact.ID, &at
		campaign.SentCount = baseSent + result.Sent
		campaign.FailedCount = baseFailed + result.Failed
		result.Processed++

		if result.Processed%campaignCheckpointEvery == 0 {
			if err := s.campaignRepo.Update(db, campaign); err != nil {
				logger.CtxWarn(ctx, "campaign checkpoint failed", "processed", result.Processed, "error", err.Error())
			}
		}
	}

	if result.Interrupted {
		campaign.Status = models.CampaignStatusPaused
	} else {
		now := s.now()
		campaign.Status = models.CampaignStatusCompleted
		campaign.SentAt = &now
	}
	result.Status = string(campaign.Status)

	if err := s.campaignRepo.Update(db, campaign); err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctx, "campaign send finished",
		"status", result.Status, "recipients", result.Recipients, "processed", result.Processed,
		"sent", result.Sent, "failed", result.Failed, "skipped", result.Skipped, "quota_exhausted", result.QuotaExhausted)
	return result, nil
}

// remainingAudience отбрасывает контакты до курсора прерванной рассылки.
// Аудитория отсортирована по (created_at, id).
func remainingAudience(contacts []models.Contact, campaign *models.Campaign) []models.Contact {
	if campaign.ResumeAfterID == "" || campaign.ResumeAfterAt == nil {
		return contacts
	}
	at, id := *campaign.ResumeAfterAt, campaign.ResumeAfterID
	for i := range contacts {
		c := &contacts[i]
		if c.CreatedAt.After(at) || (c.CreatedAt.Equal(at) && c.ID > id) {
			return contacts[i:]
		}
	}
	return nil
}

func (s *campaignService) sendOne(ctx context.Context, db *gorm.DB, user *models.User, campaign *models.Campaign,
	contact *models.Contact, channel models.Channel, exhausted map[models.Channel]bool, result *dto.CampaignSendResult) {

	if exhausted[channel] || Recipient(channel, contact) == "" {
		result.Skipped++
		return
	}
	if !s.outbound.Enabled(channel) {
		result.Failed++
		return
	}

	feature, _ := QuotaFeature(channel)
	if _, err := s.usageService.TryConsume(ctx, db, user, feature, 1, ""); err != nil {
		if apperrors.HasCode(err, apperrors.CodeLimitExceeded) {
			exhausted[channel] = true
			result.QuotaExhausted = true
			result.Skipped++
			return
		}
		logger.CtxWarn(ctx, "campaign quota check failed", "contact_id", contact.ID, "error", err.Error())
		result.Failed++
		return
	}

	start := time.Now()
	_, err := s.outbound.SendCampaign(ctx, channel, contact, campaign.Subject, campaign.Content)
	logger.ProviderLog(string(channel), "send_campaign", time.Since(start), err)
	if err != nil {
		result.Failed++
		return
	}
	result.Sent++
}

// campaignChannels - mixed уходит по всем каналам, для которых есть адрес
func campaignChannels(t models.CampaignType, c *models.Contact) []models.Channel {
	switch t {
	case models.CampaignTypeEmail:
		return []models.Channel{models.ChannelEmail}
	case models.CampaignTypeSMS:
		return []models.Channel{models.ChannelSMS}
	}
	var out []models.Channel
	if c.Email != "" {
		out = append(out, models.ChannelEmail)
	}
	if c.Phone != "" {
		out = append(out, models.ChannelSMS)
	}
	if len(out) == 0 {
		out = []models.Channel{models.ChannelEmail}
	}
	return out
}

func normalizeAudience(a models.CampaignAudience) models.CampaignAudience {
	a.Tags = []string(normalizeTags(a.Tags))
	return a
}

func jsonOrNil(v map[string]interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func handleCampaignError(err error) error {
	if errors.Is(err, repositories.ErrCampaignNotFound) {
		return apperrors.ErrNotFound(err)
	}
	return apperrors.InternalError(err)
}
