package dto

import "crm_backend/internal/models"

type CreateCampaignRequest struct {
	SubAccountID     string                  `json:"sub_account_id" validate:"omitempty,uuid"`
	Name             string                  `json:"name" validate:"required,max=255"`
	Type             string                  `json:"type" validate:"required,is-campaign-type"`
	Subject          string                  `json:"subject" validate:"omitempty,max=255"`
	Content          string                  `json:"content" validate:"required,max=50000"`
	TargetAudience   models.CampaignAudience `json:"target_audience"`
	ScheduleSettings map[string]interface{}  `json:"schedule_settings"`
	TrackingSettings map[string]interface{}  `json:"tracking_settings"`
}

type UpdateCampaignRequest struct {
	Name             *string                  `json:"name" validate:"omitempty,min=1,max=255"`
	Subject          *string                  `json:"subject" validate:"omitempty,max=255"`
	Content          *string                  `json:"content" validate:"omitempty,min=1,max=50000"`
	Status           *string                  `json:"status" validate:"omitempty,is-campaign-status"`
	TargetAudience   *models.CampaignAudience `json:"target_audience"`
	ScheduleSettings map[string]interface{}   `json:"schedule_settings"`
	TrackingSettings map[string]interface{}   `json:"tracking_settings"`
}

type CampaignListQuery struct {
	SubAccountID string `form:"sub_account_id" validate:"omitempty,uuid"`
	Status       string `form:"status" validate:"omitempty,is-campaign-status"`
	Type         string `form:"type" validate:"omitempty,is-campaign-type"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

// CampaignSendResult - итог рассылки
type CampaignSendResult struct {
	CampaignID     string `json:"campaign_id"`
	Status         string `json:"status"`
	Recipients     int    `json:"recipients"`
	Processed      int    `json:"processed"`
	Sent           int    `json:"sent"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	QuotaExhausted bool   `json:"quota_exhausted"`
	// Interrupted - рассылка остановлена на полпути, кампания в paused и продолжится с курсора
	Interrupted bool `json:"interrupted"`
}
