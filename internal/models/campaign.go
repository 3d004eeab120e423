package models

import (
	"time"

	"gorm.io/datatypes"
)

type Campaign struct {
	BaseModel
	SubAccountID     string                               `gorm:"type:varchar(36);not null;index" json:"sub_account_id"`
	UserID           string                               `gorm:"type:varchar(36);index" json:"user_id"`
	Name             string                               `gorm:"size:255;not null" json:"name"`
	Type             CampaignType                         `gorm:"type:varchar(16);not null" json:"type"`
	Status           CampaignStatus                       `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Subject          string                               `gorm:"size:255" json:"subject,omitempty"`
	Content          string                               `gorm:"type:text" json:"content"`
	TargetAudience   datatypes.JSONType[CampaignAudience] `json:"target_audience"`
	ScheduleSettings datatypes.JSON                       `json:"schedule_settings,omitempty"`
	TrackingSettings datatypes.JSON                       `json:"tracking_settings,omitempty"`
	SentCount        int                                  `gorm:"default:0" json:"sent_count"`
	FailedCount      int                                  `gorm:"default:0" json:"failed_count"`
	SentAt           *time.Time                           `json:"sent_at,omitempty"`

	// курсор прерванной рассылки: последний обработанный контакт аудитории
	ResumeAfterID string     `gorm:"type:varchar(36)" json:"-"`
	ResumeAfterAt *time.Time `json:"-"`
}

// CampaignAudience - фильтр получателей из TargetAudience
type CampaignAudience struct {
	Tags   []string      `json:"tags,omitempty"`
	Status ContactStatus `json:"status,omitempty"`
}
