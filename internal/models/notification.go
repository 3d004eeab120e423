package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationTrialWarning   = "trial_warning"
	NotificationTrialExpired   = "trial_expired"
	NotificationPaymentFailed  = "payment_failed"
	NotificationSubscription   = "subscription_activated"
	NotificationInboundMessage = "inbound_message"
	NotificationWelcome        = "welcome"
)

type Notification struct {
	BaseModel
	UserID  string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Type    string         `gorm:"size:64;not null" json:"type"`
	Title   string         `gorm:"not null" json:"title"`
	Message string         `json:"message"`
	Data    datatypes.JSON `json:"data,omitempty"`
	IsRead  bool           `gorm:"default:false" json:"is_read"`
	ReadAt  *time.Time     `json:"read_at,omitempty"`
}
