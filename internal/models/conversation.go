package models

import (
	"time"

	"gorm.io/datatypes"
)

type Conversation struct {
	BaseModel
	SubAccountID  string                      `gorm:"type:varchar(36);not null;index" json:"sub_account_id"`
	ContactID     string                      `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	Channel       Channel                     `gorm:"type:varchar(16);not null" json:"channel"`
	Status        ConversationStatus          `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Subject       string                      `gorm:"size:255" json:"subject,omitempty"`
	AssignedTo    *string                     `gorm:"type:varchar(36);index" json:"assigned_to,omitempty"`
	LastMessageAt *time.Time                  `json:"last_message_at,omitempty"`
	UnreadCount   int                         `gorm:"default:0" json:"unread_count"`
	MessageCount  int                         `gorm:"default:0" json:"message_count"`
	AISentiment   string                      `gorm:"size:16" json:"ai_sentiment,omitempty"`
	AIPriority    string                      `gorm:"size:16" json:"ai_priority,omitempty"`
	AIIntent      string                      `gorm:"size:64" json:"ai_intent,omitempty"`
	AISummary     string                      `gorm:"type:text" json:"ai_summary,omitempty"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`

	Contact  *Contact  `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

type Message struct {
	BaseModel
	ConversationID string           `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	UserID         string           `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Direction      MessageDirection `gorm:"type:varchar(16);not null" json:"direction"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	Subject        string           `gorm:"size:255" json:"subject,omitempty"`
	FromAddress    string           `gorm:"size:255" json:"from_address,omitempty"`
	ToAddress      string           `gorm:"size:255" json:"to_address,omitempty"`
	Status         MessageStatus    `gorm:"type:varchar(16);not null" json:"status"`
	ExternalID     string           `gorm:"size:255" json:"external_id,omitempty"`
	AISentiment    string           `gorm:"size:16" json:"ai_sentiment,omitempty"`
	AIIntent       string           `gorm:"size:64" json:"ai_intent,omitempty"`
}
