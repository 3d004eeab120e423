package models

import (
	"time"

	"gorm.io/datatypes"
)

type Contact struct {
	BaseModel
	SubAccountID string                      `gorm:"type:varchar(36);not null;index" json:"sub_account_id"`
	Email        string                      `gorm:"size:255;index" json:"email"`
	Phone        string                      `gorm:"size:32" json:"phone,omitempty"`
	FirstName    string                      `gorm:"size:100" json:"first_name"`
	LastName     string                      `gorm:"size:100" json:"last_name"`
	Company      string                      `gorm:"size:255" json:"company,omitempty"`
	JobTitle     string                      `gorm:"size:255" json:"job_title,omitempty"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	CustomFields datatypes.JSON              `json:"custom_fields,omitempty"`
	Status       ContactStatus               `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Source       string                      `gorm:"size:64" json:"source,omitempty"`

	// Поведенческие сигналы для скоринга лидов
	LeadScore       int        `gorm:"default:0" json:"lead_score"`
	CompanySize     int        `gorm:"default:0" json:"company_size"`
	EmailOpens      int        `gorm:"default:0" json:"email_opens"`
	PageViews       int        `gorm:"default:0" json:"page_views"`
	FormSubmissions int        `gorm:"default:0" json:"form_submissions"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`

	// Relations
	Activities []ContactActivity `gorm:"foreignKey:ContactID" json:"activities,omitempty"`
	Notes      []ContactNote     `gorm:"foreignKey:ContactID" json:"notes,omitempty"`
	Tasks      []ContactTask     `gorm:"foreignKey:ContactID" json:"tasks,omitempty"`
}

func (c *Contact) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type ContactActivity struct {
	BaseModel
	ContactID   string         `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	UserID      string         `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Type        string         `gorm:"size:64;not null" json:"type"`
	Description string         `json:"description"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
}

type ContactNote struct {
	BaseModel
	ContactID string `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	UserID    string `gorm:"type:varchar(36);index" json:"user_id"`
	Content   string `gorm:"type:text;not null" json:"content"`
	IsPrivate bool   `gorm:"default:false" json:"is_private"`
}

type ContactTask struct {
	BaseModel
	ContactID   string       `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	UserID      string       `gorm:"type:varchar(36);index" json:"user_id"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Status      TaskStatus   `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Priority    TaskPriority `gorm:"type:varchar(20);default:'medium'" json:"priority"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
