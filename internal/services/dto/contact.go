package dto

import (
	"time"

	"crm_backend/internal/models"
)

type CreateContactRequest struct {
	SubAccountID string                 `json:"sub_account_id" validate:"omitempty,uuid"`
	Email        string                 `json:"email" validate:"omitempty,email,max=255"`
	Phone        string                 `json:"phone" validate:"omitempty,max=32"`
	FirstName    string                 `json:"first_name" validate:"required,max=100"`
	LastName     string                 `json:"last_name" validate:"omitempty,max=100"`
	Company      string                 `json:"company" validate:"omitempty,max=255"`
	JobTitle     string                 `json:"job_title" validate:"omitempty,max=255"`
	Tags         []string               `json:"tags" validate:"omitempty,dive,max=64"`
	CustomFields map[string]interface{} `json:"custom_fields"`
	Status       string                 `json:"status" validate:"omitempty,is-contact-status"`
	Source       string                 `json:"source" validate:"omitempty,max=64"`
	CompanySize  int                    `json:"company_size" validate:"omitempty,min=0"`
}

// UpdateContactRequest - nil поля не меняются
type UpdateContactRequest struct {
	Email        *string                `json:"email" validate:"omitempty,email,max=255"`
	Phone        *string                `json:"phone" validate:"omitempty,max=32"`
	FirstName    *string                `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName     *string                `json:"last_name" validate:"omitempty,max=100"`
	Company      *string                `json:"company" validate:"omitempty,max=255"`
	JobTitle     *string                `json:"job_title" validate:"omitempty,max=255"`
	Tags         []string               `json:"tags" validate:"omitempty,dive,max=64"`
	CustomFields map[string]interface{} `json:"custom_fields"`
	Status       *string                `json:"status" validate:"omitempty,is-contact-status"`
	Source       *string                `json:"source" validate:"omitempty,max=64"`
	CompanySize  *int                   `json:"company_size" validate:"omitempty,min=0"`
}

type ContactListQuery struct {
	SubAccountID string   `form:"sub_account_id" validate:"omitempty,uuid"`
	Search       string   `form:"search" validate:"omitempty,max=255"`
	Status       string   `form:"status" validate:"omitempty,is-contact-status"`
	Tags         []string `form:"tags"`
	Page         int      `form:"page"`
	PageSize     int      `form:"page_size"`
}

type CreateNoteRequest struct {
	Content   string `json:"content" validate:"required,max=10000"`
	IsPrivate bool   `json:"is_private"`
}

type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"omitempty,max=5000"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority" validate:"omitempty,is-task-priority"`
}

type ContactExportRequest struct {
	SubAccountID string `json:"sub_account_id" validate:"omitempty,uuid"`
	Status       string `json:"status" validate:"omitempty,is-contact-status"`
}

type ContactExportResponse struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Count     int       `json:"count"`
	Bytes     int64     `json:"bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ContactDetails - контакт со связанными записями
type ContactDetails struct {
	*models.Contact
	OpenConversations int64 `json:"open_conversations"`
}
