package dto

import "crm_backend/internal/models"

type CreateConversationRequest struct {
	SubAccountID string  `json:"sub_account_id" validate:"omitempty,uuid"`
	ContactID    string  `json:"contact_id" validate:"required,uuid"`
	Channel      string  `json:"channel" validate:"required,is-channel"`
	Subject      string  `json:"subject" validate:"omitempty,max=255"`
	AssignedTo   *string `json:"assigned_to" validate:"omitempty,uuid"`
}

type UpdateConversationRequest struct {
	Status     *string  `json:"status" validate:"omitempty,is-conversation-status"`
	AssignedTo *string  `json:"assigned_to" validate:"omitempty,uuid"`
	Tags       []string `json:"tags" validate:"omitempty,dive,max=64"`
}

type ConversationListQuery struct {
	SubAccountID string `form:"sub_account_id" validate:"omitempty,uuid"`
	Status       string `form:"status" validate:"omitempty,is-conversation-status"`
	Channel      string `form:"channel" validate:"omitempty,is-channel"`
	ContactID    string `form:"contact_id" validate:"omitempty,uuid"`
	UnreadOnly   bool   `form:"unread_only"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
}

type SendMessageRequest struct {
	Content   string `json:"content" validate:"required,max=10000"`
	Direction string `json:"direction" validate:"required,is-message-direction"`
	Subject   string `json:"subject" validate:"omitempty,max=255"`
}

// MessageResult - сообщение и исход отправки через провайдера
type MessageResult struct {
	Message   *models.Message `json:"message"`
	Delivered bool            `json:"delivered"`
	// Провайдер выключен или упал - сообщение сохранено со статусом failed
	ProviderError string `json:"provider_error,omitempty"`
}
