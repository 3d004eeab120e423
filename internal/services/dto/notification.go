package dto

import "crm_backend/internal/models"

type NotificationListQuery struct {
	UnreadOnly bool   `form:"unread_only"`
	Type       string `form:"type" validate:"omitempty,max=64"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

type NotificationListResponse struct {
	*ListResponse[models.Notification]
	UnreadCount int64 `json:"unread_count"`
}
