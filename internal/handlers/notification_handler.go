package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
	}
}

// Уведомления доступны и после окончания триала
func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := h.Authenticated(r.Group("/notifications"))
	{
		notifications.GET("", h.GetUserNotifications)
		notifications.GET("/unread-count", h.GetUnreadCount)
		notifications.PUT("/read-all", h.MarkAllAsRead)
		notifications.PUT("/:notificationId/read", h.MarkAsRead)
	}
}

func (h *NotificationHandler) GetUserNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var query dto.NotificationListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}
	query.Page, query.PageSize = ParsePagination(c)

	notifications, err := h.notificationService.GetUserNotifications(c.Request.Context(), h.GetDB(c), userID, query)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notifications)
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	count, err := h.notificationService.GetUnreadCount(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), h.GetDB(c), userID, c.Param("notificationId")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), h.GetDB(c), userID); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}
