package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
	"crm_backend/internal/subscription"
)

type CommunicationHandler struct {
	*BaseHandler
	communicationService services.CommunicationService
}

func NewCommunicationHandler(base *BaseHandler, communicationService services.CommunicationService) *CommunicationHandler {
	return &CommunicationHandler{
		BaseHandler:          base,
		communicationService: communicationService,
	}
}

func (h *CommunicationHandler) RegisterRoutes(r *gin.RouterGroup) {
	comms := h.Protected(r.Group("/communications"))
	{
		comms.GET("/stats", h.RequireFeature(subscription.FeatureAdvancedReporting), h.GetStats)

		comms.GET("/conversations", h.ListConversations)
		comms.POST("/conversations", h.CreateConversation)
		comms.GET("/conversations/:id", h.GetConversation)
		comms.PUT("/conversations/:id", h.UpdateConversation)
		comms.PUT("/conversations/:id/read", h.MarkRead)
		comms.POST("/conversations/:id/messages", h.SendMessage)
	}
}

func (h *CommunicationHandler) ListConversations(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var query dto.ConversationListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}
	query.Page, query.PageSize = ParsePagination(c)

	conversations, err := h.communicationService.ListConversations(c.Request.Context(), h.GetDB(c), user, query)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

func (h *CommunicationHandler) CreateConversation(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateConversationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	conversation, err := h.communicationService.CreateConversation(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

func (h *CommunicationHandler) GetConversation(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	conversation, err := h.communicationService.GetConversation(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

func (h *CommunicationHandler) UpdateConversation(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateConversationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	conversation, err := h.communicationService.UpdateConversation(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

func (h *CommunicationHandler) MarkRead(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	if err := h.communicationService.MarkRead(c.Request.Context(), h.GetDB(c), user, c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation marked as read"})
}

func (h *CommunicationHandler) SendMessage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	result, err := h.communicationService.SendMessage(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *CommunicationHandler) GetStats(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	stats, err := h.communicationService.Stats(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
