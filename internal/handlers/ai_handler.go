package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
)

type AIHandler struct {
	*BaseHandler
	aiService services.AIService
}

func NewAIHandler(base *BaseHandler, aiService services.AIService) *AIHandler {
	return &AIHandler{
		BaseHandler: base,
		aiService:   aiService,
	}
}

func (h *AIHandler) RegisterRoutes(r *gin.RouterGroup) {
	ai := h.Protected(r.Group("/ai"))
	{
		ai.POST("/lead-scoring", h.ScoreLead)
		ai.POST("/conversation-analysis", h.AnalyzeConversation)
		ai.POST("/content-suggestions", h.SuggestContent)
	}
}

func (h *AIHandler) ScoreLead(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.LeadScoringRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	score, err := h.aiService.ScoreLead(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

func (h *AIHandler) AnalyzeConversation(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.ConversationAnalysisRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	analysis, err := h.aiService.AnalyzeConversation(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (h *AIHandler) SuggestContent(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.ContentSuggestionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	result, err := h.aiService.SuggestContent(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
