package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
)

type PipelineHandler struct {
	*BaseHandler
	pipelineService services.PipelineService
}

func NewPipelineHandler(base *BaseHandler, pipelineService services.PipelineService) *PipelineHandler {
	return &PipelineHandler{
		BaseHandler:     base,
		pipelineService: pipelineService,
	}
}

func (h *PipelineHandler) RegisterRoutes(r *gin.RouterGroup) {
	pipelines := h.Protected(r.Group("/pipelines"))
	{
		pipelines.GET("", h.ListPipelines)
		pipelines.POST("", h.CreatePipeline)
		pipelines.GET("/:id/board", h.GetBoard)
		pipelines.GET("/:id/opportunities", h.ListOpportunities)

		pipelines.POST("/opportunities", h.CreateOpportunity)
		pipelines.GET("/opportunities/:id", h.GetOpportunity)
		pipelines.PUT("/opportunities/:id", h.UpdateOpportunity)
		pipelines.PUT("/opportunities/:id/stage", h.UpdateStage)
	}
}

func (h *PipelineHandler) ListPipelines(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	pipelines, err := h.pipelineService.ListPipelines(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pipelines": pipelines})
}

func (h *PipelineHandler) CreatePipeline(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreatePipelineRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	pipeline, err := h.pipelineService.CreatePipeline(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pipeline)
}

func (h *PipelineHandler) GetBoard(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	board, err := h.pipelineService.GetBoard(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}

func (h *PipelineHandler) ListOpportunities(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	opportunities, err := h.pipelineService.ListOpportunities(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"opportunities": opportunities})
}

func (h *PipelineHandler) CreateOpportunity(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateOpportunityRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	opportunity, err := h.pipelineService.CreateOpportunity(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, opportunity)
}

func (h *PipelineHandler) GetOpportunity(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	opportunity, err := h.pipelineService.GetOpportunity(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, opportunity)
}

func (h *PipelineHandler) UpdateStage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateStageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	opportunity, err := h.pipelineService.UpdateStage(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, opportunity)
}

func (h *PipelineHandler) UpdateOpportunity(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateOpportunityRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	opportunity, err := h.pipelineService.UpdateOpportunity(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, opportunity)
}
