package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
)

type CampaignHandler struct {
	*BaseHandler
	campaignService services.CampaignService
}

func NewCampaignHandler(base *BaseHandler, campaignService services.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		BaseHandler:     base,
		campaignService: campaignService,
	}
}

func (h *CampaignHandler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := h.Protected(r.Group("/campaigns"))
	{
		campaigns.GET("", h.ListCampaigns)
		campaigns.POST("", h.CreateCampaign)
		campaigns.GET("/:id", h.GetCampaign)
		campaigns.PUT("/:id", h.UpdateCampaign)
		campaigns.DELETE("/:id", h.DeleteCampaign)
		campaigns.POST("/:id/send", h.SendCampaign)
	}
}

func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var query dto.CampaignListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}
	query.Page, query.PageSize = ParsePagination(c)

	campaigns, err := h.campaignService.List(c.Request.Context(), h.GetDB(c), user, query)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaigns)
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateCampaignRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	campaign, err := h.campaignService.Create(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	campaign, err := h.campaignService.Get(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateCampaignRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	campaign, err := h.campaignService.Update(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, campaign)
}

func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	if err := h.campaignService.Delete(c.Request.Context(), h.GetDB(c), user, c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CampaignHandler) SendCampaign(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	result, err := h.campaignService.Send(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
