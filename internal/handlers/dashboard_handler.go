package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
)

type DashboardHandler struct {
	*BaseHandler
	dashboardService services.DashboardService
}

func NewDashboardHandler(base *BaseHandler, dashboardService services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler:      base,
		dashboardService: dashboardService,
	}
}

func (h *DashboardHandler) RegisterRoutes(r *gin.RouterGroup) {
	dashboard := h.Protected(r.Group("/dashboard"))
	{
		dashboard.GET("", h.GetOverview)
		dashboard.GET("/pipeline-overview", h.GetPipelineOverview)
		dashboard.GET("/leads-over-time", h.GetLeadsOverTime)
		dashboard.GET("/campaign-performance", h.GetCampaignPerformance)
		dashboard.GET("/upcoming-tasks", h.GetUpcomingTasks)
	}

	analytics := h.Protected(r.Group("/analytics"))
	analytics.Use(h.RequireFeature(subscription.FeatureAdvancedReporting))
	{
		analytics.GET("/lead-sources", h.GetLeadSources)
		analytics.GET("/pipeline-conversion", h.GetPipelineConversion)
		analytics.GET("/channel-performance", h.GetChannelPerformance)
	}
}

func (h *DashboardHandler) GetOverview(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	overview, err := h.dashboardService.Overview(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (h *DashboardHandler) GetPipelineOverview(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	report, err := h.dashboardService.PipelineOverview(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetLeadsOverTime - новые контакты по дням, ?days=30 (1..365)
func (h *DashboardHandler) GetLeadsOverTime(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	days := ParseQueryInt(c, "days", 30)
	report, err := h.dashboardService.LeadsOverTime(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"), days)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *DashboardHandler) GetCampaignPerformance(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	campaigns, err := h.dashboardService.CampaignPerformance(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (h *DashboardHandler) GetUpcomingTasks(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	report, err := h.dashboardService.UpcomingTasks(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *DashboardHandler) GetLeadSources(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	report, err := h.dashboardService.LeadSources(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *DashboardHandler) GetPipelineConversion(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	pipelineID := c.Query("pipeline_id")
	if pipelineID == "" {
		h.HandleServiceError(c, apperrors.ErrInvalidOperation("report", "pipeline_id is required"))
		return
	}

	report, err := h.dashboardService.PipelineConversion(c.Request.Context(), h.GetDB(c), user, pipelineID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *DashboardHandler) GetChannelPerformance(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	report, err := h.dashboardService.ChannelPerformance(c.Request.Context(), h.GetDB(c), user, c.Query("sub_account_id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
