package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
	"crm_backend/pkg/apperrors"
)

type SubscriptionHandler struct {
	*BaseHandler
	subscriptionService services.SubscriptionService
	usageService        services.UsageService
}

func NewSubscriptionHandler(base *BaseHandler, subscriptionService services.SubscriptionService, usageService services.UsageService) *SubscriptionHandler {
	return &SubscriptionHandler{
		BaseHandler:         base,
		subscriptionService: subscriptionService,
		usageService:        usageService,
	}
}

func (h *SubscriptionHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Public routes
	public := r.Group("/subscription")
	{
		public.GET("/plans", h.GetPlans)
		public.POST("/webhooks/stripe", h.StripeWebhook)
	}

	// Без гейта: истекший аккаунт должен видеть состояние и иметь возможность оплатить
	account := h.Authenticated(r.Group("/subscription"))
	{
		account.GET("/current", h.GetCurrent)
		account.POST("/upgrade", h.Upgrade)
		account.GET("/payments", h.ListPayments)
		account.GET("/usage", h.GetUsage)
		account.GET("/usage/:feature", h.CheckUsage)
		account.GET("/recommendations", h.GetRecommendations)
	}

	metered := h.Protected(r.Group("/subscription/usage"))
	{
		metered.POST("/:feature/increment", h.IncrementUsage)
		metered.POST("/:feature/consume", h.ConsumeUsage)
	}

	admin := h.AdminOnly(r.Group("/admin/accounts"))
	{
		admin.PUT("/:id/subscription", h.AdminSetSubscription)
	}
}

// --- Public handlers ---

func (h *SubscriptionHandler) GetPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.subscriptionService.GetPlans(c.Request.Context())})
}

func (h *SubscriptionHandler) StripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		h.HandleServiceError(c, apperrors.NewBadRequestError("Cannot read webhook body"))
		return
	}

	result, err := h.subscriptionService.HandleWebhook(c.Request.Context(), h.GetDB(c), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// --- Account handlers ---

func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	current, err := h.subscriptionService.GetCurrent(c.Request.Context(), h.GetDB(c), user)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}

func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpgradeRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.subscriptionService.Upgrade(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SubscriptionHandler) ListPayments(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	payments, err := h.subscriptionService.ListPayments(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// --- Usage handlers ---

func (h *SubscriptionHandler) GetUsage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	month, err := ParseMonth(c)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	summary, err := h.usageService.Summary(c.Request.Context(), h.GetDB(c), user, month)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *SubscriptionHandler) CheckUsage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	month, err := ParseMonth(c)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	status, err := h.usageService.Check(c.Request.Context(), h.GetDB(c), user, c.Param("feature"), month)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// IncrementUsage - проверка, затем списание. Для гонок есть /consume.
func (h *SubscriptionHandler) IncrementUsage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	amount, ok := h.bindAmount(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	db := h.GetDB(c)
	feature := c.Param("feature")

	status, err := h.usageService.Check(ctx, db, user, feature, "")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	if !status.Allowed {
		h.HandleServiceError(c, apperrors.ErrQuotaExceeded(feature, status.UsageCount, status.Limit))
		return
	}

	status, err = h.usageService.Increment(ctx, db, user, feature, amount, "")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *SubscriptionHandler) ConsumeUsage(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	amount, ok := h.bindAmount(c)
	if !ok {
		return
	}

	status, err := h.usageService.TryConsume(c.Request.Context(), h.GetDB(c), user, c.Param("feature"), amount, "")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// bindAmount - пустое тело означает amount=1
func (h *SubscriptionHandler) bindAmount(c *gin.Context) (int64, bool) {
	var req dto.UsageAmountRequest
	if c.Request.ContentLength > 0 {
		if !h.BindAndValidate_JSON(c, &req) {
			return 0, false
		}
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	return req.Amount, true
}

func (h *SubscriptionHandler) GetRecommendations(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}
	month, err := ParseMonth(c)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	rec, err := h.usageService.Recommendations(c.Request.Context(), h.GetDB(c), user, month)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// --- Admin handlers ---

func (h *SubscriptionHandler) AdminSetSubscription(c *gin.Context) {
	adminID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.AdminSubscriptionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	user, err := h.subscriptionService.AdminSetSubscription(c.Request.Context(), h.GetDB(c), adminID, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
