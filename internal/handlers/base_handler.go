package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/validator"
	"crm_backend/pkg/apperrors"
	"crm_backend/pkg/contextkeys"
)

// ============================================================================
// 1. Базовая структура обработчика
// ============================================================================

// Guards - middleware, которые хэндлеры вешают на свои группы маршрутов
type Guards struct {
	Auth         gin.HandlerFunc
	Subscription gin.HandlerFunc
	Admin        gin.HandlerFunc
	// Feature закрывает маршрут булевой фичей тарифа
	Feature      func(feature string) gin.HandlerFunc
}

type BaseHandler struct {
	validator *validator.Validator
	guards    Guards
}

func NewBaseHandler(v *validator.Validator, guards Guards) *BaseHandler {
	return &BaseHandler{
		validator: v,
		guards:    guards,
	}
}

// Protected - авторизация + активная подписка или триал
func (h *BaseHandler) Protected(g *gin.RouterGroup) *gin.RouterGroup {
	g.Use(h.guards.Auth, h.guards.Subscription)
	return g
}

// Authenticated - только авторизация, гейт подписки не применяется
func (h *BaseHandler) Authenticated(g *gin.RouterGroup) *gin.RouterGroup {
	g.Use(h.guards.Auth)
	return g
}

func (h *BaseHandler) AdminOnly(g *gin.RouterGroup) *gin.RouterGroup {
	g.Use(h.guards.Auth, h.guards.Admin)
	return g
}

// RequireFeature - без настроенного гейта пропускает запрос
func (h *BaseHandler) RequireFeature(feature string) gin.HandlerFunc {
	if h.guards.Feature == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.guards.Feature(feature)
}

// ============================================================================
// 2. Извлечение DB
// ============================================================================

// GetDB извлекает *gorm.DB (пул или транзакцию) из gin.Context
func (h *BaseHandler) GetDB(c *gin.Context) *gorm.DB {
	dbKey := string(contextkeys.DBContextKey)

	val, ok := c.Get(dbKey)
	if !ok {
		logger.CtxError(c.Request.Context(), "critical error: db key not found in context", "key", dbKey)
		panic("critical error: DBMiddleware did not set the db key")
	}

	db, ok := val.(*gorm.DB)
	if !ok {
		logger.CtxError(c.Request.Context(), "critical error: db in context is not *gorm.DB", "key", dbKey, "type", fmt.Sprintf("%T", val))
		panic("critical error: db in context has incorrect type")
	}

	return db
}

// ============================================================================
// 3. Привязка и валидация
// ============================================================================

func (h *BaseHandler) BindAndValidate_JSON(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindJSON(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind JSON body", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid request body: "+err.Error()))
		return false
	}

	return h.validate(c, obj, "Validation failed")
}

func (h *BaseHandler) BindAndValidate_Query(c *gin.Context, obj interface{}) bool {
	ctx := c.Request.Context()

	if err := c.ShouldBindQuery(obj); err != nil {
		logger.CtxWithError(ctx, "Failed to bind query params", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.NewBadRequestError("Invalid query parameters: "+err.Error()))
		return false
	}

	return h.validate(c, obj, "Validation failed (query)")
}

func (h *BaseHandler) validate(c *gin.Context, obj interface{}, msg string) bool {
	ctx := c.Request.Context()

	if err := h.validator.Validate(obj); err != nil {
		if vErr, ok := err.(*validator.ValidationError); ok {
			logger.CtxWarn(ctx, msg, "errors", vErr.Errors, "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.ValidationError(vErr.Errors))
		} else {
			logger.CtxWithError(ctx, "Internal validator error", err, "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.InternalError(err))
		}
		return false
	}
	return true
}

// ============================================================================
// 4. Обработчики ошибок
// ============================================================================

func (h *BaseHandler) HandleServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		logger.CtxWarn(ctx, "Service error",
			"error", appErr.Message,
			"code", appErr.Code,
			"details", appErr.Details,
			"path", c.Request.URL.Path,
		)
		apperrors.HandleError(c, appErr)
	} else {
		logger.CtxWithError(ctx, "Internal server error", err, "path", c.Request.URL.Path)
		apperrors.HandleError(c, apperrors.InternalError(err))
	}
}

// ============================================================================
// 5. Текущий пользователь
// ============================================================================

func (h *BaseHandler) GetAndAuthorizeUserID(c *gin.Context) (string, bool) {
	ctx := c.Request.Context()

	userIDStr := c.GetString(contextkeys.UserIDKey)
	if userIDStr == "" {
		logger.CtxWarn(ctx, "Unauthorized access: userID not found in context",
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
		)
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return "", false
	}

	return userIDStr, true
}

// CurrentUser - аккаунт, загруженный AuthMiddleware
func (h *BaseHandler) CurrentUser(c *gin.Context) (*models.User, bool) {
	val, _ := c.Get(contextkeys.UserKey)
	user, ok := val.(*models.User)
	if !ok || user == nil {
		logger.CtxWarn(c.Request.Context(), "Unauthorized access: user not loaded",
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
		)
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return nil, false
	}
	return user, true
}

// ============================================================================
// 6. Функции парсинга
// ============================================================================

func ParseQueryInt(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func ParseParamInt(c *gin.Context, key string) (int, error) {
	valueStr := c.Param(key)
	if valueStr == "" {
		return 0, apperrors.NewBadRequestError("Missing required path parameter: " + key)
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, apperrors.NewBadRequestError("Invalid path parameter: " + key + " is not an integer")
	}
	return value, nil
}

func ParsePagination(c *gin.Context) (page int, pageSize int) {
	const defaultPage = 1
	const defaultPageSize = 20
	const maxPageSize = 100

	page = ParseQueryInt(c, "page", defaultPage)
	if page <= 0 {
		page = defaultPage
	}

	pageSize = ParseQueryInt(c, "page_size", defaultPageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return page, pageSize
}

// ParseMonth - ?month=YYYY-MM, пусто - текущий месяц
func ParseMonth(c *gin.Context) (string, error) {
	month := c.Query("month")
	if month == "" {
		return "", nil
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return "", apperrors.NewBadRequestError("Invalid month format. Use YYYY-MM")
	}
	return month, nil
}
