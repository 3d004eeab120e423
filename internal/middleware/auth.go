package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"crm_backend/internal/auth"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
	"crm_backend/internal/services"
	"crm_backend/internal/subscription"
	"crm_backend/pkg/apperrors"
	"crm_backend/pkg/contextkeys"
)

// AuthMiddleware - проверка JWT и загрузка аккаунта.
// Решение гейта подписки кладется в контекст, но запрос не блокирует.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header missing or invalid"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(tokenStr)
		if err != nil {
			apperrors.HandleError(c, apperrors.ErrInvalidToken)
			c.Abort()
			return
		}

		db, _ := c.MustGet(string(contextkeys.DBContextKey)).(*gorm.DB)
		ctx := logger.WithUserID(c.Request.Context(), claims.UserID)

		user, err := authService.CurrentUser(ctx, db, claims.UserID)
		if err != nil {
			// удаленный или деактивированный аккаунт со старым токеном
			apperrors.HandleError(c, apperrors.ErrInvalidToken)
			c.Abort()
			return
		}
		if !user.IsActive {
			apperrors.HandleError(c, apperrors.NewForbiddenError("Account is deactivated"))
			c.Abort()
			return
		}

		ctx = logger.WithTier(ctx, string(user.SubscriptionTier))
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextkeys.UserIDKey, user.ID)
		c.Set(contextkeys.RoleKey, user.Role)
		c.Set(contextkeys.UserKey, user)
		c.Set(contextkeys.AccessKey, subscription.EvaluateAccess(user, time.Now()))
		c.Next()
	}
}

// bearerToken - заголовок Authorization, для websocket допускается ?token=
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

// SubscriptionRequired пропускает только активную подписку или действующий триал.
// master проходит всегда.
func SubscriptionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get(contextkeys.AccessKey)
		if !exists {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authentication required"))
			c.Abort()
			return
		}
		access, ok := val.(subscription.AccessDecision)
		if !ok {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authentication required"))
			c.Abort()
			return
		}

		if err := access.Err(); err != nil {
			logger.CtxInfo(c.Request.Context(), "access denied by subscription gate",
				"reason", access.Reason,
				"status", access.Status,
			)
			apperrors.HandleError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles - доступ только для перечисленных ролей
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		if !roleSet[GetRole(c)] {
			apperrors.HandleError(c, apperrors.ErrInsufficientPermissions)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly - admin и master
func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.UserRoleAdmin, models.UserRoleMaster)
}

// FeatureRequired закрывает маршруты булевых фич тарифа (api_access, white_label и т.д.)
func FeatureRequired(resolver *subscription.Resolver, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUser(c)
		if user == nil {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authentication required"))
			c.Abort()
			return
		}
		if !resolver.ResolveFor(user, feature).Enabled() {
			apperrors.HandleError(c, apperrors.NewForbiddenError("Feature "+feature+" is not available on your plan").
				WithDetails(map[string]interface{}{
					"reason":  apperrors.ReasonSubscriptionRequired,
					"feature": feature,
					"tier":    user.SubscriptionTier,
				}))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID извлекает ID пользователя из контекста
func GetUserID(c *gin.Context) string {
	id, _ := c.Get(contextkeys.UserIDKey)
	s, _ := id.(string)
	return s
}

func GetRole(c *gin.Context) models.UserRole {
	val, _ := c.Get(contextkeys.RoleKey)
	switch role := val.(type) {
	case models.UserRole:
		return role
	case string:
		return models.UserRole(role)
	}
	return ""
}

func GetUser(c *gin.Context) *models.User {
	val, _ := c.Get(contextkeys.UserKey)
	u, _ := val.(*models.User)
	return u
}
