package routes

import (
	"github.com/gin-gonic/gin"

	"crm_backend/internal/handlers"
	"crm_backend/internal/logger"
	"crm_backend/ws"
)

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
	authGuard gin.HandlerFunc,
	health HealthCheck,
) {
	SetupPublicRoutes(ginRouter, health)

	// Регистрация HTTP API v1
	api := ginRouter.Group("/api/v1")
	{
		appHandlers.AuthHandler.RegisterRoutes(api)
		appHandlers.SubscriptionHandler.RegisterRoutes(api)
		appHandlers.ContactHandler.RegisterRoutes(api)
		appHandlers.PipelineHandler.RegisterRoutes(api)
		appHandlers.CommunicationHandler.RegisterRoutes(api)
		appHandlers.CampaignHandler.RegisterRoutes(api)
		appHandlers.AIHandler.RegisterRoutes(api)
		appHandlers.NotificationHandler.RegisterRoutes(api)
		appHandlers.DashboardHandler.RegisterRoutes(api)
		appHandlers.FileHandler.RegisterRoutes(api)
	}

	SetupWebSocketRoutes(ginRouter, wsHandler, authGuard)
	logger.Info("Routes registered", "routes", len(ginRouter.Routes()))
}
