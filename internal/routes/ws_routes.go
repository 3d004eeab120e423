package routes

import (
	"github.com/gin-gonic/gin"

	"crm_backend/ws"
)

// SetupWebSocketRoutes - браузер не умеет слать заголовки в WS, токен идет в ?token=
func SetupWebSocketRoutes(r *gin.Engine, wsHandler *ws.WebSocketHandler, authGuard gin.HandlerFunc) {
	wsGroup := r.Group("/ws")
	wsGroup.Use(authGuard)
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
}
