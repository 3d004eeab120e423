package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"crm_backend/internal/logger"
	"crm_backend/pkg/apperrors"
	"crm_backend/pkg/contextkeys"
)

type WebSocketHandler struct {
	Manager  *WebSocketManager
	upgrader websocket.Upgrader
}

// allowedOrigins пуст - принимаем любой origin (dev)
func NewWebSocketHandler(manager *WebSocketManager, allowedOrigins ...string) *WebSocketHandler {
	return &WebSocketHandler{
		Manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeWS ожидает userID от AuthMiddleware
func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	userID := c.GetString(contextkeys.UserIDKey)
	if userID == "" {
		apperrors.HandleError(c, apperrors.NewUnauthorizedError("User not authenticated"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "user_id", userID, "error", err.Error())
		return
	}

	client := &Client{
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan any, 256),
		Manager: h.Manager,
	}
	if !h.Manager.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
