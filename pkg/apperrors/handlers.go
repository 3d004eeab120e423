package apperrors

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// ErrorResponse - стандартный ответ об ошибке
type ErrorResponse struct {
	Error *AppError `json:"error"`
}

// GinErrorHandler - обработчик ошибок для Gin
type GinErrorHandler struct {
	Debug bool
}

// debugMode выставляется при старте приложения (SetDebug)
var debugMode = true

// SetDebug включает/выключает вывод деталей внутренних ошибок
func SetDebug(debug bool) {
	debugMode = debug
}

// HandleGinError - основная логика обработки ошибок для Gin
func (h *GinErrorHandler) HandleGinError(c *gin.Context, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		appErr = InternalError(err)
	}

	if appErr.HTTPCode >= 500 {
		slog.Error("Server error",
			slog.String("code", string(appErr.Code)),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", appErr.Unwrap()),
		)
		if !h.Debug {
			// В продакшене скрываем детали
			appErr = appErr.WithDetails(nil)
		}
	}

	c.AbortWithStatusJSON(appErr.HTTPCode, ErrorResponse{Error: appErr})
}

// HandleError - быстрая функция-помощник для Gin
func HandleError(c *gin.Context, err error) {
	handler := &GinErrorHandler{Debug: debugMode}
	handler.HandleGinError(c, err)
}

// AsAppError - пытается преобразовать error в *AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HandleValidationError - специальный обработчик для ошибок валидации Gin
func HandleValidationError(c *gin.Context, err error) {
	validationErr := ValidationError(gin.H{"details": err.Error()})
	HandleError(c, validationErr)
}
