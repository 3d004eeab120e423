package handlers

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/auth"
	"crm_backend/internal/logger"
	"crm_backend/internal/middleware"
	"crm_backend/internal/storage"
	"crm_backend/pkg/apperrors"
)

// FileHandler отдает выгрузки из локального хранилища.
// Для S3/R2 клиент получает presigned URL и сюда не ходит.
type FileHandler struct {
	*BaseHandler
	storage storage.Storage
}

func NewFileHandler(base *BaseHandler, storage storage.Storage) *FileHandler {
	return &FileHandler{
		BaseHandler: base,
		storage:     storage,
	}
}

func (h *FileHandler) RegisterRoutes(r *gin.RouterGroup) {
	files := h.Authenticated(r.Group("/files"))
	{
		files.GET("/exports/:ownerId/:name", h.ServeExport)
	}
}

// ServeExport - выгрузку видит владелец, admin и master
func (h *FileHandler) ServeExport(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	ownerID := c.Param("ownerId")
	name := c.Param("name")
	if ownerID != userID && !auth.CanAccessAnyTenant(string(middleware.GetRole(c))) {
		apperrors.HandleError(c, apperrors.NewForbiddenError("Access denied"))
		return
	}
	if !strings.HasSuffix(name, ".csv") {
		apperrors.HandleError(c, apperrors.ErrNotFound(storage.ErrInvalidPath))
		return
	}

	reader, err := h.storage.Get(c.Request.Context(), path.Join("exports", ownerID, name))
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "export not found", "owner_id", ownerID, "name", name, "error", err.Error())
		apperrors.HandleError(c, apperrors.ErrNotFound(err))
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+name+"\"")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.CtxWithError(c.Request.Context(), "failed to stream export", err, "name", name)
	}
}
