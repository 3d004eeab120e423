package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crm_backend/internal/services"
	"crm_backend/internal/services/dto"
)

type ContactHandler struct {
	*BaseHandler
	contactService services.ContactService
}

func NewContactHandler(base *BaseHandler, contactService services.ContactService) *ContactHandler {
	return &ContactHandler{
		BaseHandler:    base,
		contactService: contactService,
	}
}

func (h *ContactHandler) RegisterRoutes(r *gin.RouterGroup) {
	contacts := h.Protected(r.Group("/contacts"))
	{
		contacts.GET("", h.ListContacts)
		contacts.POST("", h.CreateContact)
		contacts.POST("/export", h.ExportContacts)
		contacts.GET("/:id", h.GetContact)
		contacts.PUT("/:id", h.UpdateContact)
		contacts.DELETE("/:id", h.DeleteContact)
		contacts.POST("/:id/notes", h.AddNote)
		contacts.POST("/:id/tasks", h.AddTask)
		contacts.POST("/:id/score", h.ScoreContact)
	}
}

func (h *ContactHandler) ListContacts(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var query dto.ContactListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}
	query.Page, query.PageSize = ParsePagination(c)

	contacts, err := h.contactService.List(c.Request.Context(), h.GetDB(c), user, query)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) CreateContact(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateContactRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	contact, err := h.contactService.Create(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contact)
}

func (h *ContactHandler) GetContact(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	contact, err := h.contactService.Get(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) UpdateContact(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.UpdateContactRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	contact, err := h.contactService.Update(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) DeleteContact(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	if err := h.contactService.Delete(c.Request.Context(), h.GetDB(c), user, c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ContactHandler) AddNote(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateNoteRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	note, err := h.contactService.AddNote(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, note)
}

func (h *ContactHandler) AddTask(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	task, err := h.contactService.AddTask(c.Request.Context(), h.GetDB(c), user, c.Param("id"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

func (h *ContactHandler) ScoreContact(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	score, err := h.contactService.Score(c.Request.Context(), h.GetDB(c), user, c.Param("id"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

func (h *ContactHandler) ExportContacts(c *gin.Context) {
	user, ok := h.CurrentUser(c)
	if !ok {
		return
	}

	var req dto.ContactExportRequest
	if c.Request.ContentLength > 0 && !h.BindAndValidate_JSON(c, &req) {
		return
	}

	export, err := h.contactService.Export(c.Request.Context(), h.GetDB(c), user, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, export)
}
