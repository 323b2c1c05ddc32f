package note

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/capture/internal/middleware"
	"github.com/mx-space/capture/internal/modules/processing/markdown"
	"github.com/mx-space/capture/internal/pkg/apperr"
	"github.com/mx-space/capture/internal/pkg/pagination"
	"github.com/mx-space/capture/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	notes := rg.Group("/notes", authMW)

	notes.GET("", h.list)
	notes.POST("", h.create)
	notes.GET("/:id", h.get)
	notes.PATCH("/:id", h.update)
	notes.DELETE("/:id", h.delete)
	notes.GET("/:id/export", h.export)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	filter := ListFilter{Query: c.Query("q"), Tag: c.Query("tag")}
	notes, pag, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), q, filter)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]noteResponse, len(notes))
	for i := range notes {
		items[i] = toResponse(&notes[i])
	}
	response.Paged(c, items, pag)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	note, err := h.svc.GetDetail(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if note == nil {
		response.Error(c, apperr.NotFound("note", id))
		return
	}
	response.OK(c, toDetailResponse(note))
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateNoteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	note, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(note))
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateNoteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	id := c.Param("id")
	note, err := h.svc.Update(c.Request.Context(), middleware.CurrentUserID(c), id, &dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if note == nil {
		response.Error(c, apperr.NotFound("note", id))
		return
	}
	response.OK(c, toResponse(note))
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.svc.Delete(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !deleted {
		response.Error(c, apperr.NotFound("note", id))
		return
	}
	response.NoContent(c)
}

func (h *Handler) export(c *gin.Context) {
	id := c.Param("id")
	note, err := h.svc.GetNote(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if note == nil {
		response.Error(c, apperr.NotFound("note", id))
		return
	}

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "markdown")))
	switch format {
	case "markdown", "md":
		body := exportMarkdown(note, c.Query("front_matter") != "false")
		c.Header("Content-Disposition", `attachment; filename="`+markdown.ExportFilename(note.Title, "md")+`"`)
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
	case "html":
		page := exportHTML(note)
		c.Header("Content-Disposition", `attachment; filename="`+markdown.ExportFilename(note.Title, "html")+`"`)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	default:
		response.BadRequest(c, "format must be markdown or html")
	}
}
