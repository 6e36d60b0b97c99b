package handlers

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type ProjectHandler struct {
	projects services.ProjectService
}

func NewProjectHandler(projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// GET /projects/
func (h *ProjectHandler) List(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.projects.List(c.Request.Context(), q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /projects/:id/
func (h *ProjectHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	p, err := h.projects.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// POST /projects/
func (h *ProjectHandler) Create(c *gin.Context) {
	var in services.ProjectInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	p, err := h.projects.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, p)
}

// PATCH /projects/:id/
func (h *ProjectHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.ProjectInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	p, err := h.projects.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// POST /projects/:id/icon/ (multipart field "icon")
func (h *ProjectHandler) UploadIcon(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	fh, err := c.FormFile("icon")
	if err != nil {
		response.Invalid(c, "icon", "No file was submitted.")
		return
	}
	files, closeAll, err := openParts([]*multipart.FileHeader{fh})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	defer closeAll()
	p, err := h.projects.UploadIcon(c.Request.Context(), id, files[0])
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// GET /projects/:id/icon/?width=&height=
func (h *ProjectHandler) Icon(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	w, hgt, err := thumbnailSize(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	served, err := h.projects.Icon(c.Request.Context(), id, w, hgt)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	writeServed(c, served)
}

// GET /projects/:id/progress/
func (h *ProjectHandler) Progress(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	st, err := h.projects.Progress(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, st)
}
