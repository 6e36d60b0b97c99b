package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type AttachmentHandler struct {
	attachments services.AttachmentService
}

func NewAttachmentHandler(attachments services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// targetFrom reads content_type/object_id through get; both or neither must be set.
func targetFrom(get func(string) string) (*domain.Target, error) {
	kind := strings.TrimSpace(get("content_type"))
	rawID := strings.TrimSpace(get("object_id"))
	if kind == "" && rawID == "" {
		return nil, nil
	}
	if kind == "" {
		return nil, invalid("content_type", "This field is required.")
	}
	if !domain.Kind(kind).Valid() {
		return nil, invalid("content_type", "Unknown content type.")
	}
	if rawID == "" {
		return nil, invalid("object_id", "This field is required.")
	}
	id, err := parseUint("object_id", rawID)
	if err != nil {
		return nil, err
	}
	return &domain.Target{Kind: domain.Kind(kind), ID: id}, nil
}

// GET /attachments/?project=&content_type=&object_id=
func (h *AttachmentHandler) List(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	target, err := targetFrom(c.Query)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.attachments.List(c.Request.Context(), project, q, services.AttachmentFilter{Target: target})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /attachments/:id/
func (h *AttachmentHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	att, err := h.attachments.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, att)
}

// POST /attachments/ (multipart: project, file[], optional content_type + object_id)
func (h *AttachmentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Invalid(c, "file", "Multipart form expected.")
		return
	}
	project, err := parseUint("project", c.PostForm("project"))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	target, err := targetFrom(c.PostForm)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	files, closeAll, err := openParts(form.File["file"])
	if err != nil {
		response.RespondError(c, err)
		return
	}
	defer closeAll()
	out, err := h.attachments.Upload(c.Request.Context(), project, files, target)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

// GET /attachments/:id/file/?width=&height=
func (h *AttachmentHandler) Serve(c *gin.Context) {
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
	served, err := h.attachments.Serve(c.Request.Context(), id, w, hgt)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	writeServed(c, served)
}

// DELETE /attachments/:id/
func (h *AttachmentHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.attachments.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}
