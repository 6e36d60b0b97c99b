package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type CommentHandler struct {
	comments services.CommentService
}

func NewCommentHandler(comments services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// GET /comments/?content_type=&object_id=
func (h *CommentHandler) List(c *gin.Context) {
	target, err := targetFrom(c.Query)
	if err == nil && target == nil {
		err = invalid("content_type", "This field is required.")
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.comments.List(c.Request.Context(), *target, q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /comments/
// body: { "content_type": "...", "object_id": 1, "content": "...", "attachments": [...] }
func (h *CommentHandler) Create(c *gin.Context) {
	var req struct {
		ContentType string `json:"content_type"`
		ObjectID    uint   `json:"object_id"`
		services.CommentInput
	}
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	target, err := targetFrom(func(key string) string {
		if key == "content_type" {
			return req.ContentType
		}
		if req.ObjectID == 0 {
			return ""
		}
		return formatUint(req.ObjectID)
	})
	if err == nil && target == nil {
		err = invalid("content_type", "This field is required.")
	}
	if err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.comments.Create(c.Request.Context(), *target, req.CommentInput)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, v)
}

// PATCH /comments/:id/
func (h *CommentHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.CommentInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.comments.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// DELETE /comments/:id/
func (h *CommentHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.comments.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}
